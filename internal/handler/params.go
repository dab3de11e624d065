package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nluhub/internal/middleware"
	"nluhub/internal/repository"
)

func userID(c *gin.Context) int64 {
	return middleware.UserID(c)
}

// page reads the limit/offset window; malformed values fall back to the
// defaults.
func page(c *gin.Context) repository.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return repository.Page{Limit: limit, Offset: offset}.Normalize()
}

func paginated[T any](c *gin.Context, p repository.Page, results []T) {
	if results == nil {
		results = []T{}
	}
	c.JSON(http.StatusOK, gin.H{
		"limit":   p.Limit,
		"offset":  p.Offset,
		"results": results,
	})
}

// pathUUID parses a uuid path parameter. An unparseable value is answered
// with 404 like any unknown repository.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return 0, false
	}
	return id, true
}

// queryInt64 returns nil when the parameter is absent. ok is false when it
// is present but not a number; the reply has then been written.
func queryInt64(c *gin.Context, name string) (*int64, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{name: []string{"A valid integer is required."}})
		return nil, false
	}
	return &v, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{name: []string{"Must be a valid boolean."}})
		return nil, false
	}
	return &v, true
}

// queryIDs accepts both repeated parameters and comma separated lists.
func queryIDs(c *gin.Context, name string) ([]int64, bool) {
	var ids []int64
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{name: []string{"Select a valid choice."}})
				return nil, false
			}
			ids = append(ids, id)
		}
	}
	return ids, true
}
