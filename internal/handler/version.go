package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type VersionHandler interface {
	List(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Languages(c *gin.Context)
}

type versionHandler struct {
	versions service.VersionService
	logger   *zap.Logger
}

func NewVersionHandler(versions service.VersionService, logger *zap.Logger) VersionHandler {
	return &versionHandler{versions: versions, logger: logger}
}

func (h *versionHandler) List(c *gin.Context) {
	p := page(c)
	versions, err := h.versions.List(c.Request.Context(), userID(c), c.Query("repository"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, versions)
}

// Get returns the version with the state of the clone that produced it.
func (h *versionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	version, err := h.versions.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

// Create queues a clone of an existing version and answers 202; the new
// version stays hidden until the clone worker finishes.
func (h *versionHandler) Create(c *gin.Context) {
	var input models.CreateVersionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	version, err := h.versions.Create(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, version)
}

func (h *versionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateVersionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	version, err := h.versions.Update(c.Request.Context(), userID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *versionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.versions.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Languages handles GET /v2/repository/version-languages
func (h *versionHandler) Languages(c *gin.Context) {
	version, ok := queryInt64(c, "repository_version")
	if !ok {
		return
	}
	trained, ok := queryBool(c, "trained")
	if !ok {
		return
	}

	p := page(c)
	languages, err := h.versions.Languages(c.Request.Context(), userID(c), c.Query("repository"), version, trained, p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, languages)
}
