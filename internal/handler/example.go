package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

// maxUploadSize bounds the bulk example file.
const maxUploadSize = 10 << 20

type ExampleHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	List(c *gin.Context)
	Upload(c *gin.Context)
	Entities(c *gin.Context)
}

type exampleHandler struct {
	examples service.ExampleService
	logger   *zap.Logger
}

func NewExampleHandler(examples service.ExampleService, logger *zap.Logger) ExampleHandler {
	return &exampleHandler{examples: examples, logger: logger}
}

func (h *exampleHandler) Create(c *gin.Context) {
	var input models.CreateExampleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	example, err := h.examples.Create(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, example)
}

func (h *exampleHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	example, err := h.examples.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, example)
}

func (h *exampleHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateExampleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	example, err := h.examples.Update(c.Request.Context(), userID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, example)
}

func (h *exampleHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.examples.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /v2/repository/examples
func (h *exampleHandler) List(c *gin.Context) {
	version, ok := queryInt64(c, "repository_version")
	if !ok {
		return
	}
	hasTranslation, ok := queryBool(c, "has_translation")
	if !ok {
		return
	}
	query := service.ExampleQuery{
		Repository:          c.Query("repository"),
		RepositoryVersion:   version,
		Language:            c.Query("language"),
		Label:               c.Query("label"),
		Entity:              c.Query("entity"),
		Intent:              c.Query("intent"),
		Text:                c.Query("text"),
		Search:              c.Query("search"),
		HasTranslation:      hasTranslation,
		HasNotTranslationTo: c.Query("has_not_translation_to"),
		OrderByTranslation:  c.Query("order_by_translation"),
	}

	p := page(c)
	examples, err := h.examples.List(c.Request.Context(), userID(c), query, p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, examples)
}

// Upload handles POST /v2/repository/upload-examples. The multipart field
// "file" holds a JSON array of examples.
func (h *exampleHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			c.JSON(http.StatusBadRequest, gin.H{"file": []string{"No file was submitted."}})
			return
		}
		badRequest(c, err)
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.examples.Upload(c.Request.Context(), userID(c), c.PostForm("repository"), payload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Entities handles GET /v2/repository/entities
func (h *exampleHandler) Entities(c *gin.Context) {
	version, ok := queryInt64(c, "repository_version")
	if !ok {
		return
	}
	listing, err := h.examples.Entities(c.Request.Context(), userID(c), c.Query("repository"), version, c.Query("value"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
