package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type TranslationHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	List(c *gin.Context)
}

type translationHandler struct {
	translations service.TranslationService
	logger       *zap.Logger
}

func NewTranslationHandler(translations service.TranslationService, logger *zap.Logger) TranslationHandler {
	return &translationHandler{translations: translations, logger: logger}
}

// Create handles POST /v2/repository/translate-example
func (h *translationHandler) Create(c *gin.Context) {
	var input models.CreateTranslationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	translation, err := h.translations.Create(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, translation)
}

func (h *translationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	translation, err := h.translations.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, translation)
}

func (h *translationHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateTranslationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	translation, err := h.translations.Update(c.Request.Context(), userID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, translation)
}

func (h *translationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.translations.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *translationHandler) List(c *gin.Context) {
	version, ok := queryInt64(c, "repository_version")
	if !ok {
		return
	}
	query := service.TranslationQuery{
		Repository:        c.Query("repository"),
		RepositoryVersion: version,
		FromLanguage:      c.Query("from_language"),
		ToLanguage:        c.Query("to_language"),
	}

	p := page(c)
	translations, err := h.translations.List(c.Request.Context(), userID(c), query, p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, translations)
}
