package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type EvaluateHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	List(c *gin.Context)
}

type evaluateHandler struct {
	evaluates service.EvaluateService
	logger    *zap.Logger
}

func NewEvaluateHandler(evaluates service.EvaluateService, logger *zap.Logger) EvaluateHandler {
	return &evaluateHandler{evaluates: evaluates, logger: logger}
}

func (h *evaluateHandler) Create(c *gin.Context) {
	var input models.CreateEvaluateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	evaluate, err := h.evaluates.Create(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, evaluate)
}

func (h *evaluateHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	evaluate, err := h.evaluates.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, evaluate)
}

func (h *evaluateHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateEvaluateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	evaluate, err := h.evaluates.Update(c.Request.Context(), userID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, evaluate)
}

func (h *evaluateHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.evaluates.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *evaluateHandler) List(c *gin.Context) {
	version, ok := queryInt64(c, "repository_version")
	if !ok {
		return
	}
	query := service.EvaluateQuery{
		Repository:        c.Query("repository"),
		RepositoryVersion: version,
		Language:          c.Query("language"),
		Label:             c.Query("label"),
		Entity:            c.Query("entity"),
		Intent:            c.Query("intent"),
		Text:              c.Query("text"),
		Search:            c.Query("search"),
	}

	p := page(c)
	evaluates, err := h.evaluates.List(c.Request.Context(), userID(c), query, p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, evaluates)
}
