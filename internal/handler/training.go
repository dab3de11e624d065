package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

// TrainingHandler proxies training, evaluation and analysis to the NLP
// service and receives its callbacks.
type TrainingHandler interface {
	Train(c *gin.Context)
	Evaluate(c *gin.Context)
	Analyze(c *gin.Context)

	RegisterQueueTask(c *gin.Context)
	LogPrediction(c *gin.Context)
	TrainingResult(c *gin.Context)
	BotData(c *gin.Context)
}

type trainingHandler struct {
	training service.TrainingService
	logger   *zap.Logger
}

func NewTrainingHandler(training service.TrainingService, logger *zap.Logger) TrainingHandler {
	return &trainingHandler{training: training, logger: logger}
}

// relay writes the NLP reply unchanged.
func relay(c *gin.Context, body json.RawMessage) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	c.Data(http.StatusOK, "application/json", body)
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// Train handles POST /v2/repository/repository-info/:uuid/train
func (h *trainingHandler) Train(c *gin.Context) {
	repo, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var input models.TrainInput
	if !bindOptionalJSON(c, &input) {
		return
	}

	body, err := h.training.Train(c.Request.Context(), userID(c), repo, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	relay(c, body)
}

func (h *trainingHandler) Evaluate(c *gin.Context) {
	repo, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var input models.TrainInput
	if !bindOptionalJSON(c, &input) {
		return
	}

	body, err := h.training.Evaluate(c.Request.Context(), userID(c), repo, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	relay(c, body)
}

func (h *trainingHandler) Analyze(c *gin.Context) {
	repo, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var input models.AnalyzeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	body, err := h.training.Analyze(c.Request.Context(), userID(c), repo, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	relay(c, body)
}

// RegisterQueueTask handles POST /v2/internal/queue-tasks
func (h *trainingHandler) RegisterQueueTask(c *gin.Context) {
	var input models.CreateQueueTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.training.RegisterQueueTask(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// LogPrediction handles POST /v2/internal/nlp-logs
func (h *trainingHandler) LogPrediction(c *gin.Context) {
	var input models.CreateNLPLogInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	log, err := h.training.LogPrediction(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

// TrainingResult handles POST /v2/internal/version-languages/:id/training
func (h *trainingHandler) TrainingResult(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.TrainingResultInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.training.TrainingResult(c.Request.Context(), id, input); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// BotData handles GET /v2/internal/version-languages/:id/bot-data
func (h *trainingHandler) BotData(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	data, err := h.training.BotData(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot_data": data})
}
