package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/repository"
	"nluhub/internal/service"
)

type RepositoryHandler interface {
	Categories(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	LanguagesStatus(c *gin.Context)
	Authorization(c *gin.Context)
	List(c *gin.Context)
	Search(c *gin.Context)
	Contributions(c *gin.Context)
}

type repositoryHandler struct {
	bots   service.BotService
	logger *zap.Logger
}

func NewRepositoryHandler(bots service.BotService, logger *zap.Logger) RepositoryHandler {
	return &repositoryHandler{bots: bots, logger: logger}
}

func (h *repositoryHandler) Categories(c *gin.Context) {
	categories, err := h.bots.Categories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	c.JSON(http.StatusOK, categories)
}

// Create handles POST /v2/repository/new
func (h *repositoryHandler) Create(c *gin.Context) {
	var input models.CreateRepositoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	detail, err := h.bots.Create(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, detail)
}

func (h *repositoryHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	detail, err := h.bots.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *repositoryHandler) Update(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var input models.UpdateRepositoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	detail, err := h.bots.Update(c.Request.Context(), userID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *repositoryHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	if err := h.bots.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *repositoryHandler) LanguagesStatus(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	status, err := h.bots.LanguagesStatus(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if status == nil {
		status = []models.LanguageStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"languages_status": status})
}

func (h *repositoryHandler) Authorization(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	caps, err := h.bots.Authorization(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

// List handles GET /v2/repository/repositories
func (h *repositoryHandler) List(c *gin.Context) {
	categories, ok := queryIDs(c, "categories")
	if !ok {
		return
	}
	filter := repository.RepositoryFilter{
		Language:   c.Query("language"),
		Categories: categories,
		Name:       c.Query("name"),
		Search:     c.Query("search"),
	}

	p := page(c)
	repos, err := h.bots.ListPublic(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, repos)
}

func (h *repositoryHandler) Search(c *gin.Context) {
	p := page(c)
	repos, err := h.bots.SearchByOwner(c.Request.Context(), userID(c), c.Query("nickname"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, repos)
}

func (h *repositoryHandler) Contributions(c *gin.Context) {
	p := page(c)
	repos, err := h.bots.Contributions(c.Request.Context(), userID(c), c.Query("nickname"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, repos)
}
