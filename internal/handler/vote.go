package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type VoteHandler interface {
	List(c *gin.Context)
	Vote(c *gin.Context)
	Unvote(c *gin.Context)
}

type voteHandler struct {
	votes  service.VoteService
	logger *zap.Logger
}

func NewVoteHandler(votes service.VoteService, logger *zap.Logger) VoteHandler {
	return &voteHandler{votes: votes, logger: logger}
}

func (h *voteHandler) List(c *gin.Context) {
	p := page(c)
	votes, err := h.votes.List(c.Request.Context(), userID(c), c.Query("repository"), c.Query("user"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, votes)
}

// Vote is idempotent: voting twice returns the existing vote.
func (h *voteHandler) Vote(c *gin.Context) {
	var input models.VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	vote, err := h.votes.Vote(c.Request.Context(), userID(c), input.Repository)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, vote)
}

func (h *voteHandler) Unvote(c *gin.Context) {
	repo, err := uuid.Parse(c.Query("repository"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"repository": []string{"Must be a valid UUID."}})
		return
	}
	if err := h.votes.Unvote(c.Request.Context(), userID(c), repo); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
