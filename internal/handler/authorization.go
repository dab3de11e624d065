package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type AuthorizationHandler interface {
	Request(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
	ListPending(c *gin.Context)
	List(c *gin.Context)
	UpdateRole(c *gin.Context)
}

type authorizationHandler struct {
	authorizations service.AuthorizationService
	logger         *zap.Logger
}

func NewAuthorizationHandler(authorizations service.AuthorizationService, logger *zap.Logger) AuthorizationHandler {
	return &authorizationHandler{authorizations: authorizations, logger: logger}
}

// Request handles POST /v2/repository/request-authorization
func (h *authorizationHandler) Request(c *gin.Context) {
	var input models.CreateAuthorizationRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.authorizations.Request(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// Approve handles PUT /v2/repository/review-authorization-request/:id
func (h *authorizationHandler) Approve(c *gin.Context) {
	h.review(c, true)
}

// Reject handles DELETE /v2/repository/review-authorization-request/:id
func (h *authorizationHandler) Reject(c *gin.Context) {
	h.review(c, false)
}

func (h *authorizationHandler) review(c *gin.Context, approve bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.authorizations.Review(c.Request.Context(), userID(c), id, approve); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if approve {
		c.JSON(http.StatusOK, gin.H{"approved": true})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *authorizationHandler) ListPending(c *gin.Context) {
	p := page(c)
	requests, err := h.authorizations.ListPending(c.Request.Context(), userID(c), c.Query("repository"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, requests)
}

func (h *authorizationHandler) List(c *gin.Context) {
	p := page(c)
	auths, err := h.authorizations.List(c.Request.Context(), userID(c), c.Query("repository"), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paginated(c, p, auths)
}

// UpdateRole handles PATCH /v2/repository/authorization-role/:uuid/:nickname
func (h *authorizationHandler) UpdateRole(c *gin.Context) {
	repo, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var input models.UpdateRoleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	auth, err := h.authorizations.UpdateRole(c.Request.Context(), userID(c), repo, c.Param("nickname"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, auth)
}
