package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/service"
)

type AccountHandler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Profile(c *gin.Context)
	UpdateProfile(c *gin.Context)
}

type accountHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

func NewAccountHandler(authService service.AuthService, logger *zap.Logger) AccountHandler {
	return &accountHandler{authService: authService, logger: logger}
}

// Register handles POST /v2/account/register
func (h *accountHandler) Register(c *gin.Context) {
	var input models.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login handles POST /v2/account/login
func (h *accountHandler) Login(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	tokenString, expirationTime, err := h.authService.Login(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      tokenString,
		"expires_at": expirationTime,
	})
}

func (h *accountHandler) Profile(c *gin.Context) {
	user, err := h.authService.Profile(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PATCH /v2/account/user-profile. Sending
// telegram_chat_id 0 unlinks the Telegram account.
func (h *accountHandler) UpdateProfile(c *gin.Context) {
	var input models.UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
