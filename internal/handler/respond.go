package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nluhub/internal/nlp_client"
	"nluhub/internal/service"
)

type userMessage interface {
	UserMessage() string
}

func message(err error, fallback string) string {
	var um userMessage
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return fallback
}

// respondError writes the HTTP reply for an error returned by a service.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *service.ValidationError
	var upstream *nlp_client.StatusError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.As(err, &upstream):
		contentType := "text/plain; charset=utf-8"
		if json.Valid(upstream.Body) {
			contentType = "application/json"
		}
		c.Data(upstream.StatusCode, contentType, upstream.Body)
	case errors.Is(err, nlp_client.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NLP service is unavailable, try again later."})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": message(err, "Not found.")})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": message(err, service.ErrUnauthenticated.Error())})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": message(err, service.ErrPermissionDenied.Error())})
	case errors.Is(err, service.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": message(err, service.ErrUnsupportedMedia.Error())})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{service.NonFieldErrors: []string{err.Error()}})
	default:
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
