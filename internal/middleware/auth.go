package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

const userIDKey = "user_id"

// TokenParser validates a bearer token and returns its claims.
type TokenParser interface {
	ParseToken(tokenString string) (*models.Claims, error)
}

// UserID returns the authenticated user, or 0 for anonymous requests.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func bearer(c *gin.Context) (string, bool, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, nil
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", true, errors.New("Authorization header format must be Bearer <token>")
	}
	return parts[1], true, nil
}

func authenticate(c *gin.Context, tokens TokenParser, logger *zap.Logger, required bool) {
	tokenString, present, err := bearer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if !present {
		if required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		c.Next()
		return
	}

	claims, err := tokens.ParseToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return
		}
		logger.Debug("Invalid JWT token", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	c.Set(userIDKey, claims.UserID)
	c.Next()
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens TokenParser, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, tokens, logger, true)
	}
}

// OptionalAuth lets anonymous requests through. A token that is present
// must still be valid.
func OptionalAuth(tokens TokenParser, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, tokens, logger, false)
	}
}

// ServiceToken guards the callbacks of the NLP service.
func ServiceToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid service token"})
			return
		}
		c.Next()
	}
}
