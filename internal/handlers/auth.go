package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bustedgame/busted-server/internal/handlers/dto"
	"github.com/bustedgame/busted-server/pkg/auth"
)

type AuthHandler struct {
	jwtManager *auth.JWTManager
	redis      *redis.Client
}

func NewAuthHandler(jwtMgr *auth.JWTManager, rdb *redis.Client) *AuthHandler {
	return &AuthHandler{jwtManager: jwtMgr, redis: rdb}
}

// Guest mints an anonymous identity. There are no accounts: a fresh user id
// plus a signed token is all a player ever carries.
func (h *AuthHandler) Guest(c *gin.Context) {
	var req dto.GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := uuid.New()
	token, err := h.jwtManager.Generate(userID.String(), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	exp, err := h.jwtManager.Expiry(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(http.StatusCreated, dto.GuestResponse{
		UserID:         userID.String(),
		Username:       req.Username,
		Token:          token,
		TokenExpiresAt: exp.Format(time.RFC3339),
	})
}

// Logout blacklists the token in Redis until it expires
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken, err := auth.ExtractTokenFromHeader(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exp, err := h.jwtManager.Expiry(rawToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ttl := time.Until(exp)
	h.redis.Set(context.Background(), "blacklist:"+rawToken, 1, ttl)

	c.Status(http.StatusOK)
}
