package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/pkg/response"
)

type AuthHandler struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	ttl    time.Duration
	log    zerolog.Logger
}

func NewAuthHandler(users repository.UserRepository, tokens repository.TokenRepository, ttl time.Duration, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, ttl: ttl, log: log.With().Str("component", "auth").Logger()}
}

// Register mounts the anonymous routes.
func (h *AuthHandler) Register(r *gin.RouterGroup) {
	r.POST("/auth/login", h.login)
}

// RegisterSecured mounts the routes that need a session.
func (h *AuthHandler) RegisterSecured(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.logout)
	r.GET("/auth/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      model.User `json:"user"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.WriteError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()
	u, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.log.Info().Str("email", strings.ToLower(req.Email)).Msg("sign-in refused")
		response.WriteError(c, err)
		return
	}
	token, exp, err := h.tokens.Issue(ctx, u.ID, h.ttl)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	h.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("signed in")
	response.WriteData(c, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: u})
}

func (h *AuthHandler) logout(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if err := h.tokens.Revoke(c.Request.Context(), token); err != nil {
		response.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) me(c *gin.Context) {
	response.WriteData(c, http.StatusOK, currentUser(c))
}
