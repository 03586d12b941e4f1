package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	refreshKey       = "refresh_token"
	refreshExpiresIn = 3600
)

// SessionProvisioner creates an upstream realtime session carrying the
// ephemeral client secret.
type SessionProvisioner interface {
	Provision(ctx context.Context) (*domain.RealtimeSession, error)
}

type TokenError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TokenHandlers struct {
	Provisioner SessionProvisioner
}

// Register mounts the token routes on g.
func (h *TokenHandlers) Register(g *gin.RouterGroup) {
	g.GET("/realtime/token", h.handleToken)
	g.POST("/realtime/token/refresh", h.handleRefresh)
}

// handleToken proxies the upstream session object untouched.
func (h *TokenHandlers) handleToken(c *gin.Context) {
	sess, err := h.Provisioner.Provision(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("create realtime session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.Data(http.StatusOK, "application/json", sess.Raw)
}

// handleRefresh rotates the refresh token kept in the client's cookie
// session. A client with no stored token may present any bearer value once.
func (h *TokenHandlers) handleRefresh(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	presented, found := strings.CutPrefix(auth, "Bearer ")
	if !found || presented == "" {
		c.JSON(http.StatusUnauthorized, TokenError{Code: "INVALID_AUTH", Message: "Invalid authorization header"})
		return
	}

	store := sessions.Default(c)
	if stored, ok := store.Get(refreshKey).(string); ok && stored != presented {
		log.Warn().Str("module", "transport.http").Str("sid", c.GetString("client_token")).Msg("refresh token mismatch")
		c.JSON(http.StatusUnauthorized, TokenError{Code: "INVALID_AUTH", Message: "Unknown refresh token"})
		return
	}

	resp := domain.RefreshedToken{
		Token:        "rt_" + uuid.NewString(),
		ExpiresIn:    refreshExpiresIn,
		RefreshToken: "rrt_" + uuid.NewString(),
	}
	store.Set(refreshKey, resp.RefreshToken)
	if err := store.Save(); err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, TokenError{Code: "TOKEN_REFRESH_ERROR", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
