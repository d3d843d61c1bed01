package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/echo-chat/internal/auth"
	"github.com/suPer8Hu/echo-chat/internal/chat"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/echo-chat/internal/persona"
	"github.com/suPer8Hu/echo-chat/internal/share"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

// TokenIssuer signs tokens for users that logged in through this service.
type TokenIssuer interface {
	Sign(userID, email string) (string, *auth.Principal, error)
}

// Info is reported by the health endpoint.
type Info struct {
	Storage  string
	Provider string
	Model    string
	AuthMode string
}

type Handler struct {
	Chat   *chat.Service
	Shares *share.Service
	Users  *user.Service
	// Issuer is nil when identities come from an external provider.
	Issuer      TokenIssuer
	Revocations auth.Revocations
	FrontendURL string
	Info        Info
	Log         zerolog.Logger
}

func principal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		common.FailErr(c, common.ErrUnauthorized)
	}
	return p, ok
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (h *Handler) shareURL(slug string) string {
	return strings.TrimRight(h.FrontendURL, "/") + "/share/" + slug
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, http.StatusOK, "Server is running", gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"storage":   h.Info.Storage,
		"provider":  h.Info.Provider,
		"model":     h.Info.Model,
		"authMode":  h.Info.AuthMode,
	})
}

func (h *Handler) ListPersonas(c *gin.Context) {
	common.OK(c, http.StatusOK, "ok", gin.H{"personas": persona.List()})
}
