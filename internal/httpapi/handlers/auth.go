package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

type loginReq struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProviderID string `json:"providerId"`
}

func userView(u *user.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"createdAt": u.CreatedAt,
	}
}

// Login provisions the user on first sight and issues a bearer token.
func (h *Handler) Login(c *gin.Context) {
	if h.Issuer == nil {
		common.Fail(c, http.StatusNotFound, "login is handled by the identity provider", nil)
		return
	}
	var req loginReq
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.Users.Login(c.Request.Context(), user.LoginInput{
		Name:       req.Name,
		Email:      req.Email,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}

	token, p, err := h.Issuer.Sign(u.ID, u.Email)
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", u.ID).Msg("sign token failed")
		common.FailErr(c, err)
		return
	}

	common.OK(c, http.StatusOK, "Login successful", gin.H{
		"token":     token,
		"expiresAt": p.ExpiresAt,
		"user":      userView(u),
	})
}

func (h *Handler) Verify(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), p.UserID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "Token is valid", gin.H{"user": userView(u)})
}

// Logout revokes the presented token until it would have expired.
func (h *Handler) Logout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.Revocations != nil && p.TokenID != "" {
		if err := h.Revocations.Revoke(c.Request.Context(), p.TokenID, p.ExpiresAt); err != nil {
			h.Log.Error().Err(err).Str("user_id", p.UserID).Msg("revoke token failed")
			common.Fail(c, http.StatusInternalServerError, "could not log out", err)
			return
		}
	}
	common.OK(c, http.StatusOK, "Logged out", nil)
}
