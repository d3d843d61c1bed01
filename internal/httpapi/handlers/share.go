package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/metrics"
	"github.com/suPer8Hu/echo-chat/internal/share"
)

type createShareReq struct {
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	ConversationID string     `json:"conversationId"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

func (h *Handler) CreateShare(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createShareReq
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.Shares.CreateSnapshot(c.Request.Context(), share.CreateInput{
		Question:       req.Question,
		Answer:         req.Answer,
		OwnerID:        p.UserID,
		ConversationID: req.ConversationID,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	metrics.SharesCreatedTotal.Inc()

	common.OK(c, http.StatusCreated, "Conversation shared successfully", gin.H{
		"data": gin.H{
			"shareId":   snap.Slug,
			"shareUrl":  h.shareURL(snap.Slug),
			"createdAt": snap.CreatedAt,
			"expiresAt": snap.ExpiresAt,
		},
	})
}

// GetShare is public; each successful read counts as one view.
func (h *Handler) GetShare(c *gin.Context) {
	snap, err := h.Shares.GetSnapshot(c.Request.Context(), c.Param("slug"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	metrics.ShareViewsTotal.Inc()

	common.OK(c, http.StatusOK, "ok", gin.H{
		"data": gin.H{
			"shareId":   snap.Slug,
			"question":  snap.Question,
			"answer":    snap.Answer,
			"createdAt": snap.CreatedAt,
			"views":     snap.Views,
		},
	})
}

func (h *Handler) DeleteShare(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.Shares.DeactivateSnapshot(c.Request.Context(), c.Param("slug"), p.UserID); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "Shared conversation deleted successfully", nil)
}

func (h *Handler) ListUserShares(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	previews, err := h.Shares.ListByOwner(c.Request.Context(), p.UserID, c.Param("userId"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "ok", gin.H{
		"count": len(previews),
		"data":  previews,
	})
}
