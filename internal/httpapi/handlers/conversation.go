package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/echo-chat/internal/chat"
	"github.com/suPer8Hu/echo-chat/internal/common"
)

func (h *Handler) History(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	summaries, err := h.Chat.ListHistory(c.Request.Context(), p.UserID, c.Param("userId"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "ok", gin.H{
		"count":         len(summaries),
		"conversations": summaries,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	conv, err := h.Chat.GetConversation(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}

	msgs := make([]gin.H, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, gin.H{
			"role":      chat.PromptRole(m.Role),
			"content":   m.Content,
			"createdAt": m.CreatedAt,
		})
	}
	common.OK(c, http.StatusOK, "ok", gin.H{
		"conversation": gin.H{
			"id":           conv.ID,
			"title":        conv.Title,
			"messages":     msgs,
			"lastActivity": conv.LastActivity,
			"createdAt":    conv.CreatedAt,
		},
	})
}

type renameReq struct {
	Title string `json:"title"`
}

func (h *Handler) RenameConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req renameReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Chat.RenameConversation(c.Request.Context(), p.UserID, c.Param("id"), req.Title); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "Conversation renamed successfully", nil)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.Chat.DeleteConversation(c.Request.Context(), p.UserID, c.Param("id")); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "Conversation deleted successfully", nil)
}
