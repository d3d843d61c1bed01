package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/echo-chat/internal/chat"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/metrics"
)

type sendMessageReq struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Persona        string `json:"persona"`
}

func turnOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrModelUnavailable):
		return "model_error"
	default:
		return "error"
	}
}

func turnMetadata(res *chat.TurnResult) gin.H {
	return gin.H{
		"title":        res.Title,
		"messageCount": res.MessageCount,
		"persona":      res.Persona,
		"model":        res.Model,
	}
}

func (h *Handler) SendMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Chat.SendMessage(c.Request.Context(), chat.TurnInput{
		UserID:         p.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Persona:        req.Persona,
	})
	metrics.TurnsTotal.WithLabelValues("sync", turnOutcome(err)).Inc()
	if res != nil && res.Created {
		metrics.ConversationsCreatedTotal.Inc()
	}
	if err != nil {
		if res != nil && res.ConversationID != "" {
			common.FailErr(c, err, gin.H{"conversationId": res.ConversationID})
			return
		}
		common.FailErr(c, err)
		return
	}

	common.OK(c, http.StatusOK, "Message sent successfully", gin.H{
		"response":       res.Response,
		"conversationId": res.ConversationID,
		"metadata":       turnMetadata(res),
	})
}

// SendMessageStream answers over SSE: a meta event, chunk events, then done
// or error. Pings keep idle connections open.
func (h *Handler) SendMessageStream(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	stream, err := h.Chat.SendMessageStream(ctx, chat.TurnInput{
		UserID:         p.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Persona:        req.Persona,
	})
	if stream != nil && stream.Created {
		metrics.ConversationsCreatedTotal.Inc()
	}
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("stream", turnOutcome(err)).Inc()
		if stream != nil && stream.ConversationID != "" {
			common.FailErr(c, err, gin.H{"conversationId": stream.ConversationID})
			return
		}
		common.FailErr(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	writeJSON("meta", gin.H{"conversationId": stream.ConversationID, "created": stream.Created})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	chunks := stream.Chunks
	for chunks != nil {
		select {
		case delta, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{"delta": delta})
		case <-ticker.C:
			writeJSON("ping", gin.H{"ts": time.Now().Unix()})
		case <-ctx.Done():
			metrics.TurnsTotal.WithLabelValues("stream", "cancelled").Inc()
			return
		}
	}

	out := <-stream.Outcome
	metrics.TurnsTotal.WithLabelValues("stream", turnOutcome(out.Err)).Inc()
	if out.Err != nil {
		if ctx.Err() != nil {
			return
		}
		writeJSON("error", gin.H{
			"message":        common.MessageFor(out.Err),
			"conversationId": stream.ConversationID,
		})
		return
	}
	writeJSON("done", gin.H{
		"conversationId": out.Result.ConversationID,
		"metadata":       turnMetadata(out.Result),
	})
}

type titleReq struct {
	Message string `json:"message"`
}

func (h *Handler) GenerateTitle(c *gin.Context) {
	var req titleReq
	if !bindJSON(c, &req) {
		return
	}
	title, err := h.Chat.SuggestTitle(c.Request.Context(), req.Message)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, "ok", gin.H{"title": title})
}
