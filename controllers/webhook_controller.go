package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"journalsync/services"
)

type WebhookController struct {
	ingestor *services.Ingestor
	logger   *slog.Logger
}

func NewWebhookController(ingestor *services.Ingestor, logger *slog.Logger) *WebhookController {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookController{ingestor: ingestor, logger: logger}
}

// HandleWebhook ingests one agent payload. A body that only names a
// conversation_id is resolved through the ElevenLabs API first.
func (wc *WebhookController) HandleWebhook(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		wc.logger.Warn("invalid webhook body", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "request body must be a JSON object"})
		return
	}

	var (
		result services.IngestResult
		err    error
	)
	if id := conversationOnly(payload); id != "" && wc.ingestor.CanFetch() {
		wc.logger.Info("webhook carries only a conversation id, fetching details", "conversation_id", id)
		result, err = wc.ingestor.IngestConversation(c.Request.Context(), id)
	} else {
		result, err = wc.ingestor.IngestPayload(c.Request.Context(), payload)
	}

	if err != nil {
		var fetchErr *services.FetchError
		if errors.As(err, &fetchErr) {
			wc.logger.Error("conversation lookup failed", "err", err)
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "failed to retrieve conversation details"})
			return
		}
		wc.logger.Error("webhook ingestion failed", "id", result.Entry.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to store journal entry", "id": result.Entry.ID})
		return
	}

	message := "Journal entry stored"
	if result.RowsAdded == 0 {
		message = "Journal entry already stored"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    message,
		"id":         result.Entry.ID,
		"rows_added": result.RowsAdded,
		"shape":      result.Entry.Shape,
	})
}

func (wc *WebhookController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": services.GetCurrentTimestamp(time.Now()),
	})
}

// conversationOnly returns the conversation_id of a body without transcript.
func conversationOnly(p map[string]any) string {
	id, _ := p["conversation_id"].(string)
	if strings.TrimSpace(id) == "" {
		return ""
	}
	for _, key := range []string{"transcript", "conversation", "text", "messages"} {
		if _, ok := p[key]; ok {
			return ""
		}
	}
	return id
}
