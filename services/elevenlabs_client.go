package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"journalsync/config"
)

// ConversationFetcher loads the full details of one agent conversation.
type ConversationFetcher interface {
	FetchConversation(ctx context.Context, conversationID string) (map[string]any, error)
}

type ElevenLabsClient struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewElevenLabsClient(cfg config.ElevenLabsConfig, logger *slog.Logger) *ElevenLabsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsClient{
		client:  newElevenLabsResty(resty.New().SetTimeout(cfg.Timeout)),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// FetchConversation GETs /v1/convai/conversations/{id}.
func (c *ElevenLabsClient) FetchConversation(ctx context.Context, conversationID string) (map[string]any, error) {
	u := c.baseURL + "/v1/convai/conversations/" + url.PathEscape(conversationID)
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", c.apiKey).
		Get(u)
	if err != nil {
		return nil, &FetchError{Op: "conversation", URL: u, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("conversation lookup failed", "id", conversationID, "status", resp.StatusCode())
		return nil, &FetchError{Op: "conversation", URL: u, Status: resp.StatusCode()}
	}
	var data map[string]any
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, &FetchError{Op: "conversation", URL: u, Err: err}
	}
	if _, ok := data["conversation_id"]; !ok {
		data["conversation_id"] = conversationID
	}
	c.logger.Info("conversation retrieved", "id", conversationID)
	return data, nil
}
