package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"journalsync/config"
)

type PerplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type PerplexitySummarizer struct {
	client    *resty.Client
	url       string
	apiKey    string
	model     string
	maxTokens int
}

func NewPerplexitySummarizer(cfg config.SummarizerConfig) *PerplexitySummarizer {
	return &PerplexitySummarizer{
		client:    resty.New().SetTimeout(cfg.Timeout),
		url:       cfg.PerplexityURL,
		apiKey:    cfg.PerplexityAPIKey,
		model:     cfg.PerplexityModel,
		maxTokens: cfg.MaxTokens,
	}
}

func (s *PerplexitySummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("nothing to summarize")
	}
	requestBody := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": summarySystemPrompt},
			{"role": "user", "content": summaryPrompt(text)},
		},
		"max_tokens":  s.maxTokens,
		"temperature": 0.2,
		"stream":      false,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(requestBody).
		Post(s.url)
	if err != nil {
		return "", fmt.Errorf("perplexity request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("perplexity status %d: %s", resp.StatusCode(), truncate(strings.TrimSpace(resp.String()), 200))
	}

	var result PerplexityResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) > 0 && result.Choices[0].Message.Content != "" {
		return strings.TrimSpace(result.Choices[0].Message.Content), nil
	}
	return "", errors.New("no content in response")
}
