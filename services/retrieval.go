package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"journalsync/config"
	"journalsync/metrics"
)

// Endpoint is one candidate bulk-history list endpoint.
type Endpoint struct {
	Path     string
	Type     string
	ItemsKey string
}

// DefaultEndpoints are tried in order; the first one that yields any item wins.
var DefaultEndpoints = []Endpoint{
	{Path: "/v1/history", Type: "standard", ItemsKey: "history"},
	{Path: "/v1/call-logs", Type: "call_logs", ItemsKey: "call_logs"},
	{Path: "/v1/calls", Type: "calls", ItemsKey: "calls"},
	{Path: "/v1/agent/calls", Type: "agent_calls", ItemsKey: "calls"},
}

const defaultRateLimitWait = 60 * time.Second

// Sleeper blocks the calling goroutine for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetrievalEngine pulls conversation history in bulk from ElevenLabs.
type RetrievalEngine struct {
	client            *resty.Client
	baseURL           string
	apiKey            string
	endpoints         []Endpoint
	pageSize          int
	maxRetries        int
	maxRateLimitWaits int
	sleep             Sleeper
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

type RetrievalOption func(*RetrievalEngine)

func WithSleeper(s Sleeper) RetrievalOption {
	return func(e *RetrievalEngine) { e.sleep = s }
}

func WithEndpoints(eps []Endpoint) RetrievalOption {
	return func(e *RetrievalEngine) { e.endpoints = eps }
}

func WithHTTPClient(c *http.Client) RetrievalOption {
	return func(e *RetrievalEngine) { e.client = newElevenLabsResty(resty.NewWithClient(c)) }
}

func WithRetrievalMetrics(m *metrics.Metrics) RetrievalOption {
	return func(e *RetrievalEngine) { e.metrics = m }
}

func NewRetrievalEngine(cfg config.ElevenLabsConfig, logger *slog.Logger, opts ...RetrievalOption) *RetrievalEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RetrievalEngine{
		client:            newElevenLabsResty(resty.New().SetTimeout(cfg.Timeout)),
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		endpoints:         DefaultEndpoints,
		pageSize:          cfg.PageSize,
		maxRetries:        cfg.MaxRetries,
		maxRateLimitWaits: cfg.MaxRateLimitWaits,
		sleep:             sleepContext,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pageSize <= 0 {
		e.pageSize = 100
	}
	if e.maxRetries <= 0 {
		e.maxRetries = 3
	}
	if e.maxRateLimitWaits <= 0 {
		e.maxRateLimitWaits = 10
	}
	return e
}

func newElevenLabsResty(c *resty.Client) *resty.Client {
	return c.SetHeader("accept", "application/json").SetRetryCount(0)
}

// FetchHistory returns the raw items of the first endpoint that yields any,
// in page order, or nil when every endpoint comes back empty. HTTP failures
// are logged, never returned.
func (e *RetrievalEngine) FetchHistory(ctx context.Context) []any {
	for _, ep := range e.endpoints {
		if ctx.Err() != nil {
			return nil
		}
		items := e.fetchEndpoint(ctx, ep)
		if len(items) > 0 {
			e.logger.Info("history retrieved", "endpoint", ep.Path, "items", len(items))
			e.metrics.ObserveItems(ep.Path, len(items))
			return items
		}
		e.logger.Debug("endpoint produced no items", "endpoint", ep.Path)
	}
	e.logger.Info("no history found on any endpoint")
	return nil
}

type pageOutcome int

const (
	pageOK pageOutcome = iota
	pageNotFound
	pageFailed
)

func (e *RetrievalEngine) fetchEndpoint(ctx context.Context, ep Endpoint) (items []any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("endpoint handling panicked", "endpoint", ep.Path, "panic", fmt.Sprint(r))
			items = nil
		}
	}()

	for page := 1; ; page++ {
		body, outcome := e.fetchPage(ctx, ep, page)
		if outcome != pageOK {
			return items
		}
		pageItems := extractItems(body, ep)
		if len(pageItems) == 0 {
			e.logger.Debug("no items in response", "endpoint", ep.Path, "page", page)
			return items
		}
		items = append(items, pageItems...)
		e.logger.Debug("page retrieved", "endpoint", ep.Path, "page", page, "items", len(pageItems), "total", len(items))
		if !hasMore(body) {
			return items
		}
	}
}

// fetchPage requests one page with the retry budget. Rate-limit waits retry
// the same page without spending an attempt.
func (e *RetrievalEngine) fetchPage(ctx context.Context, ep Endpoint, page int) (map[string]any, pageOutcome) {
	url := e.baseURL + ep.Path
	rateWaits := 0
	for attempt := 0; ; {
		resp, err := e.client.R().
			SetContext(ctx).
			SetHeader("xi-api-key", e.apiKey).
			SetQueryParams(map[string]string{
				"page_size": strconv.Itoa(e.pageSize),
				"page":      strconv.Itoa(page),
			}).
			Get(url)

		var failure error
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, pageFailed
			}
			failure = err
		case resp.StatusCode() == http.StatusNotFound:
			e.metrics.ObserveRequest(ep.Path, "not_found")
			e.logger.Debug("endpoint not found", "endpoint", url)
			return nil, pageNotFound
		case resp.StatusCode() == http.StatusTooManyRequests:
			e.metrics.ObserveRequest(ep.Path, "rate_limited")
			rateWaits++
			if rateWaits > e.maxRateLimitWaits {
				e.logger.Warn("rate limit persisted, abandoning endpoint", "endpoint", url, "waits", rateWaits-1)
				return nil, pageFailed
			}
			wait := retryAfter(resp.Header().Get("Retry-After"))
			e.logger.Warn("rate limit reached", "endpoint", url, "page", page, "wait", wait)
			if e.sleep(ctx, wait) != nil {
				return nil, pageFailed
			}
			continue
		case resp.StatusCode() >= 200 && resp.StatusCode() <= 299:
			var body map[string]any
			if err := json.Unmarshal(resp.Body(), &body); err != nil {
				e.metrics.ObserveRequest(ep.Path, "bad_body")
				e.logger.Warn("history response is not a JSON object", "endpoint", url, "err", err)
				return nil, pageFailed
			}
			e.metrics.ObserveRequest(ep.Path, "ok")
			return body, pageOK
		default:
			failure = &FetchError{Op: "history", URL: url, Status: resp.StatusCode()}
		}

		e.metrics.ObserveRequest(ep.Path, "error")
		e.logger.Warn("history request failed", "endpoint", url, "page", page, "attempt", attempt+1, "err", failure)
		if attempt >= e.maxRetries-1 {
			e.logger.Error("giving up on endpoint", "endpoint", url, "attempts", e.maxRetries)
			return nil, pageFailed
		}
		wait := backoff(attempt)
		e.logger.Info("retrying", "endpoint", url, "in", wait)
		if e.sleep(ctx, wait) != nil {
			return nil, pageFailed
		}
		attempt++
	}
}

// backoff is 2^attempt seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return defaultRateLimitWait
	}
	return time.Duration(seconds) * time.Second
}

func extractItems(body map[string]any, ep Endpoint) []any {
	if items, ok := list(body, ep.ItemsKey); ok && len(items) > 0 {
		return items
	}
	items, _ := list(body, "items")
	return items
}

// hasMore trusts an explicit has_more flag; next is only read without one.
func hasMore(body map[string]any) bool {
	if v, ok := body["has_more"]; ok {
		b, _ := v.(bool)
		return b
	}
	return body["next"] != nil
}
