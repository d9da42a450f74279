package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"journalsync/models"
)

// ErrFetcherUnavailable is returned when a conversation lookup is requested
// without an ElevenLabs key.
var ErrFetcherUnavailable = errors.New("conversation fetcher not configured")

// HistoryFetcher returns raw history items; it never fails.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context) []any
}

// Ingestor runs the two ingestion modes: one webhook payload, or a bulk
// history sync.
type Ingestor struct {
	normalizer *Normalizer
	history    HistoryFetcher
	fetcher    ConversationFetcher
	persister  Persister
	archiver   *Archiver
	logger     *slog.Logger
}

type IngestResult struct {
	Entry     models.JournalEntry
	RowsAdded int
}

// NewIngestor wires the pipeline. history, fetcher and archiver may be nil.
func NewIngestor(n *Normalizer, history HistoryFetcher, fetcher ConversationFetcher, p Persister, a *Archiver, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		normalizer: n,
		history:    history,
		fetcher:    fetcher,
		persister:  p,
		archiver:   a,
		logger:     logger,
	}
}

func (in *Ingestor) CanFetch() bool {
	return in.fetcher != nil
}

// IngestPayload normalizes and persists a single payload.
func (in *Ingestor) IngestPayload(ctx context.Context, payload map[string]any) (IngestResult, error) {
	entry := in.normalizer.Normalize(ctx, payload)
	in.logger.Info("processing entry", "id", entry.ID, "date", entry.Date, "shape", entry.Shape)

	if _, err := in.archiver.Save(payload, entry); err != nil {
		in.logger.Warn("archiving payload", "id", entry.ID, "err", err)
	}

	n, err := in.persister.Persist(ctx, []models.JournalEntry{entry})
	if err != nil {
		return IngestResult{Entry: entry, RowsAdded: n}, fmt.Errorf("persist entry %s: %w", entry.ID, err)
	}
	return IngestResult{Entry: entry, RowsAdded: n}, nil
}

// IngestConversation looks up a conversation by id and ingests it.
func (in *Ingestor) IngestConversation(ctx context.Context, conversationID string) (IngestResult, error) {
	if in.fetcher == nil {
		return IngestResult{}, ErrFetcherUnavailable
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return IngestResult{}, errors.New("conversation id is empty")
	}
	payload, err := in.fetcher.FetchConversation(ctx, conversationID)
	if err != nil {
		return IngestResult{}, err
	}
	return in.IngestPayload(ctx, payload)
}

// SyncHistory fetches the bulk history, normalizes every item on its own and
// persists the batch in one call.
func (in *Ingestor) SyncHistory(ctx context.Context) (int, error) {
	if in.history == nil {
		return 0, errors.New("history fetcher not configured")
	}
	items := in.history.FetchHistory(ctx)
	if len(items) == 0 {
		in.logger.Info("no history items to process")
		return 0, nil
	}

	entries := make([]models.JournalEntry, 0, len(items))
	for i, item := range items {
		payload, ok := item.(map[string]any)
		if !ok {
			in.logger.Warn("skipping non-object history item", "index", i, "type", fmt.Sprintf("%T", item))
			continue
		}
		entry, ok := in.normalizeItem(ctx, i, payload)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	in.logger.Info("history normalized", "items", len(items), "entries", len(entries))

	n, err := in.persister.Persist(ctx, entries)
	if err != nil {
		return n, fmt.Errorf("persist history: %w", err)
	}
	in.logger.Info("history sync finished", "rows_added", n)
	return n, nil
}

func (in *Ingestor) normalizeItem(ctx context.Context, i int, payload map[string]any) (entry models.JournalEntry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("skipping history item", "index", i, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return in.normalizer.Normalize(ctx, payload), true
}
