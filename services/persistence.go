package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"journalsync/config"
	"journalsync/metrics"
	"journalsync/models"
)

// Persister appends journal entries that are not stored yet.
type Persister interface {
	Persist(ctx context.Context, entries []models.JournalEntry) (int, error)
}

// DedupPersistence writes to the primary sheet and redirects the whole batch
// to the CSV store when the sheet cannot be opened or read.
type DedupPersistence struct {
	primary    SheetOpener
	sheetName  string
	fallback   *CSVStore
	pauseEvery int
	pause      time.Duration
	maxText    int
	sleep      Sleeper
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type PersistenceOption func(*DedupPersistence)

func WithPersistenceSleeper(s Sleeper) PersistenceOption {
	return func(p *DedupPersistence) { p.sleep = s }
}

func WithPersistenceMetrics(m *metrics.Metrics) PersistenceOption {
	return func(p *DedupPersistence) { p.metrics = m }
}

// NewDedupPersistence wires the stores. primary may be nil, in which case
// every batch goes to the CSV store.
func NewDedupPersistence(primary SheetOpener, fallback *CSVStore, cfg config.StoreConfig, logger *slog.Logger, opts ...PersistenceOption) *DedupPersistence {
	if logger == nil {
		logger = slog.Default()
	}
	p := &DedupPersistence{
		primary:    primary,
		sheetName:  cfg.SheetName,
		fallback:   fallback,
		pauseEvery: cfg.PauseEvery,
		pause:      cfg.Pause,
		maxText:    cfg.MaxText,
		sleep:      sleepContext,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist returns the number of rows actually appended. The existing-key set
// is read from the store on every call. Rows that fail to append do not stop
// the batch but are reported as an append StoreError with the partial count.
func (p *DedupPersistence) Persist(ctx context.Context, entries []models.JournalEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if p.primary == nil {
		return p.toFallback(ctx, entries, nil)
	}

	sheet, err := p.primary.Open(ctx, p.sheetName)
	if err != nil {
		return p.toFallback(ctx, entries, &StoreError{Store: p.primary.Name(), Op: "open", Err: err})
	}
	defer func() {
		if err := sheet.Close(); err != nil {
			p.logger.Warn("closing sheet", "store", p.primary.Name(), "err", err)
		}
	}()

	keys, err := p.prepare(ctx, sheet)
	if err != nil {
		return p.toFallback(ctx, entries, err)
	}
	return p.appendNew(ctx, sheet, keys, entries)
}

// prepare writes the header into an empty sheet and loads the existing keys.
func (p *DedupPersistence) prepare(ctx context.Context, sheet Sheet) (map[string]struct{}, error) {
	rows, err := sheet.Rows(ctx)
	if err != nil {
		return nil, &StoreError{Store: p.primary.Name(), Op: "read", Err: err}
	}
	if len(rows) == 0 {
		if err := sheet.AppendRow(ctx, PrimaryHeader); err != nil {
			return nil, &StoreError{Store: p.primary.Name(), Op: "header", Err: err}
		}
	}
	return existingKeys(rows), nil
}

func (p *DedupPersistence) appendNew(ctx context.Context, sheet Sheet, keys map[string]struct{}, entries []models.JournalEntry) (int, error) {
	store := p.primary.Name()
	added := 0
	var failed []string
	for i, e := range entries {
		key := e.Key()
		if _, ok := keys[key]; ok {
			p.logger.Info("skipping existing entry", "date", e.Date, "id", e.ID)
			p.metrics.RowSkipped(store)
			continue
		}
		if err := sheet.AppendRow(ctx, primaryRow(e, p.maxText)); err != nil {
			p.logger.Error("appending row", "store", store, "id", e.ID, "err", err)
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			failed = append(failed, e.ID)
			continue
		}
		keys[key] = struct{}{}
		added++
		p.metrics.RowWritten(store)
		p.logger.Info("added entry", "store", store, "date", e.Date, "id", e.ID)

		if p.pauseEvery > 0 && added%p.pauseEvery == 0 && i < len(entries)-1 {
			if err := p.sleep(ctx, p.pause); err != nil {
				return added, err
			}
		}
	}
	if len(failed) > 0 {
		return added, &StoreError{Store: store, Op: "append", Err: fmt.Errorf("%d of %d rows not written: %s", len(failed), len(entries), strings.Join(failed, ", "))}
	}
	return added, nil
}

func (p *DedupPersistence) toFallback(ctx context.Context, entries []models.JournalEntry, cause error) (int, error) {
	if cause != nil {
		p.logger.Warn("primary store unavailable, falling back to CSV", "err", cause)
		p.metrics.StoreFallback()
	}
	if p.fallback == nil {
		if cause == nil {
			return 0, fmt.Errorf("no store configured")
		}
		return 0, cause
	}
	n, err := p.fallback.Persist(ctx, entries)
	if err != nil {
		return n, fmt.Errorf("fallback store: %w", err)
	}
	return n, nil
}
