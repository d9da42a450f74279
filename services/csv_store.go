package services

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"journalsync/metrics"
	"journalsync/models"
)

// appendFile is the part of *os.File the store writes through.
type appendFile interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Close() error
}

func openAppend(path string) (appendFile, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// CSVStore is the flat-file fallback. It dedups on the identifier column only.
type CSVStore struct {
	path    string
	maxText int
	open    func(path string) (appendFile, error)
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

func NewCSVStore(path string, maxText int, logger *slog.Logger, m *metrics.Metrics) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{path: path, maxText: maxText, open: openAppend, logger: logger, metrics: m}
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Persist(ctx context.Context, entries []models.JournalEntry) (added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.existingIDs()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, &StoreError{Store: "csv", Op: "open", Err: err}
		}
	}
	f, err := s.open(s.path)
	if err != nil {
		return 0, &StoreError{Store: "csv", Op: "open", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &StoreError{Store: "csv", Op: "close", Err: cerr}
		}
	}()

	w := csv.NewWriter(f)
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		if err := w.Write(FallbackHeader); err != nil {
			return 0, &StoreError{Store: "csv", Op: "header", Err: err}
		}
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, ok := existing[e.ID]; ok {
			s.logger.Info("skipping existing entry", "store", "csv", "date", e.Date, "id", e.ID)
			s.metrics.RowSkipped("csv")
			continue
		}
		if err := w.Write(fallbackRow(e, s.maxText)); err != nil {
			return added, &StoreError{Store: "csv", Op: "append", Err: err}
		}
		existing[e.ID] = struct{}{}
		added++
		s.metrics.RowWritten("csv")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return added, &StoreError{Store: "csv", Op: "append", Err: err}
	}
	s.logger.Info("csv store updated", "path", s.path, "added", added)
	return added, ctx.Err()
}

// existingIDs reads the id column ("Call ID", then "ID", else the second
// column). A read error leaves the set empty.
func (s *CSVStore) existingIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("reading existing csv", "path", s.path, "err", err)
		}
		return ids
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("reading csv header", "path", s.path, "err", err)
		}
		return ids
	}
	col := idColumn(header)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warn("reading csv record", "path", s.path, "err", err)
			break
		}
		if col < len(rec) && rec[col] != "" {
			ids[rec[col]] = struct{}{}
		}
	}
	return ids
}

func idColumn(header []string) int {
	for _, name := range []string{"Call ID", "ID", "Conversation ID"} {
		for i, h := range header {
			if h == name {
				return i
			}
		}
	}
	return 1
}
