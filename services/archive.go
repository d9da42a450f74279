package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"journalsync/models"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archiver keeps a JSON copy of every raw payload next to its normalized
// entry. A nil *Archiver archives nothing.
type Archiver struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

func NewArchiver(dir string, logger *slog.Logger) *Archiver {
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{dir: dir, now: time.Now, logger: logger}
}

type archiveRecord struct {
	ArchivedAt string              `json:"archived_at"`
	Payload    map[string]any      `json:"payload"`
	Entry      models.JournalEntry `json:"entry"`
}

// Save writes <dir>/<timestamp>_<id>.json and returns its path.
func (a *Archiver) Save(payload map[string]any, entry models.JournalEntry) (string, error) {
	if a == nil {
		return "", nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	now := a.now()
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102_150405"), unsafeFileChars.ReplaceAllString(entry.ID, "_"))
	path := filepath.Join(a.dir, name)

	b, err := json.MarshalIndent(archiveRecord{
		ArchivedAt: now.Format(time.RFC3339),
		Payload:    payload,
		Entry:      entry,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal archive record: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	a.logger.Debug("archived payload", "path", path)
	return path, nil
}
