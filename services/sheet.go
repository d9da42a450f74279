package services

import (
	"context"
	"strconv"
	"unicode/utf8"

	"journalsync/models"
)

// Sheet is a scoped handle on one named table of rows in the primary store.
type Sheet interface {
	Rows(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, row []string) error
	Close() error
}

// SheetOpener connects to the primary store and authenticates.
type SheetOpener interface {
	Name() string
	Open(ctx context.Context, sheetName string) (Sheet, error)
}

// PrimaryHeader is the column order of the primary store.
var PrimaryHeader = []string{
	"Date", "Call ID", "Duration (sec)", "Summary", "Text",
	"Major Events", "Insights", "Action Items", "Mood",
}

// FallbackHeader is the column order of the CSV fallback file.
var FallbackHeader = []string{
	"Date", "ID", "Duration (sec)", "Summary", "Text",
	"Major Events", "Mood", "Insights", "Action Items",
}

func primaryRow(e models.JournalEntry, max int) []string {
	return []string{
		e.Date,
		e.ID,
		formatDuration(e.Duration),
		truncate(summaryOrPlaceholder(e.Summary), max),
		truncate(e.Conversation, max),
		truncate(e.MajorEvents, max),
		truncate(e.Insights, max),
		truncate(e.ActionItems, max),
		truncate(e.Mood, max),
	}
}

func fallbackRow(e models.JournalEntry, max int) []string {
	return []string{
		e.Date,
		e.ID,
		formatDuration(e.Duration),
		truncate(summaryOrPlaceholder(e.Summary), max),
		truncate(e.Conversation, max),
		truncate(e.MajorEvents, max),
		truncate(e.Mood, max),
		truncate(e.Insights, max),
		truncate(e.ActionItems, max),
	}
}

// existingKeys builds "<date>:<id>" keys from stored rows, skipping the header.
func existingKeys(rows [][]string) map[string]struct{} {
	keys := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		if i == 0 && row[0] == PrimaryHeader[0] {
			continue
		}
		keys[models.DedupKey(row[0], row[1])] = struct{}{}
	}
	return keys
}

func summaryOrPlaceholder(s string) string {
	if s == "" {
		return NoSummary
	}
	return s
}

func formatDuration(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// truncate cuts s to at most max characters; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
