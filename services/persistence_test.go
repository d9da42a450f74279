package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"journalsync/config"
	"journalsync/models"
)

type memorySheet struct {
	rows      [][]string
	readErr   error
	headerErr error
	failIDs   map[string]bool
	closed    int
}

func (s *memorySheet) Rows(ctx context.Context) ([][]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.rows, nil
}

func (s *memorySheet) AppendRow(ctx context.Context, row []string) error {
	if s.headerErr != nil && reflect.DeepEqual(row, PrimaryHeader) {
		return s.headerErr
	}
	if len(row) > 1 && s.failIDs[row[1]] {
		return errors.New("quota exceeded")
	}
	s.rows = append(s.rows, append([]string(nil), row...))
	return nil
}

func (s *memorySheet) Close() error {
	s.closed++
	return nil
}

type memoryOpener struct {
	sheet   *memorySheet
	openErr error
	opened  []string
}

func (o *memoryOpener) Name() string { return "memory" }

func (o *memoryOpener) Open(ctx context.Context, sheetName string) (Sheet, error) {
	o.opened = append(o.opened, sheetName)
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.sheet, nil
}

func testStoreConfig() config.StoreConfig {
	return config.StoreConfig{SheetName: "Call Logs", PauseEvery: 10, Pause: 2 * time.Second, MaxText: 1000}
}

func testEntries(n int) []models.JournalEntry {
	entries := make([]models.JournalEntry, n)
	for i := range entries {
		entries[i] = models.JournalEntry{
			ID:           fmt.Sprintf("call-%02d", i),
			Date:         "2024-03-01 10:00:00",
			Duration:     float64(i),
			Conversation: "User: entry " + fmt.Sprint(i),
			Summary:      "summary",
		}
	}
	return entries
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return recs
}

func TestPersistIsIdempotent(t *testing.T) {
	sheet := &memorySheet{}
	opener := &memoryOpener{sheet: sheet}
	rec := &sleepRecorder{}
	p := NewDedupPersistence(opener, nil, testStoreConfig(), discardLogger(), WithPersistenceSleeper(rec.sleep))

	entries := testEntries(2)
	n, err := p.Persist(context.Background(), entries)
	if err != nil || n != 2 {
		t.Fatalf("first persist: n=%d err=%v", n, err)
	}
	n, err = p.Persist(context.Background(), entries)
	if err != nil || n != 0 {
		t.Fatalf("second persist: n=%d err=%v", n, err)
	}
	if len(sheet.rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(sheet.rows))
	}
	if !reflect.DeepEqual(sheet.rows[0], PrimaryHeader) {
		t.Fatalf("header = %v", sheet.rows[0])
	}
	if opener.opened[0] != "Call Logs" || sheet.closed != 2 {
		t.Fatalf("opened %v, closed %d", opener.opened, sheet.closed)
	}
	want := []string{"2024-03-01 10:00:00", "call-01", "1", "summary", "User: entry 1", "", "", "", ""}
	if !reflect.DeepEqual(sheet.rows[2], want) {
		t.Fatalf("row = %q, want %q", sheet.rows[2], want)
	}
}

func TestPersistDedupsWithinBatch(t *testing.T) {
	sheet := &memorySheet{}
	p := NewDedupPersistence(&memoryOpener{sheet: sheet}, nil, testStoreConfig(), discardLogger())
	e := testEntries(1)[0]
	n, err := p.Persist(context.Background(), []models.JournalEntry{e, e})
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestPersistSameIDOtherDateIsNew(t *testing.T) {
	sheet := &memorySheet{rows: [][]string{PrimaryHeader, {"2024-03-01 10:00:00", "call-00"}}}
	p := NewDedupPersistence(&memoryOpener{sheet: sheet}, nil, testStoreConfig(), discardLogger())
	e := testEntries(1)[0]
	e.Date = "2024-03-02 10:00:00"
	if n, err := p.Persist(context.Background(), []models.JournalEntry{e}); err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestPersistPausesEveryTenRows(t *testing.T) {
	tests := []struct {
		entries int
		sleeps  int
	}{
		{9, 0},
		{10, 0},
		{11, 1},
		{25, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.entries), func(t *testing.T) {
			rec := &sleepRecorder{}
			p := NewDedupPersistence(&memoryOpener{sheet: &memorySheet{}}, nil, testStoreConfig(), discardLogger(), WithPersistenceSleeper(rec.sleep))
			n, err := p.Persist(context.Background(), testEntries(tt.entries))
			if err != nil || n != tt.entries {
				t.Fatalf("n=%d err=%v", n, err)
			}
			got := rec.recorded()
			if len(got) != tt.sleeps {
				t.Fatalf("sleeps = %v, want %d", got, tt.sleeps)
			}
			for _, d := range got {
				if d != 2*time.Second {
					t.Fatalf("pause = %v", d)
				}
			}
		})
	}
}

func TestPersistTruncatesFreeText(t *testing.T) {
	sheet := &memorySheet{}
	p := NewDedupPersistence(&memoryOpener{sheet: sheet}, nil, testStoreConfig(), discardLogger())
	e := testEntries(1)[0]
	e.Conversation = strings.Repeat("é", 1500)
	e.Insights = strings.Repeat("x", 1001)
	if _, err := p.Persist(context.Background(), []models.JournalEntry{e}); err != nil {
		t.Fatal(err)
	}
	row := sheet.rows[1]
	if utf8.RuneCountInString(row[4]) != 1000 || !utf8.ValidString(row[4]) {
		t.Fatalf("text not truncated to 1000 characters: %d", utf8.RuneCountInString(row[4]))
	}
	if len(row[6]) != 1000 {
		t.Fatalf("insights not truncated: %d", len(row[6]))
	}
}

func TestPersistReportsFailedAppend(t *testing.T) {
	sheet := &memorySheet{failIDs: map[string]bool{"call-01": true}}
	p := NewDedupPersistence(&memoryOpener{sheet: sheet}, nil, testStoreConfig(), discardLogger())
	n, err := p.Persist(context.Background(), testEntries(3))
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "append" || storeErr.Store != "memory" {
		t.Fatalf("expected append StoreError, got %v", err)
	}
	if !strings.Contains(err.Error(), "call-01") {
		t.Fatalf("error should name the missing row: %v", err)
	}
	// the remaining rows were still written
	if len(sheet.rows) != 3 {
		t.Fatalf("rows = %v", sheet.rows)
	}
}

func TestPersistSingleFailedAppendIsNotASkip(t *testing.T) {
	sheet := &memorySheet{failIDs: map[string]bool{"call-00": true}}
	p := NewDedupPersistence(&memoryOpener{sheet: sheet}, nil, testStoreConfig(), discardLogger())
	n, err := p.Persist(context.Background(), testEntries(1))
	if n != 0 || err == nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestPersistFallsBackToCSV(t *testing.T) {
	tests := []struct {
		name   string
		opener *memoryOpener
	}{
		{"open failure", &memoryOpener{openErr: errors.New("auth failed")}},
		{"read failure", &memoryOpener{sheet: &memorySheet{readErr: errors.New("permission denied")}}},
		{"header failure", &memoryOpener{sheet: &memorySheet{headerErr: errors.New("read only")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "journal.csv")
			fallback := NewCSVStore(path, 1000, discardLogger(), nil)
			p := NewDedupPersistence(tt.opener, fallback, testStoreConfig(), discardLogger())

			n, err := p.Persist(context.Background(), testEntries(2))
			if err != nil || n != 2 {
				t.Fatalf("n=%d err=%v", n, err)
			}
			recs := readCSV(t, path)
			if len(recs) != 3 || !reflect.DeepEqual(recs[0], FallbackHeader) {
				t.Fatalf("unexpected csv contents %v", recs)
			}
		})
	}
}

func TestPersistWithoutPrimaryUsesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")
	p := NewDedupPersistence(nil, NewCSVStore(path, 1000, discardLogger(), nil), testStoreConfig(), discardLogger())
	if n, err := p.Persist(context.Background(), testEntries(1)); err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestPersistWithoutAnyStoreFails(t *testing.T) {
	p := NewDedupPersistence(&memoryOpener{openErr: errors.New("down")}, nil, testStoreConfig(), discardLogger())
	_, err := p.Persist(context.Background(), testEntries(1))
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "open" {
		t.Fatalf("expected open StoreError, got %v", err)
	}
}

func TestPersistEmptyBatch(t *testing.T) {
	opener := &memoryOpener{sheet: &memorySheet{}}
	p := NewDedupPersistence(opener, nil, testStoreConfig(), discardLogger())
	if n, err := p.Persist(context.Background(), nil); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if len(opener.opened) != 0 {
		t.Fatal("empty batch must not open the store")
	}
}

func TestExistingKeysSkipsHeader(t *testing.T) {
	keys := existingKeys([][]string{
		PrimaryHeader,
		{"2024-01-01 00:00:00", "a"},
		{"short"},
	})
	if len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
	if _, ok := keys["2024-01-01 00:00:00:a"]; !ok {
		t.Fatalf("keys = %v", keys)
	}
}
