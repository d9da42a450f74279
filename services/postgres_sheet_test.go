package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/lib/pq"

	"journalsync/config"
)

// scriptedConn answers ExecContext from a fixed list of errors, then succeeds.
type scriptedConn struct {
	errs  []error
	execs int
}

func (c *scriptedConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.execs++
	if c.execs <= len(c.errs) {
		return nil, c.errs[c.execs-1]
	}
	return driverResult(1), nil
}

func (c *scriptedConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (c *scriptedConn) Close() error { return nil }

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestPostgresAppendRowConflicts(t *testing.T) {
	dup := &pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"}
	tests := []struct {
		name      string
		errs      []error
		wantExecs int
		wantErr   bool
	}{
		{name: "no conflict", wantExecs: 1},
		{name: "retried after a concurrent insert", errs: []error{dup}, wantExecs: 2},
		{name: "gives up after repeated conflicts", errs: []error{dup, dup, dup, dup, dup, dup}, wantExecs: maxAppendConflicts + 1, wantErr: true},
		{name: "other errors are not retried", errs: []error{&pq.Error{Code: "42P01"}}, wantExecs: 1, wantErr: true},
		{name: "plain error", errs: []error{errors.New("connection reset")}, wantExecs: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptedConn{errs: tt.errs}
			s := &postgresSheet{db: conn, table: pq.QuoteIdentifier("journal_rows"), sheet: "Call Logs"}
			err := s.AppendRow(context.Background(), []string{"a", "b"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if conn.execs != tt.wantExecs {
				t.Fatalf("execs = %d, want %d", conn.execs, tt.wantExecs)
			}
		})
	}
}

func TestWithSSLMode(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":                   "postgres://u:p@localhost/db?sslmode=disable",
		"postgres://u:p@localhost/db?connect_timeout=5": "postgres://u:p@localhost/db?connect_timeout=5&sslmode=disable",
		"postgres://localhost/db?sslmode=require":       "postgres://localhost/db?sslmode=require",
		"host=localhost dbname=journal":                 "host=localhost dbname=journal sslmode=disable",
	}
	for in, want := range tests {
		if got := withSSLMode(in); got != want {
			t.Fatalf("withSSLMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewPostgresSheetOpenerRequiresDSN(t *testing.T) {
	if _, err := NewPostgresSheetOpener(config.PostgresConfig{}, discardLogger()); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestPostgresOpenFailsFast(t *testing.T) {
	o, err := NewPostgresSheetOpener(config.PostgresConfig{DSN: "postgres://journal@127.0.0.1:1/journal?connect_timeout=1"}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.Open(ctx, "Call Logs"); err == nil {
		t.Fatal("expected ping failure")
	}
}

// Runs against a real database when JOURNAL_TEST_POSTGRES_DSN is set.
func TestPostgresSheetIntegration(t *testing.T) {
	dsn := os.Getenv("JOURNAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOURNAL_TEST_POSTGRES_DSN not set")
	}
	table := fmt.Sprintf("journal_rows_test_%d", time.Now().UnixNano())
	o, err := NewPostgresSheetOpener(config.PostgresConfig{DSN: dsn, Table: table}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sheet, err := o.Open(ctx, "Call Logs")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		s := sheet.(*postgresSheet)
		_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table)
		sheet.Close()
	}()

	p := NewDedupPersistence(o, nil, testStoreConfig(), discardLogger())
	entries := testEntries(2)
	if n, err := p.Persist(ctx, entries); err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if n, err := p.Persist(ctx, entries); err != nil || n != 0 {
		t.Fatalf("second: n=%d err=%v", n, err)
	}
	rows, err := sheet.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || !reflect.DeepEqual(rows[0], PrimaryHeader) {
		t.Fatalf("rows = %v", rows)
	}
}
