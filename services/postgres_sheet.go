package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"journalsync/config"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

const postgresPingTimeout = 5 * time.Second

// PostgresSheetOpener keeps sheets in one table of (sheet, row_index, cells).
// Each Open dials a fresh connection pool that Close releases.
type PostgresSheetOpener struct {
	dsn    string
	table  string
	openDB sqlOpenFunc
	logger *slog.Logger
}

func NewPostgresSheetOpener(cfg config.PostgresConfig, logger *slog.Logger) (*PostgresSheetOpener, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	table := cfg.Table
	if table == "" {
		table = "journal_rows"
	}
	return &PostgresSheetOpener{
		dsn:    withSSLMode(cfg.DSN),
		table:  table,
		openDB: sql.Open,
		logger: logger,
	}, nil
}

// withSSLMode disables TLS unless the DSN chooses a mode itself.
func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&sslmode=disable"
		}
		return dsn + "?sslmode=disable"
	}
	return dsn + " sslmode=disable"
}

func (o *PostgresSheetOpener) Name() string { return "postgres" }

func (o *PostgresSheetOpener) Open(ctx context.Context, sheetName string) (Sheet, error) {
	db, err := o.openDB("postgres", o.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	table := pq.QuoteIdentifier(o.table)
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            sheet     TEXT    NOT NULL,
            row_index INTEGER NOT NULL,
            cells     TEXT[]  NOT NULL,
            PRIMARY KEY (sheet, row_index)
        )`, table))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure table %s: %w", o.table, err)
	}
	o.logger.Debug("postgres sheet opened", "table", o.table, "sheet", sheetName)
	return &postgresSheet{db: db, table: table, sheet: sheetName}, nil
}

// sqlConn is the part of *sql.DB a sheet handle uses.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// uniqueViolation is the SQLSTATE of a duplicate (sheet, row_index).
const uniqueViolation = "23505"

type postgresSheet struct {
	db    sqlConn
	table string // quoted
	sheet string
}

func (s *postgresSheet) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT cells FROM %s WHERE sheet = $1 ORDER BY row_index`, s.table), s.sheet)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells pq.StringArray
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		out = append(out, []string(cells))
	}
	return out, rows.Err()
}

func (s *postgresSheet) AppendRow(ctx context.Context, row []string) error {
	query := fmt.Sprintf(`
        INSERT INTO %[1]s (sheet, row_index, cells)
        SELECT $1, COALESCE(MAX(row_index), -1) + 1, $2::text[]
        FROM %[1]s WHERE sheet = $1
    `, s.table)
	for conflicts := 0; ; conflicts++ {
		_, err := s.db.ExecContext(ctx, query, s.sheet, pq.StringArray(row))
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && conflicts < maxAppendConflicts {
			// a concurrent writer took the same row index
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save row to postgres: %w", err)
		}
		return nil
	}
}

func (s *postgresSheet) Close() error {
	return s.db.Close()
}
