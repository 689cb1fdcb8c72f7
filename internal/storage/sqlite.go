package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ventas_items (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_row          TEXT    NOT NULL UNIQUE,
	hoja              TEXT    NOT NULL DEFAULT '',
	fila              INTEGER NOT NULL DEFAULT 0,
	fecha             TEXT,
	anio              INTEGER,
	mes               INTEGER,
	factura           TEXT    NOT NULL DEFAULT '',
	orden_compra      TEXT    NOT NULL DEFAULT '',
	cliente           TEXT    NOT NULL DEFAULT '',
	agente            TEXT    NOT NULL DEFAULT '',
	linea_producto    TEXT    NOT NULL DEFAULT '',
	clave_producto    TEXT    NOT NULL DEFAULT '',
	cantidad          REAL,
	unidad            TEXT    NOT NULL DEFAULT '',
	importe_usd       REAL    NOT NULL,
	moneda_origen     TEXT    NOT NULL DEFAULT '',
	tipo_cambio       REAL,
	fecha_vencimiento TEXT,
	dias_vencido      INTEGER,
	created_at        TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ventas_items_fecha ON ventas_items (fecha);

CREATE TABLE IF NOT EXISTS ingest_batches (
	id          TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	sheet       TEXT NOT NULL DEFAULT '',
	profile     TEXT NOT NULL DEFAULT '',
	rows_total  INTEGER NOT NULL,
	inserted    INTEGER NOT NULL,
	duplicates  INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
`

// existingChunk bounds the IN list of ExistingHashes below SQLite's
// host-parameter limit.
const existingChunk = 500

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB

	// mu serializes writers; SQLite allows one at a time anyway.
	mu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertIfAbsent implements Sink with INSERT OR IGNORE on UNIQUE(hash_row).
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, rows []types.CanonicalRow) (int, int, error) {
	if err := validateRows(rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("INSERT OR IGNORE INTO ventas_items (%s) VALUES (%s)",
		strings.Join(itemColumns, ", "), placeholders(len(itemColumns), false))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted, duplicates := 0, 0
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, rowValues(row, sqliteDate)...)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert source row %d: %w", row.SourceRow, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n == 1 {
			inserted++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, duplicates, nil
}

// RecordBatch implements Store.
func (s *SQLiteStore) RecordBatch(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_batches
			(id, source_file, sheet, profile, rows_total, inserted, duplicates, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.SourceFile, b.Sheet, b.Profile, b.RowsTotal, b.Inserted, b.Duplicates, b.Skipped,
		b.StartedAt.UTC().Format(time.RFC3339), b.FinishedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}
	return nil
}

// ExistingHashes implements Store.
func (s *SQLiteStore) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)

	for start := 0; start < len(hashes); start += existingChunk {
		chunk := hashes[start:min(start+existingChunk, len(hashes))]
		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT hash_row FROM ventas_items WHERE hash_row IN ("+placeholders(len(chunk), false)+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query hashes: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, err
			}
			found[h] = true
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return found, nil
}

// LoadRows implements Store.
func (s *SQLiteStore) LoadRows(ctx context.Context) ([]types.CanonicalRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(itemColumns, ", ")+" FROM ventas_items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}
	defer rows.Close()

	var out []types.CanonicalRow
	for rows.Next() {
		var (
			row                    types.CanonicalRow
			date, due              sql.NullString
			year, month, days      sql.NullInt64
			quantity, amount, rate sql.NullFloat64
		)
		if err := rows.Scan(
			&row.ContentHash, &row.Sheet, &row.SourceRow, &date, &year, &month,
			&row.InvoiceID, &row.PurchaseOrder, &row.Customer, &row.Agent, &row.ProductLine, &row.ProductCode,
			&quantity, &row.Unit, &amount, &row.OriginCurrency, &rate, &due, &days,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row.Date = parseSQLiteDate(date)
		row.DueDate = parseSQLiteDate(due)
		row.Year = nullInt(year)
		row.Month = nullInt(month)
		row.DaysOverdue = nullInt(days)
		row.Quantity = nullFloat(quantity)
		row.AmountUSD = nullFloat(amount)
		row.ExchangeRate = nullFloat(rate)

		out = append(out, row)
	}
	return out, rows.Err()
}

func sqliteDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func parseSQLiteDate(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.DateOnly, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return types.Ptr(int(v.Int64))
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return types.Ptr(v.Float64)
}
