package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the store to allow mocking in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS ventas_items (
		id                BIGSERIAL PRIMARY KEY,
		hash_row          TEXT NOT NULL UNIQUE,
		hoja              TEXT NOT NULL DEFAULT '',
		fila              INTEGER NOT NULL DEFAULT 0,
		fecha             DATE,
		anio              INTEGER,
		mes               INTEGER,
		factura           TEXT NOT NULL DEFAULT '',
		orden_compra      TEXT NOT NULL DEFAULT '',
		cliente           TEXT NOT NULL DEFAULT '',
		agente            TEXT NOT NULL DEFAULT '',
		linea_producto    TEXT NOT NULL DEFAULT '',
		clave_producto    TEXT NOT NULL DEFAULT '',
		cantidad          DOUBLE PRECISION,
		unidad            TEXT NOT NULL DEFAULT '',
		importe_usd       DOUBLE PRECISION NOT NULL,
		moneda_origen     TEXT NOT NULL DEFAULT '',
		tipo_cambio       DOUBLE PRECISION,
		fecha_vencimiento DATE,
		dias_vencido      INTEGER,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ventas_items_fecha ON ventas_items (fecha)`,
	`CREATE TABLE IF NOT EXISTS ingest_batches (
		id          UUID PRIMARY KEY,
		source_file TEXT NOT NULL,
		sheet       TEXT NOT NULL DEFAULT '',
		profile     TEXT NOT NULL DEFAULT '',
		rows_total  INTEGER NOT NULL,
		inserted    INTEGER NOT NULL,
		duplicates  INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
}

var (
	insertItemQuery = fmt.Sprintf(
		"INSERT INTO ventas_items (%s) VALUES (%s) ON CONFLICT (hash_row) DO NOTHING",
		strings.Join(itemColumns, ", "), placeholders(len(itemColumns), true))

	insertBatchQuery = `INSERT INTO ingest_batches
		(id, source_file, sheet, profile, rows_total, inserted, duplicates, skipped, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	existingHashesQuery = `SELECT hash_row FROM ventas_items WHERE hash_row = ANY($1)`

	loadRowsQuery = "SELECT " + strings.Join(itemColumns, ", ") + " FROM ventas_items ORDER BY id"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	pgpool PgxPool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool. The schema is not touched; call
// Migrate or use OpenPostgres.
func NewPostgresStore(pgpool PgxPool) *PostgresStore {
	return &PostgresStore{pgpool: pgpool}
}

// OpenPostgres connects to dsn and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pgpool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pgpool.Close()
	return nil
}

// InsertIfAbsent implements Sink with ON CONFLICT (hash_row) DO NOTHING.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, rows []types.CanonicalRow) (int, int, error) {
	if err := validateRows(rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pgpool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	inserted, duplicates := 0, 0
	for _, row := range rows {
		tag, err := tx.Exec(ctx, insertItemQuery, rowValues(row, postgresDate)...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, 0, fmt.Errorf("failed to insert source row %d: %w", row.SourceRow, err)
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, duplicates, nil
}

// RecordBatch implements Store.
func (s *PostgresStore) RecordBatch(ctx context.Context, b Batch) error {
	_, err := s.pgpool.Exec(ctx, insertBatchQuery,
		b.ID, b.SourceFile, b.Sheet, b.Profile, b.RowsTotal, b.Inserted, b.Duplicates, b.Skipped,
		b.StartedAt, b.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}
	return nil
}

// ExistingHashes implements Store.
func (s *PostgresStore) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(hashes) == 0 {
		return found, nil
	}

	rows, err := s.pgpool.Query(ctx, existingHashesQuery, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	stored, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read hashes: %w", err)
	}
	for _, h := range stored {
		found[h] = true
	}
	return found, nil
}

// LoadRows implements Store.
func (s *PostgresStore) LoadRows(ctx context.Context) ([]types.CanonicalRow, error) {
	rows, err := s.pgpool.Query(ctx, loadRowsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.CanonicalRow, error) {
		var r types.CanonicalRow
		err := row.Scan(
			&r.ContentHash, &r.Sheet, &r.SourceRow, &r.Date, &r.Year, &r.Month,
			&r.InvoiceID, &r.PurchaseOrder, &r.Customer, &r.Agent, &r.ProductLine, &r.ProductCode,
			&r.Quantity, &r.Unit, &r.AmountUSD, &r.OriginCurrency, &r.ExchangeRate, &r.DueDate, &r.DaysOverdue,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return out, nil
}

func postgresDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
