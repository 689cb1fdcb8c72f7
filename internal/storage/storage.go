// =============================================================================
// Fradma Dashboard - Persistence Sink
// =============================================================================
//
// This module persists canonical rows without duplicates. Every row carries a
// content hash (package rowkey); the table has a UNIQUE constraint on it and
// inserts skip rows whose hash is already stored. Re-uploading the same file
// is therefore a no-op.
//
// DRIVERS:
//   - sqlite   : a local file, pure-Go driver (modernc.org/sqlite)
//   - postgres : a shared database through pgxpool
//   - none     : persistence disabled
//
// =============================================================================

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

var (
	// ErrDisabled is returned by Open when the driver is "none".
	ErrDisabled = errors.New("storage disabled")

	// ErrInvalidRow is returned when a row lacks the hash or the amount.
	// Such rows are never stored, so the batch is rejected up front.
	ErrInvalidRow = errors.New("row cannot be stored")
)

// Sink stores rows whose content hash is not stored yet.
type Sink interface {
	// InsertIfAbsent stores each row whose hash is new and counts the rest
	// as duplicates. inserted + duplicates == len(rows) on success. The
	// whole call is one transaction.
	InsertIfAbsent(ctx context.Context, rows []types.CanonicalRow) (inserted, duplicates int, err error)
}

// Store is a Sink with the audit and read operations the CLI uses.
type Store interface {
	Sink

	// RecordBatch writes one ingest_batches audit row.
	RecordBatch(ctx context.Context, batch Batch) error

	// ExistingHashes reports which of hashes are already stored.
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)

	// LoadRows returns every stored row in insertion order.
	LoadRows(ctx context.Context) ([]types.CanonicalRow, error)

	Close() error
}

// Batch is the audit record of one ingest.
type Batch struct {
	ID         uuid.UUID
	SourceFile string
	Sheet      string
	Profile    string
	RowsTotal  int
	Inserted   int
	Duplicates int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open opens the store selected by cfg and creates its schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case config.DriverNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// validateRows rejects rows that cannot satisfy the table constraints.
func validateRows(rows []types.CanonicalRow) error {
	for i := range rows {
		switch {
		case rows[i].ContentHash == "":
			return fmt.Errorf("%w: source row %d has no content hash", ErrInvalidRow, rows[i].SourceRow)
		case rows[i].AmountUSD == nil:
			return fmt.Errorf("%w: source row %d has no amount", ErrInvalidRow, rows[i].SourceRow)
		}
	}
	return nil
}

// itemColumns is the column order shared by inserts and reads.
var itemColumns = []string{
	"hash_row",
	"hoja",
	"fila",
	"fecha",
	"anio",
	"mes",
	"factura",
	"orden_compra",
	"cliente",
	"agente",
	"linea_producto",
	"clave_producto",
	"cantidad",
	"unidad",
	"importe_usd",
	"moneda_origen",
	"tipo_cambio",
	"fecha_vencimiento",
	"dias_vencido",
}

// placeholders renders n bind parameters, "?" style or "$n" style.
func placeholders(n int, numbered bool) string {
	parts := make([]string, n)
	for i := range parts {
		if numbered {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// rowValues flattens a row in itemColumns order. dates converts nullable
// dates to the driver's preferred representation.
func rowValues(row types.CanonicalRow, dates func(*time.Time) any) []any {
	return []any{
		row.ContentHash,
		row.Sheet,
		row.SourceRow,
		dates(row.Date),
		nullable(row.Year),
		nullable(row.Month),
		row.InvoiceID,
		row.PurchaseOrder,
		row.Customer,
		row.Agent,
		row.ProductLine,
		row.ProductCode,
		nullable(row.Quantity),
		row.Unit,
		nullable(row.AmountUSD),
		row.OriginCurrency,
		nullable(row.ExchangeRate),
		dates(row.DueDate),
		nullable(row.DaysOverdue),
	}
}

// nullable turns a nil pointer into an untyped NULL parameter.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
