package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/metrics"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/storage"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

const salesCSV = `fecha,agente,linea_producto,valor_usd
2024-01-15,Ana,Tintas,100.50
2024-02-01,Luis,Papel,N/D
2023-06-01,Ana,Papel,"1,200.00"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(t *testing.T) *config.MainConfig {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	svc, err := New(testConfig(t), opts, nil)
	require.NoError(t, err)
	return svc
}

func openStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ventas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunWithoutSink(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ventas.csv", salesCSV)

	res, err := newService(t, Options{}).Run(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	require.Len(t, res.Table.Rows, 3)
	assert.Equal(t, 1, res.Summary.NullCounts[types.FieldAmount])
	assert.InDelta(t, 1200.0, *res.Table.Rows[2].AmountUSD, 1e-9)
	assert.NotEqual(t, uuid.Nil, res.BatchID)
}

func TestRunPersistsOnce(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ventas.csv", salesCSV)
	store := openStore(t)
	svc := newService(t, Options{Sink: store})
	ctx := context.Background()

	res, err := svc.Run(ctx, path)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 1, res.Skipped, "null amount is not stored")

	res, err = svc.Run(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted, "re-upload is a no-op")
	assert.Equal(t, 2, res.Duplicates)

	rows, err := store.LoadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t)
	svc := newService(t, Options{Sink: store})
	ctx := context.Background()

	_, err := svc.Run(ctx, writeFile(t, dir, "enero.csv", salesCSV))
	require.NoError(t, err)

	next := salesCSV + "2024-03-01,Bea,Tintas,55\n2024-03-01,Bea,Tintas,55\n"
	p, err := svc.Preview(ctx, writeFile(t, dir, "marzo.csv", next))
	require.NoError(t, err)
	assert.Len(t, p.New, 1)
	assert.Len(t, p.Existing, 3, "two stored rows plus one repeated inside the file")
	assert.Equal(t, 1, p.Skipped)

	_, err = newService(t, Options{}).Preview(ctx, filepath.Join(dir, "marzo.csv"))
	assert.Error(t, err)
}

type fakeSink struct {
	rows     []types.CanonicalRow
	batches  []storage.Batch
	batchErr error
}

func (f *fakeSink) InsertIfAbsent(_ context.Context, rows []types.CanonicalRow) (int, int, error) {
	f.rows = append(f.rows, rows...)
	return len(rows), 0, nil
}

func (f *fakeSink) RecordBatch(_ context.Context, b storage.Batch) error {
	f.batches = append(f.batches, b)
	return f.batchErr
}

func TestRunRecordsBatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ventas.csv", salesCSV)
	sink := &fakeSink{}

	res, err := newService(t, Options{Sink: sink, Profile: "sales"}).Run(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, sink.batches, 1)
	b := sink.batches[0]
	assert.Equal(t, res.BatchID, b.ID)
	assert.Equal(t, "ventas.csv", b.SourceFile)
	assert.Equal(t, "sales", b.Profile)
	assert.Equal(t, 3, b.RowsTotal)
	assert.Equal(t, 2, b.Inserted)
	assert.Equal(t, 1, b.Skipped)
	assert.False(t, b.FinishedAt.Before(b.StartedAt))
	for _, row := range sink.rows {
		assert.NotNil(t, row.AmountUSD)
	}
}

func TestRunIgnoresBatchAuditFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ventas.csv", salesCSV)
	sink := &fakeSink{batchErr: errors.New("audit table locked")}

	res, err := newService(t, Options{Sink: sink}).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
}

func TestRunMissingAmountColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ventas.csv", "fecha,agente\n2024-01-01,Ana\n")

	res, err := newService(t, Options{}).Run(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrMissingAmountColumn)
	require.NotNil(t, res)
	require.NotNil(t, res.Summary, "the summary shows which columns were found")
	assert.Equal(t, "fecha", res.Summary.Columns[types.FieldDate])
}

func TestReadUnsupportedFormat(t *testing.T) {
	_, err := newService(t, Options{}).Read("ventas.xls")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRunWorkbook(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Portada"))
	_, err := f.NewSheet("X AGENTE")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("X AGENTE", "A1", &[]any{"CONTPAQ i - Reporte de ventas"}))
	require.NoError(t, f.SetSheetRow("X AGENTE", "A3", &[]any{"Fecha", "Agente", "Ventas USD"}))
	require.NoError(t, f.SetSheetRow("X AGENTE", "A4", &[]any{"2024-05-02", "Ana", 10.5}))

	path := filepath.Join(t.TempDir(), "ventas.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := newService(t, Options{}).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "X AGENTE", res.Table.Sheet)
	require.Len(t, res.Table.Rows, 1)
	assert.Equal(t, 4, res.Table.Rows[0].SourceRow)
	assert.InDelta(t, 10.5, *res.Table.Rows[0].AmountUSD, 1e-9)
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.csv", salesCSV)
	bad := writeFile(t, dir, "b.csv", "agente\nAna\n")
	other := writeFile(t, dir, "c.csv", "fecha,valor_usd\n2024-01-01,5\n")
	rec := metrics.New()

	results := newService(t, Options{Metrics: rec}).RunAll(context.Background(), []string{good, bad, other}, 2)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, other, results[2].FilePath)

	n, err := testutil.GatherAndCount(rec.Registry(), "fradma_files_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ok and error series")
}

func TestRunAllCancelled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", salesCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newService(t, Options{}).RunAll(ctx, []string{path}, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestDiscoverInputFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	writeFile(t, dir, "b.CSV", "")
	writeFile(t, dir, "a.xlsx", "")
	writeFile(t, dir, "notes.pdf", "")
	writeFile(t, filepath.Join(dir, "sub"), "c.txt", "")

	files, err := DiscoverInputFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.xlsx"),
		filepath.Join(dir, "b.CSV"),
		filepath.Join(dir, "sub", "c.txt"),
	}, files)
}

func TestStorable(t *testing.T) {
	rows := []types.CanonicalRow{{AmountUSD: types.Ptr(1.0)}, {}, {AmountUSD: types.Ptr(0.0)}}
	out, skipped := Storable(rows)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, skipped)
}
