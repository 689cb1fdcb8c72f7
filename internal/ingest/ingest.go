// =============================================================================
// Fradma Dashboard - Ingest Module
// =============================================================================
//
// This module runs the whole pipeline for one input file, from reading the
// spreadsheet to persisting the canonical rows.
//
// INGEST PIPELINE:
//   1. Read the file (delimited text or workbook) into a raw table
//   2. Reconcile it into the canonical table
//   3. Drop rows with a null amount; they are counted, never stored
//   4. Insert the rest if absent (content-hash deduplication)
//   5. Record the batch in the audit table
//
// Steps 3 to 5 run only when a sink is configured. Without one the service
// still reads and reconciles, which is what the reconcile command and the
// report commands use.
//
// CONCURRENCY:
//   A Service is safe for concurrent use; RunAll processes several files at
//   once. Stores serialize their own writes.
//
// =============================================================================

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/csvparser"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/metrics"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/preamble"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/storage"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/xlsxparser"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Extensions lists the input extensions the service reads.
var Extensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result is the outcome of ingesting a single file.
type Result struct {
	// BatchID identifies the ingest in the audit table.
	BatchID uuid.UUID

	// FilePath is the input file.
	FilePath string

	// Table and Summary are the reconciliation output. Summary is set even
	// when reconciliation fails.
	Table   *types.Table
	Summary *reconcile.Summary

	// Persisted is true when a sink received the rows.
	Persisted bool

	Inserted   int
	Duplicates int

	// Skipped counts rows not offered to the sink because their amount is null.
	Skipped int

	Duration time.Duration

	// Err is set by RunAll when the file failed.
	Err error
}

// =============================================================================
// SERVICE
// =============================================================================

// Options configures a Service.
type Options struct {
	// Profile names the reconciliation profile. Defaults to
	// config.DefaultProfile.
	Profile string

	// Sheet forces a workbook sheet, overriding the configuration.
	Sheet string

	// Sink receives the rows. Nil disables persistence. When it also
	// implements RecordBatch, every ingest is audited.
	Sink storage.Sink

	// Metrics records counters. May be nil.
	Metrics *metrics.Recorder
}

type batchRecorder interface {
	RecordBatch(ctx context.Context, batch storage.Batch) error
}

type hashLookup interface {
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)
}

// Service ingests files with one configuration and profile.
type Service struct {
	cfg      *config.MainConfig
	profile  config.Profile
	opts     Options
	rec      *reconcile.Reconciler
	detector *preamble.Detector
	logger   *slog.Logger
}

// New creates a Service.
//
// PARAMETERS:
//   - cfg: The main configuration.
//   - opts: Profile, sheet override, sink and metrics.
//   - logger: Structured logger; nil uses slog.Default().
//
// RETURNS:
//   - The Service, or an error when the profile or the currency settings
//     are invalid.
func New(cfg *config.MainConfig, opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Profile == "" {
		opts.Profile = config.DefaultProfile
	}

	profile, err := cfg.ProfileByName(opts.Profile)
	if err != nil {
		return nil, err
	}
	rec, err := reconcile.FromConfig(cfg, opts.Profile, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		profile:  profile,
		opts:     opts,
		rec:      rec,
		detector: preamble.FromConfig(cfg.Input, rec.Aliases().Score),
		logger:   logger.With("profile", opts.Profile),
	}, nil
}

// =============================================================================
// READING
// =============================================================================

// Read loads path into a raw table, picking the reader by extension.
func (s *Service) Read(path string) (*types.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return csvparser.ParseFile(path, s.cfg.Input.CSV, s.detector)
	case ".xlsx", ".xlsm":
		sheet := s.opts.Sheet
		if sheet == "" {
			sheet = s.cfg.Input.SheetName
		}
		return xlsxparser.ParseFile(path, xlsxparser.Options{
			Sheet:      sheet,
			Sheets:     s.profile.Sheets,
			SheetIndex: s.profile.SheetIndex,
			Detector:   s.detector,
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// Reconcile reads and reconciles path without persisting anything.
func (s *Service) Reconcile(path string) (*types.Table, *reconcile.Summary, error) {
	start := time.Now()
	raw, err := s.Read(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	s.opts.Metrics.ObserveDuration("read", time.Since(start))

	start = time.Now()
	table, summary, err := s.rec.Reconcile(raw)
	s.opts.Metrics.ObserveReconcile(s.opts.Profile, summary)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to reconcile %s: %w", filepath.Base(path), err)
	}
	s.opts.Metrics.ObserveDuration("reconcile", time.Since(start))

	for _, issue := range summary.Warnings() {
		s.logger.Warn(issue.String(), "source", summary.Source)
	}
	return table, summary, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the ingest pipeline for one file.
//
// RETURNS:
//   - A Result describing what was read and stored. It is non-nil even on
//     error so the caller can report the reconciliation summary.
//   - An error if reading, reconciling or persisting failed.
func (s *Service) Run(ctx context.Context, path string) (*Result, error) {
	started := time.Now()
	res := &Result{BatchID: uuid.New(), FilePath: path}

	err := s.run(ctx, res, started)
	res.Duration = time.Since(started)
	s.opts.Metrics.ObserveFile(s.opts.Profile, err == nil)
	if err != nil {
		return res, err
	}

	s.logger.Info("ingested file",
		"file", filepath.Base(path),
		"batch", res.BatchID,
		"rows", res.Summary.RowsTotal,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, res *Result, started time.Time) error {
	table, summary, err := s.Reconcile(res.FilePath)
	res.Table, res.Summary = table, summary
	if err != nil {
		return err
	}

	if s.opts.Sink == nil {
		return nil
	}

	rows, skipped := Storable(table.Rows)
	res.Skipped = skipped

	start := time.Now()
	inserted, duplicates, err := s.opts.Sink.InsertIfAbsent(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", filepath.Base(res.FilePath), err)
	}
	s.opts.Metrics.ObserveDuration("persist", time.Since(start))
	s.opts.Metrics.ObservePersist(inserted, duplicates, skipped)
	res.Persisted, res.Inserted, res.Duplicates = true, inserted, duplicates

	if rec, ok := s.opts.Sink.(batchRecorder); ok {
		batch := storage.Batch{
			ID:         res.BatchID,
			SourceFile: table.Source,
			Sheet:      table.Sheet,
			Profile:    s.opts.Profile,
			RowsTotal:  summary.RowsTotal,
			Inserted:   inserted,
			Duplicates: duplicates,
			Skipped:    skipped,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if err := rec.RecordBatch(ctx, batch); err != nil {
			// The rows are committed; a missing audit row is not worth
			// failing the ingest over.
			s.logger.Warn("failed to record batch", "batch", res.BatchID, "error", err)
		}
	}
	return nil
}

// Storable splits off rows with a null amount, returning the rest and the
// number dropped.
func Storable(rows []types.CanonicalRow) ([]types.CanonicalRow, int) {
	out := make([]types.CanonicalRow, 0, len(rows))
	for _, row := range rows {
		if row.AmountUSD == nil {
			continue
		}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview is what an ingest would do, without writing.
type Preview struct {
	Table   *types.Table
	Summary *reconcile.Summary

	// New and Existing partition the storable rows by whether their hash
	// is already stored.
	New      []types.CanonicalRow
	Existing []types.CanonicalRow

	// Skipped counts rows with a null amount.
	Skipped int
}

// Preview reconciles path and compares its hashes with the store. The sink
// must support hash lookups.
func (s *Service) Preview(ctx context.Context, path string) (*Preview, error) {
	lookup, ok := s.opts.Sink.(hashLookup)
	if !ok {
		return nil, errors.New("preview needs a store that supports hash lookups")
	}

	table, summary, err := s.Reconcile(path)
	if err != nil {
		return nil, err
	}

	rows, skipped := Storable(table.Rows)
	hashes := make([]string, len(rows))
	for i, row := range rows {
		hashes[i] = row.ContentHash
	}
	existing, err := lookup.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to look up hashes: %w", err)
	}

	p := &Preview{Table: table, Summary: summary, Skipped: skipped}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		// A hash repeated inside the file is new once and a duplicate after.
		if existing[row.ContentHash] || seen[row.ContentHash] {
			p.Existing = append(p.Existing, row)
			continue
		}
		seen[row.ContentHash] = true
		p.New = append(p.New, row)
	}
	return p, nil
}

// =============================================================================
// BATCH PROCESSING
// =============================================================================

// RunAll ingests paths with up to workers files in flight. Results keep the
// order of paths; failures are reported in Result.Err and do not stop the
// other files.
func (s *Service) RunAll(ctx context.Context, paths []string, workers int) []*Result {
	if workers <= 0 {
		workers = 1
	}

	results := make([]*Result, len(paths))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{FilePath: path, Err: err}
				return nil
			}
			res, err := s.Run(ctx, path)
			res.Err = err
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// DiscoverInputFiles lists the readable files under dir, sorted by path.
func DiscoverInputFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}
