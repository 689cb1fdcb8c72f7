// =============================================================================
// Fradma Dashboard - Ingest Command
// =============================================================================
//
// This file defines the 'ingest' command, which reconciles spreadsheets and
// stores their rows in the configured database without duplicates.
//
// COMMAND USAGE:
//   fradma ingest [files...] [flags]
//
// FLAGS:
//   --dir      : Also ingest every spreadsheet under this directory
//   --dry-run  : Report how many rows are new without writing
//   --workers  : Files processed concurrently
//   --archive  : Move ingested files to output.archive_directory
//
// PROCESSING PIPELINE:
//   1. Open the store (sqlite or postgres)
//   2. For each file (concurrently):
//      a. Read and reconcile
//      b. Drop rows with a null amount
//      c. Insert rows whose content hash is new
//      d. Record the batch in ingest_batches
//   3. Archive ingested files and write the run summary
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
	"github.com/B10sp4rt4n/fradma-dashboard/pkg/utils"
)

var (
	dryRun  bool
	workers int
	archive bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Reconcile spreadsheets and store new rows",
	Long: `The ingest command reconciles each spreadsheet and stores its rows in the
configured database. Every row carries a content hash; rows whose hash is
already stored are counted as duplicates and skipped, so uploading the same
file twice changes nothing.

Rows whose amount is null are never stored and are reported as skipped.

Files are processed concurrently and independently: an error in one file
does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&inputDir, "dir", "", "Also ingest every spreadsheet under this directory")
	ingestCmd.Flags().StringVar(&sheetName, "sheet", "", "Force a workbook sheet")
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report new and existing rows without writing")
	ingestCmd.Flags().IntVar(&workers, "workers", 4, "Files processed concurrently")
	ingestCmd.Flags().BoolVar(&archive, "archive", false, "Move ingested files to output.archive_directory")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	paths, err := inputPaths(args)
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if dryRun {
		for _, path := range paths {
			p, err := svc.Preview(ctx, path)
			if err != nil {
				fmt.Fprintf(out, "  ✗ %s: %v\n", filepath.Base(path), err)
				continue
			}
			fmt.Fprintf(out, "  %s: %d new, %d already stored, %d skipped (null amount)\n",
				filepath.Base(path), len(p.New), len(p.Existing), p.Skipped)
		}
		return nil
	}

	fm := fileManager()
	summary := utils.RunSummary{StartTime: start, Profile: profileName}

	for _, res := range svc.RunAll(ctx, paths, workers) {
		name := filepath.Base(res.FilePath)
		if res.Err != nil {
			fmt.Fprintf(out, "  ✗ %s: %v\n", name, res.Err)
			summary.FailedFiles = append(summary.FailedFiles, utils.FailedFileInfo{
				InputFile:    res.FilePath,
				ErrorMessage: res.Err.Error(),
			})
			continue
		}

		fmt.Fprintf(out, "  ✓ %s: %d new, %d duplicates, %d skipped (batch %s)\n",
			name, res.Inserted, res.Duplicates, res.Skipped, res.BatchID)

		fs := utils.FileSummary{
			InputFile:   res.FilePath,
			BatchID:     res.BatchID.String(),
			Rows:        res.Summary.RowsTotal,
			NullAmounts: res.Summary.NullCounts[types.FieldAmount],
			Fallbacks:   res.Summary.FallbackCount,
			Inserted:    res.Inserted,
			Duplicates:  res.Duplicates,
			Skipped:     res.Skipped,
			ProcessTime: res.Duration,
		}
		if archive {
			archived, err := fm.ArchiveInputFile(res.FilePath)
			if err != nil {
				logger.Warn("failed to archive file", "file", res.FilePath, "error", err)
			} else {
				fs.ArchivePath = archived
			}
		}
		summary.Files = append(summary.Files, fs)
	}

	summary.EndTime = time.Now()
	summaryPath, err := utils.WriteSummaryLog(summary, mainConfig.Output.Directory)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nFiles: %d  Successful: %d  Failed: %d  Time: %s\n",
		len(paths), len(summary.Files), len(summary.FailedFiles), summary.EndTime.Sub(start).Round(time.Millisecond))
	fmt.Fprintf(out, "Summary written to %s\n", summaryPath)

	if len(summary.FailedFiles) > 0 {
		return fmt.Errorf("%d of %d file(s) failed", len(summary.FailedFiles), len(paths))
	}
	return nil
}
