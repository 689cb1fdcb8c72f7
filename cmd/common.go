package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/ingest"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/storage"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
	"github.com/B10sp4rt4n/fradma-dashboard/pkg/utils"
)

// sheetName forces a workbook sheet for every command that reads files.
var sheetName string

// inputDir is scanned for input files in addition to the arguments.
var inputDir string

func newService(sink storage.Sink) (*ingest.Service, error) {
	return ingest.New(mainConfig, ingest.Options{
		Profile: profileName,
		Sheet:   sheetName,
		Sink:    sink,
		Metrics: recorder,
	}, logger)
}

// openStore opens the configured store with a friendlier error when
// persistence is switched off.
func openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, mainConfig.Storage)
	if errors.Is(err, storage.ErrDisabled) {
		return nil, fmt.Errorf("%w: set storage.driver to sqlite or postgres", err)
	}
	return store, err
}

// inputPaths merges the arguments with the files found in inputDir.
func inputPaths(args []string) ([]string, error) {
	paths := slices.Clone(args)
	if inputDir != "" {
		found, err := ingest.DiscoverInputFiles(inputDir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, errors.New("no input files: pass file paths or --dir")
	}
	return paths, nil
}

// =============================================================================
// SUMMARY OUTPUT
// =============================================================================

func printSummary(w io.Writer, s *reconcile.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "Source: %s", s.Source)
	if s.Sheet != "" {
		fmt.Fprintf(w, " [%s]", s.Sheet)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  FIELD\tCOLUMN\tNULLS")
	for _, field := range types.Fields {
		column, ok := s.Columns[field]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", field, column, s.NullCounts[field])
	}
	tw.Flush()

	fmt.Fprintf(w, "  Rows: %d  Usable amounts: %d  Converted: %t  Fallback rate used: %d\n",
		s.RowsTotal, s.UsableAmounts(), s.Converted, s.FallbackCount)

	if warnings := s.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(w, "  Warnings: %d\n", len(warnings))
		for _, issue := range warnings[:min(len(warnings), 10)] {
			fmt.Fprintf(w, "    %s\n", issue)
		}
		if len(warnings) > 10 {
			fmt.Fprintf(w, "    ... %d more in the issue log\n", len(warnings)-10)
		}
	}
}

func issueEntries(s *reconcile.Summary) []utils.IssueLogEntry {
	if s == nil {
		return nil
	}
	entries := make([]utils.IssueLogEntry, 0, len(s.Issues))
	for _, issue := range s.Issues {
		entries = append(entries, utils.IssueLogEntry{
			FileName:  s.Source,
			Kind:      string(issue.Kind),
			Severity:  string(issue.Severity),
			RowNumber: issue.Row,
			FieldName: string(issue.Field),
			Value:     issue.Value,
			Message:   issue.Message,
		})
	}
	return entries
}

func fileManager() *utils.FileManager {
	return utils.NewFileManager(mainConfig.Output.Directory, mainConfig.Output.ArchiveDirectory)
}

// outputPath names an export in the output directory.
func outputPath(source, kind, ext string) string {
	return fileManager().OutputPath(mainConfig.Output.FilePattern+"_{kind}", map[string]string{
		"source": source,
		"kind":   strings.ToLower(kind),
	}, ext)
}
