// =============================================================================
// Fradma Dashboard - Reconcile Command
// =============================================================================
//
// COMMAND USAGE:
//   fradma reconcile [files...] [flags]
//
// FLAGS:
//   --dir         : Also reconcile every spreadsheet under this directory
//   --sheet       : Force a workbook sheet
//   --export-csv  : Write each canonical table as CSV to the output directory
//   --export-xlsx : Write each canonical table as a workbook
//   --issue-log   : Write the row-level issues to the output directory
//
// Nothing is persisted. A file that fails reconciliation is reported and the
// command exits non-zero after the remaining files.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/export"
	"github.com/B10sp4rt4n/fradma-dashboard/pkg/utils"
)

var (
	exportCSV  bool
	exportXLSX bool
	issueLog   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [files...]",
	Short: "Reconcile spreadsheets into the canonical schema and print a summary",
	Long: `The reconcile command reads each spreadsheet, resolves its columns against
the alias table, cleans and converts amounts and prints which columns were
found, how many values are null and which rows could not be parsed.

Nothing is stored. Use --export-csv to inspect the canonical rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&inputDir, "dir", "", "Also reconcile every spreadsheet under this directory")
	reconcileCmd.Flags().StringVar(&sheetName, "sheet", "", "Force a workbook sheet")
	reconcileCmd.Flags().BoolVar(&exportCSV, "export-csv", false, "Write each canonical table as CSV")
	reconcileCmd.Flags().BoolVar(&exportXLSX, "export-xlsx", false, "Write each canonical table as a workbook")
	reconcileCmd.Flags().BoolVar(&issueLog, "issue-log", false, "Write row-level issues to the output directory")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	paths, err := inputPaths(args)
	if err != nil {
		return err
	}
	svc, err := newService(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	var entries []utils.IssueLogEntry

	for _, path := range paths {
		table, summary, err := svc.Reconcile(path)
		printSummary(out, summary)
		entries = append(entries, issueEntries(summary)...)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %v\n\n", err)
			continue
		}

		if exportCSV {
			dest := outputPath(path, "canonical", ".csv")
			if err := export.WriteCSVFile(dest, table.Rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "  -> %s\n", dest)
		}
		if exportXLSX {
			f, err := export.CanonicalWorkbook(table)
			if err != nil {
				return err
			}
			dest := outputPath(path, "canonical", ".xlsx")
			if err := export.Save(f, dest); err != nil {
				return err
			}
			fmt.Fprintf(out, "  -> %s\n", dest)
		}
		fmt.Fprintln(out)
	}

	if issueLog {
		logPath, err := utils.WriteIssueLog(entries, mainConfig.Output.Directory)
		if err != nil {
			return err
		}
		if logPath != "" {
			fmt.Fprintf(out, "Issues written to %s\n", logPath)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed reconciliation", failed, len(paths))
	}
	return nil
}
