// =============================================================================
// Fradma Dashboard - Main Entry Point
// =============================================================================
//
// Entry point for the fradma CLI. All command wiring lives in cmd/.
//
// USAGE:
//   fradma reconcile ventas.xlsx    - Reconcile one spreadsheet and print a summary
//   fradma ingest --dir ./entrada   - Reconcile and persist with deduplication
//   fradma report kpi ventas.xlsx   - Compute a report from one spreadsheet
//   fradma version                  - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : Cobra command definitions
//   - internal/  : Normalization, reconciliation, readers, storage, reports
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/B10sp4rt4n/fradma-dashboard/cmd"
)

func main() {
	cmd.Execute()
}
