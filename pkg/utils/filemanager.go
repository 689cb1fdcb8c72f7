// =============================================================================
// Fradma Dashboard - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the CLI, including:
//   - Output directory management and file naming
//   - Archival of input files after a successful ingest
//   - Issue log and run summary generation
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to the archive directory after they are ingested
//   - Failed files remain in their original location
//   - Issue logs and summaries are created in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// now is replaced in tests.
var now = time.Now

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the CLI.
type FileManager struct {
	// OutputDir receives exports, issue logs and summaries.
	OutputDir string

	// ArchiveDir receives ingested input files. Empty disables archival.
	ArchiveDir string

	// UseDateSubdirs creates date-based subdirectories in the archive.
	// Example: archive/2024/01/15/ventas.xlsx
	UseDateSubdirs bool
}

// NewFileManager creates a FileManager with the specified directories.
func NewFileManager(outputDir, archiveDir string) *FileManager {
	return &FileManager{
		OutputDir:  outputDir,
		ArchiveDir: archiveDir,
	}
}

// EnsureDirectories creates the output and archive directories if they
// don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.OutputDir, fm.ArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// OutputPath joins the output directory and a generated file name.
func (fm *FileManager) OutputPath(format string, params map[string]string, ext string) string {
	return filepath.Join(fm.OutputDir, GenerateOutputFileName(format, params, ext))
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file, or filePath unchanged when archival is
//     disabled.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if fm.ArchiveDir == "" {
		return filePath, nil
	}

	archivePath := fm.archivePath(filePath)
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Never overwrite an earlier upload of the same name.
	if FileExists(archivePath) {
		ext := filepath.Ext(archivePath)
		archivePath = strings.TrimSuffix(archivePath, ext) + "_" + now().Format("20060102_150405") + ext
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Rename fails across devices; fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

func (fm *FileManager) archivePath(filePath string) string {
	fileName := filepath.Base(filePath)
	if fm.UseDateSubdirs {
		t := now()
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", t.Year()),
			fmt.Sprintf("%02d", t.Month()),
			fmt.Sprintf("%02d", t.Day()),
			fileName,
		)
	}
	return filepath.Join(fm.ArchiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates an output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {source}    - Input file name without extension, from params
//     plus any other key present in params.
//   - params: A map of placeholder values.
//   - ext: The extension to enforce, e.g. ".csv" or ".xlsx".
//
// RETURNS:
//   - The generated file name. Characters unsafe in file names are replaced
//     with underscores.
//
// EXAMPLE:
//
//	format: "{source}_{report}_{date}"
//	params: {"source": "ventas 2024.xlsx", "report": "kpi"}
//	output: "ventas_2024_kpi_20240115.xlsx"
func GenerateOutputFileName(format string, params map[string]string, ext string) string {
	t := now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": t.Format("20060102_150405"),
		"{date}":      t.Format("20060102"),
		"{source}":    "",
	}
	for key, value := range params {
		if key == "source" {
			value = strings.TrimSuffix(filepath.Base(value), filepath.Ext(value))
		}
		replacements["{"+key+"}"] = value
	}

	// Longest placeholder first so "{source}" never eats part of a longer key.
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })

	result := format
	for _, k := range keys {
		result = strings.ReplaceAll(result, k, replacements[k])
	}
	result = sanitize(result)

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(ext)) {
		result += ext
	}
	return result
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// =============================================================================
// ISSUE LOG GENERATION
// =============================================================================

// IssueLogEntry is one row-level finding of a reconciliation.
type IssueLogEntry struct {
	FileName  string
	Kind      string
	Severity  string
	RowNumber int
	FieldName string
	Value     string
	Message   string
}

// WriteIssueLog writes issue entries to a log file in outputDir.
//
// RETURNS:
//   - The path to the log file, or "" when there is nothing to write.
//   - An error if writing fails.
func WriteIssueLog(entries []IssueLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	t := now()
	logPath := filepath.Join(outputDir, fmt.Sprintf("issue_log_%s.txt", t.Format("20060102_150405")))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create issue log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Fradma Dashboard - Issue Log\n"+
		"Generated: %s\n"+
		"Total Issues: %d\n"+
		"%s\n\n",
		t.Format("2006-01-02 15:04:05"), len(entries), rule)

	for i, entry := range entries {
		fmt.Fprintf(writer, "Issue #%d\n"+
			"  File:       %s\n"+
			"  Kind:       %s\n"+
			"  Severity:   %s\n"+
			"  Message:    %s\n",
			i+1, entry.FileName, entry.Kind, entry.Severity, entry.Message)
		if entry.RowNumber > 0 {
			fmt.Fprintf(writer, "  Row Number: %d\n", entry.RowNumber)
		}
		if entry.FieldName != "" {
			fmt.Fprintf(writer, "  Field:      %s\n", entry.FieldName)
		}
		if entry.Value != "" {
			fmt.Fprintf(writer, "  Value:      %s\n", entry.Value)
		}
		writer.WriteString("\n")
	}

	writer.WriteString(rule + "\nEnd of Issue Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush issue log: %w", err)
	}
	return logPath, nil
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

const rule = "================================================================================"

// RunSummary describes one CLI run over one or more files.
type RunSummary struct {
	StartTime   time.Time
	EndTime     time.Time
	Profile     string
	Files       []FileSummary
	FailedFiles []FailedFileInfo
}

// FileSummary describes one successfully processed file.
type FileSummary struct {
	InputFile   string
	ArchivePath string
	BatchID     string
	Rows        int
	NullAmounts int
	Fallbacks   int
	Inserted    int
	Duplicates  int
	Skipped     int
	ProcessTime time.Duration
}

// FailedFileInfo describes a file that could not be processed.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a run summary to a file in outputDir.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary RunSummary, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("run_summary_%s.txt", now().Format("20060102_150405")))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := writeSummary(file, summary); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return summaryPath, nil
}

func writeSummary(w io.Writer, summary RunSummary) error {
	writer := bufio.NewWriter(w)

	var rows, inserted, duplicates, skipped int
	for _, f := range summary.Files {
		rows += f.Rows
		inserted += f.Inserted
		duplicates += f.Duplicates
		skipped += f.Skipped
	}

	fmt.Fprintf(writer, "Fradma Dashboard - Run Summary\n"+
		"%s\n\n"+
		"Run Information:\n"+
		"  Start Time:   %s\n"+
		"  End Time:     %s\n"+
		"  Duration:     %s\n"+
		"  Profile:      %s\n\n"+
		"Statistics:\n"+
		"  Total Files:  %d\n"+
		"  Successful:   %d\n"+
		"  Failed:       %d\n"+
		"  Rows:         %d\n"+
		"  Inserted:     %d\n"+
		"  Duplicates:   %d\n"+
		"  Skipped:      %d\n\n",
		rule,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime),
		summary.Profile,
		len(summary.Files)+len(summary.FailedFiles),
		len(summary.Files),
		len(summary.FailedFiles),
		rows, inserted, duplicates, skipped)

	if len(summary.Files) > 0 {
		writer.WriteString("Successful Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, f := range summary.Files {
			fmt.Fprintf(writer, "  Input:        %s\n", f.InputFile)
			if f.ArchivePath != "" {
				fmt.Fprintf(writer, "  Archived:     %s\n", f.ArchivePath)
			}
			if f.BatchID != "" {
				fmt.Fprintf(writer, "  Batch:        %s\n", f.BatchID)
			}
			fmt.Fprintf(writer, "  Rows:         %d (null amounts: %d, fallback rate: %d)\n", f.Rows, f.NullAmounts, f.Fallbacks)
			fmt.Fprintf(writer, "  Stored:       %d new, %d duplicates, %d skipped\n", f.Inserted, f.Duplicates, f.Skipped)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", f.ProcessTime)
		}
	}

	if len(summary.FailedFiles) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFiles {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString(rule + "\nEnd of Summary\n")
	return writer.Flush()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
