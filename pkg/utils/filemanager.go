// =============================================================================
// CFDI Control - File Manager Utility
// =============================================================================
//
// This module provides file-system helpers around the pipeline:
//   - XML document discovery in an input directory
//   - Directory management
//   - Error log generation (itemized per-document failures)
//   - Run summary generation
//
// Logs are written next to the output workbook so a run leaves a complete,
// self-describing trail: workbook + summary + error log (when needed).
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectory creates the directory if it does not exist.
func EnsureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// =============================================================================
// DOCUMENT DISCOVERY
// =============================================================================

// DiscoverXMLFiles returns the XML files directly inside dir, sorted by
// name. The sort keeps batch order deterministic: input order drives row
// order in the output workbook.
func DiscoverXMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// =============================================================================
// ERROR LOG
// =============================================================================

// ErrorLogEntry is one itemized document failure.
type ErrorLogEntry struct {
	Source string
	Reason string
}

// WriteErrorLog writes an itemized failure log into dir and returns its
// path. runID ties the log to its ProcessingResult.
func WriteErrorLog(dir, runID string, entries []ErrorLogEntry) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(dir, fmt.Sprintf("cfdi_errors_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "CFDI Control - Error Log\n")
	fmt.Fprintf(writer, "Run:       %s\n", runID)
	fmt.Fprintf(writer, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(writer, "Failures:  %d\n\n", len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "#%d  %s\n    %s\n", i+1, entry.Source, entry.Reason)
	}

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}
	return logPath, nil
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary is the human-readable recap of one pipeline run.
type RunSummary struct {
	RunID       string
	SheetName   string
	OutputPath  string
	RowsWritten int
	Succeeded   int
	Failed      int
	TotalAmount string
	Currency    string
	DateStart   string
	DateEnd     string
	Elapsed     time.Duration
}

// WriteSummaryLog writes the run summary into dir and returns its path.
func WriteSummaryLog(dir string, summary RunSummary) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("cfdi_summary_%s.txt", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "CFDI Control - Run Summary\n")
	fmt.Fprintf(writer, "Run:          %s\n", summary.RunID)
	fmt.Fprintf(writer, "Sheet:        %s\n", summary.SheetName)
	fmt.Fprintf(writer, "Output:       %s\n", summary.OutputPath)
	fmt.Fprintf(writer, "Rows written: %d\n", summary.RowsWritten)
	fmt.Fprintf(writer, "Succeeded:    %d\n", summary.Succeeded)
	fmt.Fprintf(writer, "Failed:       %d\n", summary.Failed)
	if summary.TotalAmount != "" {
		fmt.Fprintf(writer, "Total amount: %s %s\n", summary.TotalAmount, summary.Currency)
	}
	if summary.DateStart != "" {
		fmt.Fprintf(writer, "Date range:   %s .. %s\n", summary.DateStart, summary.DateEnd)
	}
	fmt.Fprintf(writer, "Elapsed:      %s\n", summary.Elapsed)

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary log: %w", err)
	}
	return path, nil
}
