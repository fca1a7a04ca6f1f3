// =============================================================================
// CFDI Control - Process Command
// =============================================================================
//
// This file defines the 'process' command, which runs the full pipeline:
// extract every CFDI document, fill the requested month tab, and save a
// timestamped output workbook.
//
// COMMAND USAGE:
//   cfdi-control process --template control.xlsx --year 2025 --month 3 \
//       --input-dir ./facturas [--output-dir ./out] [--strict] [--dry-run]
//
// Documents can come from --input-dir (all *.xml files, sorted by name) or
// be listed as positional arguments; positional order is preserved into
// row order.
//
// On completion a summary is printed; per-document failures are itemized
// and also written to an error log next to the output workbook.
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rcastellanos/cfdi-control/internal/pipeline"
	"github.com/rcastellanos/cfdi-control/pkg/utils"
)

var (
	templatePath string
	year         int
	month        int
	inputDir     string
	outputDir    string
	strict       bool
	dryRun       bool
)

// processCmd represents the 'process' command.
var processCmd = &cobra.Command{
	Use:   "process [invoice.xml ...]",
	Short: "Extract CFDI documents and fill the month tab of a control template",
	Long: `The process command parses every supplied CFDI XML document, fills the
month tab for the requested year and month, and saves a new workbook named
with the period and a generation timestamp.

A document that fails to parse does not stop the batch: the remaining
documents are still written, and all failures are itemized in the summary
and in an error log. Template-level problems (unreadable file, missing
month tabs) abort the run before any output is produced.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(args)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&templatePath, "template", "", "Path to the Excel control template (required)")
	processCmd.Flags().IntVar(&year, "year", 0, "Target year, e.g. 2025 (required)")
	processCmd.Flags().IntVar(&month, "month", 0, "Target month 1-12 (required)")
	processCmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory to scan for *.xml documents")
	processCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (default: template's directory)")
	processCmd.Flags().BoolVar(&strict, "strict", false, "Reject records missing date, total or RFCs")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the pipeline without saving an output file")

	processCmd.MarkFlagRequired("template")
	processCmd.MarkFlagRequired("year")
	processCmd.MarkFlagRequired("month")
}

// consoleSink prints per-document progress as it happens.
type consoleSink struct{}

func (consoleSink) DocumentDone(done, total int, source string, err error) {
	if err != nil {
		fmt.Printf("  ✗ [%d/%d] %s: %v\n", done, total, filepath.Base(source), err)
		return
	}
	fmt.Printf("  ✓ [%d/%d] %s\n", done, total, filepath.Base(source))
}

// runProcess assembles the request and executes one pipeline run.
func runProcess(args []string) error {
	startTime := time.Now()

	if month < 1 || month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1000 || year > 9999 {
		return fmt.Errorf("year must be a four-digit year, got %d", year)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	// Collect documents: directory scan first (sorted), then positional
	// arguments in the order given.
	documents := append([]string(nil), args...)
	if inputDir != "" {
		discovered, err := utils.DiscoverXMLFiles(inputDir)
		if err != nil {
			return err
		}
		documents = append(discovered, documents...)
	}
	if len(documents) == 0 {
		return fmt.Errorf("no documents to process: pass --input-dir or list XML files")
	}

	fmt.Println("=== CFDI Control ===")
	fmt.Printf("Template:  %s\n", templatePath)
	fmt.Printf("Period:    %02d/%d\n", month, year)
	fmt.Printf("Documents: %d\n", len(documents))
	fmt.Println("Processing...")

	pipe, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	result, err := pipe.Run(pipeline.Request{
		TemplatePath: templatePath,
		Year:         year,
		Month:        month,
		Documents:    documents,
		OutputDir:    outputDir,
		Strict:       strict,
		DryRun:       dryRun,
	}, consoleSink{})
	if err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	printSummary(result, elapsed)

	if !dryRun {
		summary := utils.RunSummary{
			RunID:       result.RunID,
			SheetName:   result.SheetName,
			OutputPath:  result.OutputPath,
			RowsWritten: result.RowsWritten,
			Succeeded:   result.Succeeded,
			Failed:      result.Failed,
			Currency:    result.Stats.Currency,
			DateStart:   result.Stats.DateStart,
			DateEnd:     result.Stats.DateEnd,
			Elapsed:     elapsed,
		}
		if !result.Stats.TotalAmount.IsZero() {
			summary.TotalAmount = result.Stats.TotalAmount.StringFixed(2)
		}
		logDir := filepath.Dir(result.OutputPath)
		if _, err := utils.WriteSummaryLog(logDir, summary); err != nil {
			log.Warn().Err(err).Msg("Failed to write summary log")
		}
	}

	if result.Failed > 0 && !dryRun {
		entries := make([]utils.ErrorLogEntry, 0, result.Failed)
		for _, failure := range result.Failures() {
			entries = append(entries, utils.ErrorLogEntry{
				Source: failure.Source,
				Reason: failure.Err.Error(),
			})
		}
		logDir := filepath.Dir(result.OutputPath)
		if logPath, err := utils.WriteErrorLog(logDir, result.RunID, entries); err != nil {
			log.Warn().Err(err).Msg("Failed to write error log")
		} else {
			fmt.Printf("Error log: %s\n", logPath)
		}
	}

	return nil
}

// printSummary prints the end-of-run recap.
func printSummary(result *pipeline.ProcessingResult, elapsed time.Duration) {
	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Sheet:         %s\n", result.SheetName)
	fmt.Printf("Rows written:  %d\n", result.RowsWritten)
	fmt.Printf("Succeeded:     %d\n", result.Succeeded)
	fmt.Printf("Failed:        %d\n", result.Failed)
	if !result.Stats.TotalAmount.IsZero() {
		fmt.Printf("Total amount:  %s %s\n", result.Stats.TotalAmount.StringFixed(2), result.Stats.Currency)
	}
	if result.Stats.DateStart != "" {
		fmt.Printf("Date range:    %s .. %s\n", result.Stats.DateStart, result.Stats.DateEnd)
	}
	if result.OutputPath != "" {
		fmt.Printf("Output:        %s\n", result.OutputPath)
	} else {
		fmt.Println("Output:        (dry run, nothing saved)")
	}
	fmt.Printf("Time elapsed:  %s\n", elapsed)

	for _, failure := range result.Failures() {
		fmt.Printf("  ✗ %s: %v\n", filepath.Base(failure.Source), failure.Err)
	}
}
