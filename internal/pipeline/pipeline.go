// =============================================================================
// CFDI Control - Pipeline Orchestrator
// =============================================================================
//
// This module wires the extractor and the populator into one run:
//
//   Load template -> Resolve month tab -> Extract documents ->
//   (strict validation) -> Fill rows -> Save output
//
// FAILURE SEMANTICS:
//   - Template-level failures (load, resolve, save) abort the run; no
//     output file is produced.
//   - Per-document extraction failures are collected and itemized; the
//     batch continues and the surviving records are written.
//   - Zero surviving records still clears and saves the (empty) month tab.
//     This mirrors long-standing behavior and is warn-logged; callers that
//     find it surprising can check ProcessingResult.Succeeded first.
//
// The pipeline is single-threaded and synchronous: Run returns only when
// the output file exists (or the run failed). The workbook handle is
// released on every exit path.
//
// =============================================================================

package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rcastellanos/cfdi-control/internal/config"
	"github.com/rcastellanos/cfdi-control/internal/extractor"
	"github.com/rcastellanos/cfdi-control/internal/mapping"
	"github.com/rcastellanos/cfdi-control/internal/populator"
	"github.com/rcastellanos/cfdi-control/internal/validation"
)

// =============================================================================
// REQUEST AND RESULT TYPES
// =============================================================================

// Request describes one pipeline run. Documents are processed, and written
// to the sheet, in the order given.
type Request struct {
	TemplatePath string
	Year         int
	Month        int
	Documents    []string

	// OutputDir overrides the default of the template's directory.
	OutputDir string

	// Strict applies the validation policy to extracted records.
	Strict bool

	// DryRun stops after Fill; nothing is persisted.
	DryRun bool
}

// DocumentOutcome is the per-document entry of a ProcessingResult.
type DocumentOutcome struct {
	// Source is the document path.
	Source string

	// Row is the sheet row the record was written to (0 when failed).
	Row int

	// Err is the extraction or validation failure, nil on success.
	Err error
}

// Stats are presentation-only aggregates over the written records.
type Stats struct {
	// TotalAmount is the exact sum of the invoice totals.
	TotalAmount decimal.Decimal

	// Currency is the (single) currency seen across records, or "" when
	// absent or mixed.
	Currency string

	// DateStart and DateEnd bound the issue dates (ISO strings compare
	// lexicographically).
	DateStart string
	DateEnd   string
}

// ProcessingResult aggregates one run's outcome. Nothing in the pipeline
// depends on it; it exists for the presentation layer.
type ProcessingResult struct {
	RunID       string
	SheetName   string
	OutputPath  string
	RowsWritten int
	Succeeded   int
	Failed      int
	Outcomes    []DocumentOutcome
	Stats       Stats
	Elapsed     time.Duration
}

// Failures returns only the failed outcomes, in input order.
func (r *ProcessingResult) Failures() []DocumentOutcome {
	var failed []DocumentOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// =============================================================================
// PROGRESS SINK
// =============================================================================

// ProgressSink receives fire-and-forget per-document progress. All methods
// must be non-blocking; the pipeline never waits on the sink.
type ProgressSink interface {
	DocumentDone(done, total int, source string, err error)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline orchestrates extract -> fill -> save runs.
type Pipeline struct {
	mapping   *mapping.Mapping
	extractor *extractor.Extractor
	populator *populator.Populator
}

// New builds a Pipeline from the application configuration.
func New(cfg *config.Config) (*Pipeline, error) {
	m, err := cfg.Mapping()
	if err != nil {
		return nil, err
	}

	layout := populator.Layout{
		HeaderRow:      cfg.Layout.HeaderRow,
		DataStartRow:   cfg.Layout.DataStartRow,
		NumericColumns: populator.DefaultLayout().NumericColumns,
	}
	matching := populator.Matching{
		CaseInsensitive:     cfg.SheetMatching.CaseInsensitive,
		AllowFullMonthNames: cfg.SheetMatching.AllowFullMonthNames,
	}
	naming := populator.Naming{FilenameTemplate: cfg.Output.FilenameTemplate}

	return &Pipeline{
		mapping:   m,
		extractor: extractor.New(m),
		populator: populator.New(m, layout, matching, naming),
	}, nil
}

// Run executes one full pipeline run. A non-nil error means a template-
// level failure: no output file was produced. Per-document failures do not
// error the run; they are itemized in the result.
func (p *Pipeline) Run(req Request, sink ProgressSink) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{RunID: uuid.New().String()}

	log.Info().
		Str("run", result.RunID).
		Str("template", req.TemplatePath).
		Int("year", req.Year).
		Int("month", req.Month).
		Int("documents", len(req.Documents)).
		Msg("Starting pipeline run")

	// Template failures abort before any extraction work.
	wb, err := p.populator.Load(req.TemplatePath, req.Year)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheet, err := p.populator.ResolveSheet(wb, req.Year, req.Month)
	if err != nil {
		return nil, err
	}
	result.SheetName = sheet

	// Extraction: independent per document, order preserved.
	var progress func(done, total int, source string, err error)
	if sink != nil {
		progress = sink.DocumentDone
	}
	extracted := p.extractor.ExtractMany(req.Documents, progress)

	var rows []populator.Row
	for _, res := range extracted {
		outcome := DocumentOutcome{Source: res.SourcePath, Err: res.Err}

		if res.Err == nil && req.Strict {
			if verrs := validation.ValidateRecord(res.Record); verrs != nil {
				outcome.Err = verrs
			}
		}

		if outcome.Err == nil {
			rows = append(rows, res.Record)
			outcome.Row = p.dataStartRow() + len(rows) - 1
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if result.Succeeded == 0 {
		log.Warn().
			Str("run", result.RunID).
			Msg("No documents survived extraction; the month tab will be cleared and saved empty")
	}

	summary, err := p.populator.Fill(wb, sheet, rows)
	if err != nil {
		// Contract: the caller must not save after a fill failure; the
		// in-memory handle is partially mutated but nothing persists.
		return nil, err
	}
	result.RowsWritten = summary.RowsWritten
	result.Stats = computeStats(rows)

	if req.DryRun {
		log.Info().Str("run", result.RunID).Msg("Dry run: skipping save")
		result.Elapsed = time.Since(start)
		return result, nil
	}

	outputPath, err := p.populator.Save(wb, req.OutputDir, req.Year, req.Month)
	if err != nil {
		return nil, err
	}
	result.OutputPath = outputPath
	result.Elapsed = time.Since(start)

	log.Info().
		Str("run", result.RunID).
		Str("output", outputPath).
		Int("rows", result.RowsWritten).
		Int("failed", result.Failed).
		Msg("Pipeline run complete")

	return result, nil
}

// dataStartRow mirrors the populator's layout for outcome row reporting.
func (p *Pipeline) dataStartRow() int {
	return p.populator.DataStartRow()
}

// =============================================================================
// STATISTICS
// =============================================================================

var (
	statsPathTotal  = mapping.SchemaPath{Element: "Comprobante", Attribute: "Total"}
	statsPathMoneda = mapping.SchemaPath{Element: "Comprobante", Attribute: "Moneda"}
	statsPathFecha  = mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}
)

// computeStats sums totals and bounds dates across the written rows.
// Values that do not parse are skipped; the stats are informational only.
func computeStats(rows []populator.Row) Stats {
	var stats Stats
	currencies := make(map[string]bool)

	for _, row := range rows {
		if total := row.Value(statsPathTotal); total != "" {
			if d, err := decimal.NewFromString(total); err == nil {
				stats.TotalAmount = stats.TotalAmount.Add(d)
			}
		}
		if currency := row.Value(statsPathMoneda); currency != "" {
			currencies[currency] = true
		}
		if fecha := row.Value(statsPathFecha); fecha != "" {
			if stats.DateStart == "" || fecha < stats.DateStart {
				stats.DateStart = fecha
			}
			if fecha > stats.DateEnd {
				stats.DateEnd = fecha
			}
		}
	}

	if len(currencies) == 1 {
		for c := range currencies {
			stats.Currency = c
		}
	}
	return stats
}
