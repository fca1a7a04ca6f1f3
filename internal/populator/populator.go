// =============================================================================
// CFDI Control - Template Populator Module
// =============================================================================
//
// This module owns the Excel side of the pipeline: loading the template
// workbook, resolving the month tab for the requested period, clearing the
// previous data region and writing one row per extracted invoice, and
// persisting the result under a timestamped name.
//
// TEMPLATE CONTRACT:
//   - Twelve month tabs named <SpanishAbbrev><Year> ("Ene2025".."Dic2025")
//   - Header row (row 3 by default) is descriptive only and never touched
//   - Data rows start at row 4; column placement comes from the field mapping
//
// OVERWRITE DISCIPLINE:
//   Fill always clears the mapped data columns from the data start row down
//   to the last previously populated row before writing, so re-running
//   against the same template for the same month is idempotent modulo the
//   timestamped output name. The original template file is never mutated;
//   Save writes a new workbook.
//
// =============================================================================

package populator

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/rcastellanos/cfdi-control/internal/mapping"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// TemplateErrorKind classifies template-level failures. All of them are
// fatal to a run: no output file is produced.
type TemplateErrorKind int

const (
	// Unreadable means the file could not be opened as a workbook.
	Unreadable TemplateErrorKind = iota

	// MissingMonthTabs means one or more of the 12 expected calendar-month
	// sheets for the declared year is absent from the template.
	MissingMonthTabs

	// MonthTabNotFound means the sheet for the requested year/month is
	// absent. The error carries the workbook's actual sheet names so the
	// caller can surface them.
	MonthTabNotFound

	// WriteFailed means the output workbook could not be persisted.
	WriteFailed
)

// String returns the kind name used in error messages.
func (k TemplateErrorKind) String() string {
	switch k {
	case Unreadable:
		return "unreadable template"
	case MissingMonthTabs:
		return "missing month tabs"
	case MonthTabNotFound:
		return "month tab not found"
	case WriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

// TemplateError is a fatal template-level failure.
type TemplateError struct {
	// Kind classifies the failure.
	Kind TemplateErrorKind

	// Path is the template or output path involved.
	Path string

	// SheetName is the sheet that was being resolved, when relevant.
	SheetName string

	// Available lists the workbook's actual sheet names. Populated for
	// MonthTabNotFound so callers can show concrete remediation detail.
	Available []string

	// Missing lists the expected month-tab names that were absent.
	// Populated for MissingMonthTabs.
	Missing []string

	cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Path, e.Kind)
	switch e.Kind {
	case MonthTabNotFound:
		msg += fmt.Sprintf(": sheet %q not in workbook (available: %s)",
			e.SheetName, strings.Join(e.Available, ", "))
	case MissingMonthTabs:
		msg += fmt.Sprintf(": expected month tabs absent: %s", strings.Join(e.Missing, ", "))
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *TemplateError) Unwrap() error {
	return e.cause
}

// =============================================================================
// MONTH NAMING
// =============================================================================

// Spanish month abbreviations and full names, indexed by month-1.
var (
	monthAbbreviations = [12]string{
		"Ene", "Feb", "Mar", "Abr", "May", "Jun",
		"Jul", "Ago", "Sep", "Oct", "Nov", "Dic",
	}
	monthNames = [12]string{
		"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
		"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
	}
)

// MonthTabName returns the conventional tab name for a period, e.g. "Mar2025".
func MonthTabName(year, month int) string {
	return fmt.Sprintf("%s%d", monthAbbreviations[month-1], year)
}

// MonthName returns the full Spanish month name, e.g. "Marzo".
func MonthName(month int) string {
	return monthNames[month-1]
}

// =============================================================================
// CONFIGURATION VALUES
// =============================================================================

// Layout is the immutable geometry of a month tab, fixed at construction.
type Layout struct {
	// HeaderRow is descriptive only; Fill never touches it.
	HeaderRow int

	// DataStartRow is the first data row.
	DataStartRow int

	// NumericColumns are column letters whose nonzero numeric values get
	// the #,##0.00 number format when written.
	NumericColumns []string
}

// DefaultLayout matches the reference template: headers on row 3, data from
// row 4, currency formatting on the amount columns.
func DefaultLayout() Layout {
	return Layout{
		HeaderRow:      3,
		DataStartRow:   4,
		NumericColumns: []string{"D", "E", "G", "P"},
	}
}

// Matching is the month-tab name comparison strategy. The naming locale of
// circulating templates is not uniform, so the strategy is configurable.
type Matching struct {
	// CaseInsensitive relaxes the default exact comparison.
	CaseInsensitive bool

	// AllowFullMonthNames also accepts "Marzo2025" and "Marzo" as the
	// March tab.
	AllowFullMonthNames bool
}

// Naming controls output file naming. See config.Output for the
// placeholder vocabulary.
type Naming struct {
	FilenameTemplate string
}

// DefaultNaming embeds template stem, period and generation timestamp.
func DefaultNaming() Naming {
	return Naming{FilenameTemplate: "{stem}_CFDI_{year}_{month}_{timestamp}.xlsx"}
}

// =============================================================================
// ROW SOURCE
// =============================================================================

// Row supplies cell values by schema path. extractor.Record satisfies it.
type Row interface {
	Value(p mapping.SchemaPath) string
}

// =============================================================================
// POPULATOR
// =============================================================================

// Populator fills month tabs of a CFDI control template.
type Populator struct {
	mapping  *mapping.Mapping
	layout   Layout
	matching Matching
	naming   Naming

	numeric map[string]bool
}

// New creates a Populator. The mapping decides column placement; layout,
// matching and naming are fixed for the populator's lifetime.
func New(m *mapping.Mapping, layout Layout, matching Matching, naming Naming) *Populator {
	numeric := make(map[string]bool, len(layout.NumericColumns))
	for _, col := range layout.NumericColumns {
		numeric[col] = true
	}
	return &Populator{
		mapping:  m,
		layout:   layout,
		matching: matching,
		naming:   naming,
		numeric:  numeric,
	}
}

// DataStartRow returns the first data row of the configured layout.
func (p *Populator) DataStartRow() int {
	return p.layout.DataStartRow
}

// Workbook is a loaded template, exclusively owned by the populator for the
// duration of one run.
type Workbook struct {
	file         *excelize.File
	templatePath string
	year         int
}

// File exposes the underlying workbook for inspection in tests.
func (w *Workbook) File() *excelize.File {
	return w.file
}

// Close releases the workbook's file handle. Safe to defer on every exit
// path.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// FillSummary reports the outcome of one Fill call.
type FillSummary struct {
	RowsWritten int
	SheetName   string
}

// =============================================================================
// LOAD
// =============================================================================

// Load opens the template workbook and verifies that all 12 calendar-month
// tabs for the declared year are present. The check is by name pattern, not
// sheet count.
func (p *Populator) Load(templatePath string, year int) (*Workbook, error) {
	file, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, &TemplateError{Kind: Unreadable, Path: templatePath, cause: err}
	}

	wb := &Workbook{file: file, templatePath: templatePath, year: year}

	var missing []string
	for month := 1; month <= 12; month++ {
		if _, ok := p.findSheet(wb, year, month); !ok {
			missing = append(missing, MonthTabName(year, month))
		}
	}
	if len(missing) > 0 {
		file.Close()
		return nil, &TemplateError{Kind: MissingMonthTabs, Path: templatePath, Missing: missing}
	}

	log.Debug().Str("template", templatePath).Int("year", year).Msg("Template loaded")
	return wb, nil
}

// =============================================================================
// SHEET RESOLUTION
// =============================================================================

// ResolveSheet finds the month tab for the requested period. Exactly one
// sheet must match; absence is a fatal input error carrying the list of
// available sheet names.
func (p *Populator) ResolveSheet(wb *Workbook, year, month int) (string, error) {
	if sheet, ok := p.findSheet(wb, year, month); ok {
		return sheet, nil
	}
	return "", &TemplateError{
		Kind:      MonthTabNotFound,
		Path:      wb.templatePath,
		SheetName: MonthTabName(year, month),
		Available: wb.file.GetSheetList(),
	}
}

// findSheet applies the configured matching strategy. Candidates are tried
// in fixed precedence: abbreviated convention first, then (if enabled) the
// full month name with and without the year.
func (p *Populator) findSheet(wb *Workbook, year, month int) (string, bool) {
	candidates := []string{MonthTabName(year, month)}
	if p.matching.AllowFullMonthNames {
		candidates = append(candidates,
			fmt.Sprintf("%s%d", MonthName(month), year),
			MonthName(month),
		)
	}

	for _, want := range candidates {
		for _, have := range wb.file.GetSheetList() {
			if have == want {
				return have, true
			}
			if p.matching.CaseInsensitive && strings.EqualFold(have, want) {
				return have, true
			}
		}
	}
	return "", false
}

// =============================================================================
// FILL
// =============================================================================

// Fill clears the sheet's data region and writes one row per record, in
// input order, starting at the data start row. Empty values stay empty
// cells. The header row is never touched.
func (p *Populator) Fill(wb *Workbook, sheet string, records []Row) (FillSummary, error) {
	summary := FillSummary{SheetName: sheet}

	if err := p.clearDataRegion(wb, sheet); err != nil {
		return summary, err
	}

	numFmt, err := wb.file.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return summary, fmt.Errorf("failed to create number style: %w", err)
	}

	for i, record := range records {
		row := p.layout.DataStartRow + i
		for _, entry := range p.mapping.Entries() {
			value := record.Value(entry.Path)
			if value == "" {
				// Empty values are empty cells, never literal "None" or "0".
				continue
			}

			cell := entry.Column + strconv.Itoa(row)
			if err := wb.file.SetCellValue(sheet, cell, value); err != nil {
				return summary, fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
			}

			if p.numeric[entry.Column] && isNonZeroNumber(value) {
				if err := wb.file.SetCellStyle(sheet, cell, cell, numFmt); err != nil {
					return summary, fmt.Errorf("failed to style cell %s!%s: %w", sheet, cell, err)
				}
			}
		}
	}

	summary.RowsWritten = len(records)
	log.Info().Str("sheet", sheet).Int("rows", summary.RowsWritten).Msg("Filled month tab")
	return summary, nil
}

// clearDataRegion blanks every mapped data column from the data start row
// through the sheet's last previously populated row.
func (p *Populator) clearDataRegion(wb *Workbook, sheet string) error {
	rows, err := wb.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	lastRow := len(rows)
	for row := p.layout.DataStartRow; row <= lastRow; row++ {
		for _, col := range p.mapping.Columns() {
			cell := col + strconv.Itoa(row)
			if err := wb.file.SetCellValue(sheet, cell, nil); err != nil {
				return fmt.Errorf("failed to clear cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// isNonZeroNumber reports whether the raw value is a parseable nonzero
// number. Values that do not parse keep their raw string form unformatted.
func isNonZeroNumber(value string) bool {
	f, err := strconv.ParseFloat(value, 64)
	return err == nil && f != 0
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists the workbook as a new file in outputDir (the template's
// directory when empty). The original template is never overwritten; the
// timestamp component of the name avoids collisions between runs.
func (p *Populator) Save(wb *Workbook, outputDir string, year, month int) (string, error) {
	if outputDir == "" {
		outputDir = filepath.Dir(wb.templatePath)
	}

	stem := strings.TrimSuffix(filepath.Base(wb.templatePath), filepath.Ext(wb.templatePath))
	name := p.naming.FilenameTemplate
	name = strings.ReplaceAll(name, "{stem}", stem)
	name = strings.ReplaceAll(name, "{year}", strconv.Itoa(year))
	name = strings.ReplaceAll(name, "{month}", fmt.Sprintf("%02d", month))
	name = strings.ReplaceAll(name, "{timestamp}", time.Now().Format("20060102_150405"))

	outputPath := filepath.Join(outputDir, name)
	if err := wb.file.SaveAs(outputPath); err != nil {
		return "", &TemplateError{Kind: WriteFailed, Path: outputPath, cause: err}
	}

	log.Info().Str("output", outputPath).Msg("Workbook saved")
	return outputPath, nil
}
