package populator_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/rcastellanos/cfdi-control/internal/mapping"
	"github.com/rcastellanos/cfdi-control/internal/populator"
)

// rowMap is a minimal Row implementation for tests.
type rowMap map[string]string

func (r rowMap) Value(p mapping.SchemaPath) string {
	return r[p.Key()]
}

var monthTabs2025 = []string{
	"Ene2025", "Feb2025", "Mar2025", "Abr2025", "May2025", "Jun2025",
	"Jul2025", "Ago2025", "Sep2025", "Oct2025", "Nov2025", "Dic2025",
}

// buildTemplate writes a 12-tab template workbook with headers on row 3.
// skip lists tab names to leave out.
func buildTemplate(t *testing.T, dir string, skip ...string) string {
	t.Helper()

	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, tab := range monthTabs2025 {
		if skipSet[tab] {
			continue
		}
		if first {
			if err := f.SetSheetName("Sheet1", tab); err != nil {
				t.Fatalf("SetSheetName: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(tab); err != nil {
				t.Fatalf("NewSheet(%s): %v", tab, err)
			}
		}
		if err := f.SetCellValue(tab, "B3", "Fecha"); err != nil {
			t.Fatalf("SetCellValue header: %v", err)
		}
		if err := f.SetCellValue(tab, "G3", "Total"); err != nil {
			t.Fatalf("SetCellValue header: %v", err)
		}
	}

	path := filepath.Join(dir, "plantilla.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func newPopulator() *populator.Populator {
	return populator.New(mapping.Default(), populator.DefaultLayout(),
		populator.Matching{}, populator.DefaultNaming())
}

func record(fecha, total string) rowMap {
	return rowMap{
		"Comprobante/@Fecha": fecha,
		"Comprobante/@Total": total,
		"Emisor/@Rfc":        "AAA010101AAA",
	}
}

func TestLoadAndResolveSheet(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	sheet, err := p.ResolveSheet(wb, 2025, 3)
	if err != nil {
		t.Fatalf("ResolveSheet failed: %v", err)
	}
	if sheet != "Mar2025" {
		t.Fatalf("sheet = %q, want Mar2025", sheet)
	}
}

func TestLoadUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_a_workbook.xlsx")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := newPopulator().Load(path, 2025)
	var tmplErr *populator.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("error %v is not a TemplateError", err)
	}
	if tmplErr.Kind != populator.Unreadable {
		t.Fatalf("kind = %v, want Unreadable", tmplErr.Kind)
	}
}

func TestLoadMissingMonthTab(t *testing.T) {
	template := buildTemplate(t, t.TempDir(), "Ago2025")

	_, err := newPopulator().Load(template, 2025)
	var tmplErr *populator.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("error %v is not a TemplateError", err)
	}
	if tmplErr.Kind != populator.MissingMonthTabs {
		t.Fatalf("kind = %v, want MissingMonthTabs", tmplErr.Kind)
	}
	if len(tmplErr.Missing) != 1 || tmplErr.Missing[0] != "Ago2025" {
		t.Fatalf("Missing = %v, want [Ago2025]", tmplErr.Missing)
	}
}

func TestResolveSheetNotFoundListsAvailable(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	_, err = p.ResolveSheet(wb, 2026, 8)
	var tmplErr *populator.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("error %v is not a TemplateError", err)
	}
	if tmplErr.Kind != populator.MonthTabNotFound {
		t.Fatalf("kind = %v, want MonthTabNotFound", tmplErr.Kind)
	}
	if tmplErr.SheetName != "Ago2026" {
		t.Fatalf("SheetName = %q, want Ago2026", tmplErr.SheetName)
	}
	// The reported list must equal the workbook's actual sheet names.
	if len(tmplErr.Available) != 12 {
		t.Fatalf("Available has %d names, want 12: %v", len(tmplErr.Available), tmplErr.Available)
	}
}

func TestResolveSheetMatchingStrategies(t *testing.T) {
	dir := t.TempDir()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "MARZO"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	path := filepath.Join(dir, "loose.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	// Strict matching does not see "MARZO" as March 2025.
	strict := newPopulator()
	if _, err := strict.Load(path, 2025); err == nil {
		t.Fatalf("strict Load accepted a single loosely named tab")
	}

	// Case-insensitive + full-name matching accepts a workbook whose tabs
	// use lowercase full month names.
	loose := populator.New(mapping.Default(), populator.DefaultLayout(),
		populator.Matching{CaseInsensitive: true, AllowFullMonthNames: true},
		populator.DefaultNaming())

	full := excelize.NewFile()
	names := []string{
		"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	}
	for i, name := range names {
		if i == 0 {
			if err := full.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("SetSheetName: %v", err)
			}
			continue
		}
		if _, err := full.NewSheet(name); err != nil {
			t.Fatalf("NewSheet: %v", err)
		}
	}
	fullPath := filepath.Join(dir, "full.xlsx")
	if err := full.SaveAs(fullPath); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	full.Close()

	wb, err := loose.Load(fullPath, 2025)
	if err != nil {
		t.Fatalf("loose Load failed: %v", err)
	}
	defer wb.Close()

	sheet, err := loose.ResolveSheet(wb, 2025, 3)
	if err != nil {
		t.Fatalf("loose ResolveSheet failed: %v", err)
	}
	if sheet != "marzo" {
		t.Fatalf("sheet = %q, want marzo", sheet)
	}
}

func TestFillWritesRowsInOrder(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	records := []populator.Row{
		record("2025-03-01T08:00:00", "100.00"),
		record("2025-03-02T09:00:00", "200.00"),
		record("2025-03-03T10:00:00", "300.00"),
	}

	summary, err := p.Fill(wb, "Mar2025", records)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if summary.RowsWritten != 3 || summary.SheetName != "Mar2025" {
		t.Fatalf("summary = %+v", summary)
	}

	// Row order matches input record order at consecutive offsets.
	for i, want := range []string{"100.00", "200.00", "300.00"} {
		cell := fmt.Sprintf("G%d", 4+i)
		got, err := wb.File().GetCellValue("Mar2025", cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", cell, got, want)
		}
	}

	// Header row is never touched.
	header, err := wb.File().GetCellValue("Mar2025", "G3")
	if err != nil {
		t.Fatalf("GetCellValue(G3): %v", err)
	}
	if header != "Total" {
		t.Fatalf("header G3 = %q, want Total", header)
	}
}

func TestFillClearsPriorRows(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	// Simulate a previously populated tab with more rows than this run.
	for row := 4; row <= 8; row++ {
		cell := fmt.Sprintf("B%d", row)
		if err := wb.File().SetCellValue("Mar2025", cell, "stale"); err != nil {
			t.Fatalf("SetCellValue: %v", err)
		}
	}

	if _, err := p.Fill(wb, "Mar2025", []populator.Row{record("2025-03-01", "50.00")}); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	for row := 5; row <= 8; row++ {
		cell := fmt.Sprintf("B%d", row)
		got, err := wb.File().GetCellValue("Mar2025", cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		if got != "" {
			t.Fatalf("stale cell %s = %q, want empty", cell, got)
		}
	}
}

func TestFillIdempotent(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	records := []populator.Row{
		record("2025-03-01", "100.00"),
		record("2025-03-02", "200.00"),
	}

	if _, err := p.Fill(wb, "Mar2025", records); err != nil {
		t.Fatalf("first Fill failed: %v", err)
	}
	first, err := wb.File().GetRows("Mar2025")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}

	if _, err := p.Fill(wb, "Mar2025", records); err != nil {
		t.Fatalf("second Fill failed: %v", err)
	}
	second, err := wb.File().GetRows("Mar2025")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("row count changed between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("row %d width changed between runs", i+1)
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cell (%d,%d) changed between runs: %q vs %q",
					i+1, j+1, first[i][j], second[i][j])
			}
		}
	}
}

func TestFillEmptyValuesStayEmpty(t *testing.T) {
	template := buildTemplate(t, t.TempDir())

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	// Record with only a date: every other mapped cell stays empty.
	if _, err := p.Fill(wb, "Mar2025", []populator.Row{rowMap{"Comprobante/@Fecha": "2025-03-01"}}); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	for _, cell := range []string{"C4", "G4", "P4"} {
		got, err := wb.File().GetCellValue("Mar2025", cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		if got != "" {
			t.Fatalf("cell %s = %q, want empty", cell, got)
		}
	}
}

func TestSaveCreatesTimestampedCopy(t *testing.T) {
	dir := t.TempDir()
	template := buildTemplate(t, dir)

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	if _, err := p.Fill(wb, "Mar2025", []populator.Row{record("2025-03-01", "100.00")}); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	outputPath, err := p.Save(wb, outDir, 2025, 3)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	name := filepath.Base(outputPath)
	pattern := regexp.MustCompile(`^plantilla_CFDI_2025_03_\d{8}_\d{6}\.xlsx$`)
	if !pattern.MatchString(name) {
		t.Fatalf("output name %q does not match the naming convention", name)
	}

	if _, err := os.Stat(outputPath); err != nil {
		t.Fatalf("output file missing: %v", err)
	}

	// The original template is untouched: reloading it shows no data rows.
	original, err := excelize.OpenFile(template)
	if err != nil {
		t.Fatalf("template no longer readable: %v", err)
	}
	defer original.Close()
	got, err := original.GetCellValue("Mar2025", "G4")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "" {
		t.Fatalf("template G4 = %q, template was mutated", got)
	}
}

func TestSaveWriteFailed(t *testing.T) {
	dir := t.TempDir()
	template := buildTemplate(t, dir)

	p := newPopulator()
	wb, err := p.Load(template, 2025)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer wb.Close()

	_, err = p.Save(wb, filepath.Join(dir, "missing", "nested"), 2025, 3)
	var tmplErr *populator.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("error %v is not a TemplateError", err)
	}
	if tmplErr.Kind != populator.WriteFailed {
		t.Fatalf("kind = %v, want WriteFailed", tmplErr.Kind)
	}
}
