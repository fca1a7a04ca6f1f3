package mapping_test

import (
	"testing"

	"github.com/rcastellanos/cfdi-control/internal/mapping"
)

func TestDefaultMapping(t *testing.T) {
	m := mapping.Default()

	if m.Len() != 15 {
		t.Fatalf("Default mapping has %d entries, want 15", m.Len())
	}

	// Canonical column order is B..P.
	wantCols := []string{"B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O", "P"}
	gotCols := m.Columns()
	for i, want := range wantCols {
		if gotCols[i] != want {
			t.Fatalf("Columns()[%d] = %q, want %q", i, gotCols[i], want)
		}
	}

	entry, ok := m.Lookup(mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"})
	if !ok {
		t.Fatalf("Lookup(Comprobante/@Fecha) not found")
	}
	if entry.Column != "B" {
		t.Fatalf("Comprobante/@Fecha column = %q, want B", entry.Column)
	}

	entry, ok = m.Lookup(mapping.SchemaPath{Element: "Impuestos", Attribute: "TotalImpuestosTrasladados"})
	if !ok {
		t.Fatalf("Lookup(Impuestos/@TotalImpuestosTrasladados) not found")
	}
	if entry.Column != "P" {
		t.Fatalf("total transferred tax column = %q, want P", entry.Column)
	}
}

func TestNewRejectsDuplicateColumns(t *testing.T) {
	_, err := mapping.New([]mapping.Entry{
		{Path: mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}, Column: "B"},
		{Path: mapping.SchemaPath{Element: "Comprobante", Attribute: "Total"}, Column: "B"},
	})
	if err == nil {
		t.Fatalf("New accepted duplicate column B")
	}
}

func TestNewRejectsDuplicatePaths(t *testing.T) {
	_, err := mapping.New([]mapping.Entry{
		{Path: mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}, Column: "B"},
		{Path: mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}, Column: "C"},
	})
	if err == nil {
		t.Fatalf("New accepted duplicate path Comprobante/@Fecha")
	}
}

func TestNewRejectsInvalidColumns(t *testing.T) {
	cases := []string{"", "b", "1", "ABC", "B1"}
	for _, col := range cases {
		_, err := mapping.New([]mapping.Entry{
			{Path: mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}, Column: col},
		})
		if err == nil {
			t.Fatalf("New accepted invalid column %q", col)
		}
	}
}

func TestParsePath(t *testing.T) {
	p, err := mapping.ParsePath("Emisor/@Rfc")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if p.Element != "Emisor" || p.Attribute != "Rfc" {
		t.Fatalf("ParsePath = %+v, want Emisor/@Rfc", p)
	}
	if p.Key() != "Emisor/@Rfc" {
		t.Fatalf("Key() = %q, want Emisor/@Rfc", p.Key())
	}

	for _, bad := range []string{"", "Emisor", "Emisor/@", "/@Rfc"} {
		if _, err := mapping.ParsePath(bad); err == nil {
			t.Fatalf("ParsePath accepted %q", bad)
		}
	}
}

func TestVariants(t *testing.T) {
	if v := mapping.VariantForNamespace(mapping.NamespaceV3); v != mapping.VariantV3 {
		t.Fatalf("VariantForNamespace(v3) = %v", v)
	}
	if v := mapping.VariantForNamespace(mapping.NamespaceV4); v != mapping.VariantV4 {
		t.Fatalf("VariantForNamespace(v4) = %v", v)
	}
	if v := mapping.VariantForNamespace("http://example.com/other"); v != mapping.VariantUnknown {
		t.Fatalf("VariantForNamespace(other) = %v", v)
	}

	if mapping.VariantV3.Alternate() != mapping.VariantV4 {
		t.Fatalf("V3 alternate should be V4")
	}
	if mapping.VariantV4.Alternate() != mapping.VariantV3 {
		t.Fatalf("V4 alternate should be V3")
	}
	if mapping.VariantV4.Namespace() != mapping.NamespaceV4 {
		t.Fatalf("V4 namespace = %q", mapping.VariantV4.Namespace())
	}
}
