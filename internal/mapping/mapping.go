// =============================================================================
// CFDI Control - Field Mapping Module
// =============================================================================
//
// This module defines the static mapping between CFDI XML field paths and
// Excel destination columns. The mapping is the single source of truth for
// both the extractor (which fields to pull out of each invoice) and the
// populator (which column each value lands in).
//
// MAPPING TABLE (reference layout, row 3 headers):
//
//   | XML path                                  | Column |
//   |-------------------------------------------|--------|
//   | Comprobante/@Fecha                        | B      |
//   | Comprobante/@FormaPago                    | C      |
//   | Comprobante/@SubTotal                     | D      |
//   | Comprobante/@Descuento                    | E      |
//   | Comprobante/@Moneda                       | F      |
//   | Comprobante/@Total                        | G      |
//   | Comprobante/@TipoDeComprobante            | H      |
//   | Comprobante/@MetodoPago                   | I      |
//   | Emisor/@Rfc                               | J      |
//   | Emisor/@Nombre                            | K      |
//   | Emisor/@RegimenFiscal                     | L      |
//   | Receptor/@Rfc                             | M      |
//   | Receptor/@RegimenFiscalReceptor           | N      |
//   | Receptor/@UsoCFDI                         | O      |
//   | Impuestos/@TotalImpuestosTrasladados      | P      |
//
// The mapping is version-agnostic: element and attribute names are shared
// between CFDI 3.3 and 4.0, only the namespace differs. Namespace handling
// lives in the Variant type below.
//
// =============================================================================

package mapping

import (
	"fmt"
	"strings"
)

// =============================================================================
// SCHEMA PATHS
// =============================================================================

// SchemaPath identifies a single field in a CFDI document: an element
// (by local name, namespace resolved per document) and an attribute on it.
type SchemaPath struct {
	// Element is the local name of the element carrying the attribute.
	// "Comprobante" refers to the invoice root; other values (Emisor,
	// Receptor, Impuestos) are resolved as direct children of the root.
	Element string

	// Attribute is the attribute name to read from the element.
	Attribute string
}

// Key returns the canonical string form of the path, "Element/@Attribute".
// Extracted records are keyed by this form.
func (p SchemaPath) Key() string {
	return p.Element + "/@" + p.Attribute
}

// ParsePath parses the "Element/@Attribute" form back into a SchemaPath.
// It is used when a reduced mapping is supplied via configuration.
func ParsePath(s string) (SchemaPath, error) {
	element, attribute, ok := strings.Cut(s, "/@")
	if !ok || element == "" || attribute == "" {
		return SchemaPath{}, fmt.Errorf("invalid field path %q: expected Element/@Attribute", s)
	}
	return SchemaPath{Element: element, Attribute: attribute}, nil
}

// =============================================================================
// MAPPING ENTRIES
// =============================================================================

// Entry binds one schema path to one destination column letter.
type Entry struct {
	Path   SchemaPath
	Column string
}

// Mapping is an ordered list of entries. Entry order is the canonical column
// order (B..P in the reference mapping), but lookups are by path, never by
// position.
type Mapping struct {
	entries []Entry
	byKey   map[string]int
}

// New builds a Mapping from the given entries and validates it.
// Validation failures are configuration errors: duplicate columns,
// duplicate paths, malformed column letters or empty names.
func New(entries []Entry) (*Mapping, error) {
	m := &Mapping{
		entries: make([]Entry, len(entries)),
		byKey:   make(map[string]int, len(entries)),
	}
	copy(m.entries, entries)

	seenColumns := make(map[string]string, len(entries))
	for i, e := range m.entries {
		if e.Path.Element == "" || e.Path.Attribute == "" {
			return nil, fmt.Errorf("mapping entry %d: empty element or attribute", i)
		}
		if !validColumn(e.Column) {
			return nil, fmt.Errorf("mapping entry %s: invalid column letter %q", e.Path.Key(), e.Column)
		}
		if prev, dup := seenColumns[e.Column]; dup {
			return nil, fmt.Errorf("mapping column %s assigned to both %s and %s", e.Column, prev, e.Path.Key())
		}
		seenColumns[e.Column] = e.Path.Key()

		if _, dup := m.byKey[e.Path.Key()]; dup {
			return nil, fmt.Errorf("mapping path %s defined twice", e.Path.Key())
		}
		m.byKey[e.Path.Key()] = i
	}

	return m, nil
}

// Entries returns the entries in canonical order. The returned slice must
// not be modified.
func (m *Mapping) Entries() []Entry {
	return m.entries
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Lookup returns the entry for the given path, if present.
func (m *Mapping) Lookup(path SchemaPath) (Entry, bool) {
	i, ok := m.byKey[path.Key()]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Columns returns the destination column letters in canonical order.
func (m *Mapping) Columns() []string {
	cols := make([]string, len(m.entries))
	for i, e := range m.entries {
		cols[i] = e.Column
	}
	return cols
}

// validColumn accepts single- and double-letter uppercase column names.
func validColumn(col string) bool {
	if len(col) == 0 || len(col) > 2 {
		return false
	}
	for _, r := range col {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// =============================================================================
// DEFAULT MAPPING
// =============================================================================

// Default returns the reference CFDI mapping (columns B through P).
func Default() *Mapping {
	m, err := New([]Entry{
		{Path: SchemaPath{Element: "Comprobante", Attribute: "Fecha"}, Column: "B"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "FormaPago"}, Column: "C"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "SubTotal"}, Column: "D"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "Descuento"}, Column: "E"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "Moneda"}, Column: "F"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "Total"}, Column: "G"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "TipoDeComprobante"}, Column: "H"},
		{Path: SchemaPath{Element: "Comprobante", Attribute: "MetodoPago"}, Column: "I"},
		{Path: SchemaPath{Element: "Emisor", Attribute: "Rfc"}, Column: "J"},
		{Path: SchemaPath{Element: "Emisor", Attribute: "Nombre"}, Column: "K"},
		{Path: SchemaPath{Element: "Emisor", Attribute: "RegimenFiscal"}, Column: "L"},
		{Path: SchemaPath{Element: "Receptor", Attribute: "Rfc"}, Column: "M"},
		{Path: SchemaPath{Element: "Receptor", Attribute: "RegimenFiscalReceptor"}, Column: "N"},
		{Path: SchemaPath{Element: "Receptor", Attribute: "UsoCFDI"}, Column: "O"},
		{Path: SchemaPath{Element: "Impuestos", Attribute: "TotalImpuestosTrasladados"}, Column: "P"},
	})
	if err != nil {
		// The default table is static; a failure here is a programming error.
		panic(err)
	}
	return m
}

// =============================================================================
// SCHEMA VARIANTS
// =============================================================================

// Variant identifies which CFDI namespace version governs field resolution
// for a given document. The variant is selected once per document from the
// declared namespace of the root element.
type Variant int

const (
	// VariantUnknown means the root namespace matched no known CFDI version.
	VariantUnknown Variant = iota

	// VariantV3 is CFDI 3.3 (http://www.sat.gob.mx/cfd/3).
	VariantV3

	// VariantV4 is CFDI 4.0 (http://www.sat.gob.mx/cfd/4).
	VariantV4
)

// Namespace URIs for the supported CFDI versions.
const (
	NamespaceV3 = "http://www.sat.gob.mx/cfd/3"
	NamespaceV4 = "http://www.sat.gob.mx/cfd/4"
)

// VariantForNamespace maps a namespace URI to its schema variant.
func VariantForNamespace(uri string) Variant {
	switch uri {
	case NamespaceV3:
		return VariantV3
	case NamespaceV4:
		return VariantV4
	default:
		return VariantUnknown
	}
}

// Namespace returns the namespace URI for the variant, or "" for unknown.
func (v Variant) Namespace() string {
	switch v {
	case VariantV3:
		return NamespaceV3
	case VariantV4:
		return NamespaceV4
	default:
		return ""
	}
}

// Alternate returns the other supported variant. Field resolution tries the
// declared root namespace first and falls back to the alternate, in that
// fixed precedence.
func (v Variant) Alternate() Variant {
	switch v {
	case VariantV3:
		return VariantV4
	case VariantV4:
		return VariantV3
	default:
		return VariantUnknown
	}
}

// String returns a short human-readable name for logs and error messages.
func (v Variant) String() string {
	switch v {
	case VariantV3:
		return "CFDI 3.3"
	case VariantV4:
		return "CFDI 4.0"
	default:
		return "unknown"
	}
}
