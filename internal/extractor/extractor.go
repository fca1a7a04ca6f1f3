// =============================================================================
// CFDI Control - Document Extractor Module
// =============================================================================
//
// This module parses CFDI invoice XML documents and extracts the fields
// defined by the field mapping into flat string records.
//
// EXTRACTION PIPELINE (per document):
//   1. Parse the source as well-formed XML
//   2. Determine the schema variant (CFDI 3.3 or 4.0) from the root namespace
//   3. Verify the root element is Comprobante
//   4. Resolve every mapped field; missing elements or attributes yield
//      an empty string, never an error
//
// TOLERANCE:
//   Field absence is not an error. A document that parses but yields zero
//   non-empty fields is still a success; completeness is the caller's
//   policy, not the parser's contract. See internal/validation for the
//   strict-mode policy.
//
// =============================================================================

package extractor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/rcastellanos/cfdi-control/internal/mapping"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ParseErrorKind classifies per-document extraction failures.
type ParseErrorKind int

const (
	// Malformed means the source is not well-formed XML (unclosed tags,
	// invalid encoding, empty file).
	Malformed ParseErrorKind = iota

	// UnrecognizedSchema means the root element declares neither known
	// CFDI namespace.
	UnrecognizedSchema

	// MissingRoot means the document parsed but has no Comprobante root.
	MissingRoot
)

// String returns the kind name used in error messages and error logs.
func (k ParseErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case UnrecognizedSchema:
		return "unrecognized schema"
	case MissingRoot:
		return "missing root"
	default:
		return "unknown"
	}
}

// ParseError is a per-document extraction failure. Parse errors are
// non-fatal to a batch: other documents continue processing.
type ParseError struct {
	// Kind classifies the failure.
	Kind ParseErrorKind

	// Source identifies the failing document (path or caller-supplied name).
	Source string

	// Detail is an optional human-readable elaboration.
	Detail string

	cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s document", e.Source, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *ParseError) Unwrap() error {
	return e.cause
}

// =============================================================================
// EXTRACTED RECORDS
// =============================================================================

// Record is the flat field set extracted from one invoice document.
// Every path in the mapping has an entry, possibly empty.
type Record struct {
	// Fields maps SchemaPath keys ("Element/@Attribute") to raw string
	// values. Numeric-looking values are not parsed or reformatted here.
	Fields map[string]string

	// Variant is the schema version the document declared.
	Variant mapping.Variant

	// SourcePath and SourceName identify the originating document. They
	// are metadata, not part of the mapped field set.
	SourcePath string
	SourceName string
}

// Value returns the extracted value for the given path, or "" if the path
// is not part of the record.
func (r *Record) Value(p mapping.SchemaPath) string {
	return r.Fields[p.Key()]
}

// Result is the outcome of extracting one document in a batch.
type Result struct {
	SourcePath string
	Record     *Record
	Err        error
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor parses CFDI documents according to an injected field mapping.
// It is stateless and safe for reuse across documents.
type Extractor struct {
	mapping *mapping.Mapping
}

// New creates an Extractor for the given field mapping.
func New(m *mapping.Mapping) *Extractor {
	return &Extractor{mapping: m}
}

// Extract parses the document at path and returns its extracted record.
func (x *Extractor) Extract(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Kind: Malformed, Source: path, Detail: "unreadable file", cause: err}
	}
	return x.ExtractBytes(data, path)
}

// ExtractBytes parses an in-memory document. source is used only for error
// reporting and record metadata. The function is pure: identical input
// always yields an identical record.
func (x *Extractor) ExtractBytes(data []byte, source string) (*Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{Kind: Malformed, Source: source, cause: err}
	}

	root := doc.Root()
	if root == nil {
		return nil, &ParseError{Kind: Malformed, Source: source, Detail: "no root element"}
	}

	// The schema variant is selected once per document from the declared
	// namespace of the root element.
	variant := mapping.VariantForNamespace(root.NamespaceURI())
	if variant == mapping.VariantUnknown {
		return nil, &ParseError{
			Kind:   UnrecognizedSchema,
			Source: source,
			Detail: fmt.Sprintf("root namespace %q is not a known CFDI namespace", root.NamespaceURI()),
		}
	}

	if root.Tag != "Comprobante" {
		return nil, &ParseError{
			Kind:   MissingRoot,
			Source: source,
			Detail: fmt.Sprintf("root element is %q, expected Comprobante", root.Tag),
		}
	}

	record := &Record{
		Fields:     make(map[string]string, x.mapping.Len()),
		Variant:    variant,
		SourcePath: source,
		SourceName: filepath.Base(source),
	}

	for _, entry := range x.mapping.Entries() {
		record.Fields[entry.Path.Key()] = resolveField(root, entry.Path, variant)
	}

	log.Debug().
		Str("source", source).
		Str("variant", variant.String()).
		Msg("Extracted CFDI document")

	return record, nil
}

// ExtractMany processes each source independently: one failure does not
// abort the batch. Result order matches input order. progress, if non-nil,
// is invoked fire-and-forget after each document.
func (x *Extractor) ExtractMany(paths []string, progress func(done, total int, path string, err error)) []Result {
	results := make([]Result, 0, len(paths))

	for i, path := range paths {
		record, err := x.Extract(path)
		if err != nil {
			log.Warn().Str("source", path).Err(err).Msg("Failed to extract document")
		}
		results = append(results, Result{SourcePath: path, Record: record, Err: err})

		if progress != nil {
			progress(i+1, len(paths), path, err)
		}
	}

	return results
}

// =============================================================================
// FIELD RESOLUTION
// =============================================================================

// resolveField locates the element named by the path and reads its
// attribute. Missing elements or attributes resolve to "".
func resolveField(root *etree.Element, p mapping.SchemaPath, variant mapping.Variant) string {
	if p.Element == "Comprobante" {
		return root.SelectAttrValue(p.Attribute, "")
	}

	// Child-scoped fields (Emisor, Receptor, Impuestos) are resolved as
	// direct children of the root. An absent parent makes all of its
	// child fields empty rather than failing the document.
	child := findChild(root, p.Element, variant)
	if child == nil {
		return ""
	}
	return child.SelectAttrValue(p.Attribute, "")
}

// findChild returns the first direct child with the given local name under
// the declared namespace, falling back to the alternate CFDI namespace.
// The two candidates are tried in that fixed precedence.
func findChild(root *etree.Element, name string, variant mapping.Variant) *etree.Element {
	var fallback *etree.Element

	for _, child := range root.ChildElements() {
		if child.Tag != name {
			continue
		}
		switch child.NamespaceURI() {
		case variant.Namespace():
			return child
		case variant.Alternate().Namespace():
			if fallback == nil {
				fallback = child
			}
		}
	}

	return fallback
}
