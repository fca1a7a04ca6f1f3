// =============================================================================
// CFDI Control - Record Validation Module
// =============================================================================
//
// This module implements the optional strict-mode policy applied to
// extracted records before they are written to the workbook. The extractor
// itself is deliberately tolerant (missing fields become empty strings);
// completeness checks are a caller decision and live here.
//
// RULES (strict mode):
//   - Fecha, Total, Emisor Rfc and Receptor Rfc must be present
//   - Total and SubTotal must parse as numbers and be non-negative
//
// A record failing validation is dropped from the fill and itemized in the
// run's error list, exactly like a parse failure.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rcastellanos/cfdi-control/internal/extractor"
	"github.com/rcastellanos/cfdi-control/internal/mapping"
)

// Error is a single strict-mode rule violation.
type Error struct {
	// Source identifies the offending document.
	Source string

	// Field is the schema path key of the offending field.
	Field string

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: field %s: %s", e.Source, e.Field, e.Message)
}

// Errors joins multiple violations for one record into a single error value.
type Errors []*Error

// Error implements the error interface.
func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

var (
	pathFecha       = mapping.SchemaPath{Element: "Comprobante", Attribute: "Fecha"}
	pathSubTotal    = mapping.SchemaPath{Element: "Comprobante", Attribute: "SubTotal"}
	pathTotal       = mapping.SchemaPath{Element: "Comprobante", Attribute: "Total"}
	pathEmisorRfc   = mapping.SchemaPath{Element: "Emisor", Attribute: "Rfc"}
	pathReceptorRfc = mapping.SchemaPath{Element: "Receptor", Attribute: "Rfc"}
)

// ValidateRecord applies the strict-mode rules to one record. A nil return
// means the record passed.
func ValidateRecord(r *extractor.Record) Errors {
	var errs Errors

	required := []struct {
		path mapping.SchemaPath
		name string
	}{
		{pathFecha, "issue date is required"},
		{pathTotal, "total is required"},
		{pathEmisorRfc, "issuer RFC is required"},
		{pathReceptorRfc, "receiver RFC is required"},
	}
	for _, req := range required {
		if r.Value(req.path) == "" {
			errs = append(errs, &Error{Source: r.SourceName, Field: req.path.Key(), Message: req.name})
		}
	}

	for _, amount := range []mapping.SchemaPath{pathSubTotal, pathTotal} {
		value := r.Value(amount)
		if value == "" {
			continue
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			errs = append(errs, &Error{
				Source:  r.SourceName,
				Field:   amount.Key(),
				Message: fmt.Sprintf("%q is not a valid number", value),
			})
			continue
		}
		if d.IsNegative() {
			errs = append(errs, &Error{
				Source:  r.SourceName,
				Field:   amount.Key(),
				Message: fmt.Sprintf("%s is negative", value),
			})
		}
	}

	return errs
}
