// =============================================================================
// CFDI Control - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks a template and the
// configuration without processing any documents:
//   - the configuration file parses and is internally consistent
//   - the workbook opens and has all 12 month tabs for the declared year
//
// Diagnostics list the concrete sheet names involved so a bad template can
// be fixed without guesswork.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcastellanos/cfdi-control/internal/populator"
)

var (
	validateTemplate string
	validateYear     int
)

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a control template and the configuration without processing",
	Long: `The validate command opens the template workbook and verifies that every
calendar-month tab for the given year is present, using the configured
matching strategy. It also validates the configuration file, including any
field mapping override.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateTemplate, "template", "", "Path to the Excel control template (required)")
	validateCmd.Flags().IntVar(&validateYear, "year", 0, "Year the month tabs are named for (required)")

	validateCmd.MarkFlagRequired("template")
	validateCmd.MarkFlagRequired("year")
}

func runValidate() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("Configuration: OK")

	m, err := cfg.Mapping()
	if err != nil {
		return err
	}
	fmt.Printf("Field mapping: %d columns (%s)\n", m.Len(), strings.Join(m.Columns(), ", "))

	pop := populator.New(m,
		populator.Layout{
			HeaderRow:      cfg.Layout.HeaderRow,
			DataStartRow:   cfg.Layout.DataStartRow,
			NumericColumns: populator.DefaultLayout().NumericColumns,
		},
		populator.Matching{
			CaseInsensitive:     cfg.SheetMatching.CaseInsensitive,
			AllowFullMonthNames: cfg.SheetMatching.AllowFullMonthNames,
		},
		populator.Naming{FilenameTemplate: cfg.Output.FilenameTemplate},
	)

	wb, err := pop.Load(validateTemplate, validateYear)
	if err != nil {
		var tmplErr *populator.TemplateError
		if errors.As(err, &tmplErr) && tmplErr.Kind == populator.MissingMonthTabs {
			fmt.Printf("Template: missing month tabs for %d: %s\n",
				validateYear, strings.Join(tmplErr.Missing, ", "))
		}
		return err
	}
	defer wb.Close()

	fmt.Printf("Template: OK, all 12 month tabs present for %d\n", validateYear)
	return nil
}
