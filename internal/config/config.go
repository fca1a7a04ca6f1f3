// =============================================================================
// CFDI Control - Configuration Module
// =============================================================================
//
// This module loads and validates the application configuration. All values
// have working defaults; a config file is only needed to override them.
//
// CONFIGURATION SECTIONS:
//   1. Output settings (directory, filename template)
//   2. Template layout (header row, data start row)
//   3. Month-tab matching strategy
//   4. Optional field mapping override (mainly for tests and reduced runs)
//
// The layout and matching settings become immutable values handed to the
// populator at construction; nothing here is ambient state.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcastellanos/cfdi-control/internal/mapping"
)

// =============================================================================
// CONFIGURATION STRUCTURES
// =============================================================================

// Config holds the application configuration, loaded from a YAML file.
type Config struct {
	// OutputDir is where generated workbooks are written.
	// Empty means "next to the template file".
	OutputDir string `yaml:"output_dir"`

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	// The LOGLEVEL environment variable takes precedence.
	LogLevel string `yaml:"log_level"`

	// Layout describes the fixed geometry of the template month tabs.
	Layout Layout `yaml:"layout"`

	// SheetMatching controls how month-tab names are compared.
	SheetMatching SheetMatching `yaml:"sheet_matching"`

	// Output controls generated file naming.
	Output Output `yaml:"output"`

	// FieldMapping optionally replaces the built-in CFDI mapping.
	// Each entry is a field path ("Element/@Attribute") and a column letter.
	FieldMapping []FieldMappingEntry `yaml:"field_mapping,omitempty"`
}

// Layout describes where headers and data live in a month tab.
type Layout struct {
	// HeaderRow holds the column headers. It is descriptive only and is
	// never written to or parsed.
	HeaderRow int `yaml:"header_row"`

	// DataStartRow is the first row of invoice data.
	DataStartRow int `yaml:"data_start_row"`
}

// SheetMatching controls the month-tab name comparison strategy.
// The exact locale of month-tab naming in circulating templates varies, so
// the comparison is configurable instead of hard-coded.
type SheetMatching struct {
	// CaseInsensitive relaxes the default exact, case-sensitive match.
	CaseInsensitive bool `yaml:"case_insensitive"`

	// AllowFullMonthNames additionally accepts full Spanish month names
	// ("Marzo") alongside the abbreviated "Mar2025" convention.
	AllowFullMonthNames bool `yaml:"allow_full_month_names"`
}

// Output controls generated file naming.
type Output struct {
	// FilenameTemplate names the output workbook. Placeholders:
	//   {stem}      - template file name without extension
	//   {year}      - four-digit year
	//   {month}     - two-digit month
	//   {timestamp} - generation timestamp (YYYYMMDD_HHMMSS)
	// The timestamp component is what avoids path collisions between runs.
	FilenameTemplate string `yaml:"filename_template"`
}

// FieldMappingEntry is one row of a field mapping override.
type FieldMappingEntry struct {
	Path   string `yaml:"path"`
	Column string `yaml:"column"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns the configuration used when no config file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset options.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Layout.HeaderRow == 0 {
		cfg.Layout.HeaderRow = 3
	}
	if cfg.Layout.DataStartRow == 0 {
		cfg.Layout.DataStartRow = 4
	}
	if cfg.Output.FilenameTemplate == "" {
		cfg.Output.FilenameTemplate = "{stem}_CFDI_{year}_{month}_{timestamp}.xlsx"
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for consistency. A malformed field
// mapping (duplicate columns, unknown path syntax) is caught here, at load
// time, never during a run.
func (cfg *Config) Validate() error {
	if cfg.Layout.HeaderRow < 1 {
		return fmt.Errorf("layout.header_row must be >= 1, got %d", cfg.Layout.HeaderRow)
	}
	if cfg.Layout.DataStartRow <= cfg.Layout.HeaderRow {
		return fmt.Errorf("layout.data_start_row (%d) must be below layout.header_row (%d)",
			cfg.Layout.DataStartRow, cfg.Layout.HeaderRow)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}

	if !strings.Contains(cfg.Output.FilenameTemplate, "{timestamp}") {
		return fmt.Errorf("output.filename_template must contain {timestamp} to avoid collisions")
	}

	// Building the mapping runs its own validation.
	if _, err := cfg.Mapping(); err != nil {
		return err
	}

	return nil
}

// Mapping returns the effective field mapping: the override if one is
// configured, the built-in CFDI table otherwise.
func (cfg *Config) Mapping() (*mapping.Mapping, error) {
	if len(cfg.FieldMapping) == 0 {
		return mapping.Default(), nil
	}

	entries := make([]mapping.Entry, 0, len(cfg.FieldMapping))
	for _, fm := range cfg.FieldMapping {
		path, err := mapping.ParsePath(fm.Path)
		if err != nil {
			return nil, fmt.Errorf("field_mapping: %w", err)
		}
		entries = append(entries, mapping.Entry{Path: path, Column: fm.Column})
	}

	m, err := mapping.New(entries)
	if err != nil {
		return nil, fmt.Errorf("field_mapping: %w", err)
	}
	return m, nil
}
