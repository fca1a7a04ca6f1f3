// =============================================================================
// CFDI Control - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base that all other commands (process, validate, version) attach to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (cfdi-control)
//   ├── processCmd  (cfdi-control process)
//   ├── validateCmd (cfdi-control validate)
//   └── versionCmd  (cfdi-control version)
//
// The root command owns the global flags (--config, --verbose) and the
// logging/environment setup that runs before any subcommand.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rcastellanos/cfdi-control/internal/config"
)

// cfgFile holds the path to the configuration file, overridable with
// --config. An empty value means "use built-in defaults".
var cfgFile string

// verbose forces debug logging regardless of LOGLEVEL.
var verbose bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cfdi-control",
	Short: "CFDI Control - Fill monthly Excel control sheets from CFDI invoices",
	Long: `CFDI Control extracts invoice fields from Mexican electronic-invoice
(CFDI) XML documents and writes them into the month tab of a pre-existing
Excel control template.

Both CFDI 3.3 and CFDI 4.0 documents are supported. Each run targets one
month tab, clears its previous contents and writes one row per invoice,
then saves a new timestamped workbook; the template itself is never
modified.

Example Usage:
  cfdi-control process --template control.xlsx --year 2025 --month 3 --input-dir ./facturas
  cfdi-control validate --template control.xlsx --year 2025
  cfdi-control version`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
// Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(setupEnvironment)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"Path to the configuration file (optional; built-in defaults apply)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// setupEnvironment loads .env if present and configures zerolog output and
// level. It runs before any subcommand.
func setupEnvironment() {
	envErr := godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	level := strings.ToLower(os.Getenv("LOGLEVEL"))
	switch {
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case level == "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case level == "warn", level == "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case level == "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Reported only now so logging is already configured.
	if envErr == nil {
		log.Debug().Msg("Loaded environment variables from .env file")
	}
}

// loadConfig resolves the effective configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// The config file may lower the log level; flags and env still win.
	if !verbose && os.Getenv("LOGLEVEL") == "" {
		switch cfg.LogLevel {
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "warn":
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		}
	}
	return cfg, nil
}
