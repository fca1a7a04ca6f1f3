// =============================================================================
// CFDI Control - Main Entry Point
// =============================================================================
//
// This is the main entry point for the CFDI Control CLI application. It
// initializes the Cobra CLI framework and delegates command execution to
// the cmd package.
//
// USAGE:
//   cfdi-control process   - Extract CFDI documents into a month tab
//   cfdi-control validate  - Validate a template and configuration
//   cfdi-control version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : core business logic (not for external import)
//   - pkg/       : shared utilities
//
// =============================================================================

package main

import (
	"github.com/rcastellanos/cfdi-control/cmd"
)

func main() {
	cmd.Execute()
}
