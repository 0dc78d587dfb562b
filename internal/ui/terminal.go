// Package ui holds small terminal presentation helpers for the CLI.
package ui

import (
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/carshare/pulse/internal/model"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org: any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	// CLICOLOR_FORCE=1 forces color even without a TTY.
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	// CLICOLOR=0 explicitly disables color.
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	// Default: color if stdout is a terminal.
	return term.IsTerminal(int(os.Stdout.Fd()))
}

const ansiReset = "\033[0m"

var severityColors = map[model.Severity]string{
	model.SeverityDebug:    "\033[90m", // gray
	model.SeverityWarn:     "\033[33m", // yellow
	model.SeverityError:    "\033[31m", // red
	model.SeverityCritical: "\033[1;31m",
}

// ColorSeverity wraps s in the ANSI color for the given severity. INFO and
// unknown severities are returned unchanged, as is everything when color
// output is off.
func ColorSeverity(sev model.Severity, s string, useColor bool) string {
	if !useColor {
		return s
	}
	code, ok := severityColors[sev]
	if !ok {
		return s
	}
	return code + s + ansiReset
}
