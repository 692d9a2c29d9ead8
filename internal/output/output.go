// Package output renders loop results for humans (pterm, glamour) and
// machines (newline-delimited JSON).
package output

import (
	"os"

	"golang.org/x/term"
)

// Mode represents the output mode.
type Mode int

const (
	// ModeTUI is the interactive terminal UI mode.
	ModeTUI Mode = iota
	// ModePlain is the plain text mode.
	ModePlain
	// ModeJSON emits one JSON event per line.
	ModeJSON
	// ModeQuiet suppresses everything but the answer.
	ModeQuiet
)

func (m Mode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	case ModeQuiet:
		return "quiet"
	}
	return "unknown"
}

// DetectMode picks the output mode from the global flags. The TUI is only
// chosen when stdin and stdout are both terminals.
func DetectMode(plain, jsonOut, quiet bool) Mode {
	switch {
	case jsonOut:
		return ModeJSON
	case quiet:
		return ModeQuiet
	case plain:
		return ModePlain
	}
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return ModeTUI
	}
	return ModePlain
}
