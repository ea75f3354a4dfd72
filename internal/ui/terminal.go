package ui

import (
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

// colorOverride is 0 for auto-detect, 1 for forced on, 2 for forced off.
var colorOverride atomic.Int32

// SetColor forces color on or off, overriding environment detection.
func SetColor(on bool) {
	if on {
		colorOverride.Store(1)
	} else {
		colorOverride.Store(2)
	}
}

func colorEnabled() bool {
	switch colorOverride.Load() {
	case 1:
		return true
	case 2:
		return false
	}
	return ShouldUseColor()
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions
// (https://no-color.org, https://bixense.com/clicolors). NO_COLOR wins over
// CLICOLOR_FORCE; otherwise color is on only for a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status lines may contain emoji.
// TRACKERSYNC_NO_EMOJI or TERM=dumb disables them.
func ShouldUseEmoji() bool {
	return os.Getenv("TRACKERSYNC_NO_EMOJI") == "" && os.Getenv("TERM") != "dumb"
}

// TerminalWidth returns the width of stdout, or fallback when unknown.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
