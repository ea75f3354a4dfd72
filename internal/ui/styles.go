// Package ui provides terminal styling for trackersync CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

const (
	TreeLast       = "└─ "
	TreeIndent     = "  "
	SeparatorLight = "──────────────────────────────────────────"
)

// Init configures lipgloss for the current output. Styling is stripped when
// color is disabled so piped output stays plain.
func Init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string { return render(PassStyle, s) }

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string { return render(WarnStyle, s) }

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string { return render(FailStyle, s) }

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string { return render(MutedStyle, s) }

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string { return render(AccentStyle, s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string { return render(CategoryStyle, strings.ToUpper(s)) }

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string { return RenderMuted(SeparatorLight) }

func RenderPassIcon() string { return RenderPass(IconPass) }
func RenderWarnIcon() string { return RenderWarn(IconWarn) }
func RenderFailIcon() string { return RenderFail(IconFail) }
func RenderSkipIcon() string { return RenderMuted(IconSkip) }
func RenderInfoIcon() string { return RenderAccent(IconInfo) }

// Check renders an icon-prefixed line for a pass/fail result.
func Check(ok bool, msg string) string {
	if ok {
		return RenderPassIcon() + " " + msg
	}
	return RenderFailIcon() + " " + RenderFail(msg)
}
