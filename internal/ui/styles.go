package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Colors
var (
	ColorPrimary = lipgloss.Color("#7D56F4")
	ColorSuccess = lipgloss.Color("#73F59F")
	ColorWarning = lipgloss.Color("#F5A623")
	ColorDanger  = lipgloss.Color("#F56565")
	ColorMuted   = lipgloss.Color("#6B7280")
	ColorCyan    = lipgloss.Color("#22D3EE")
	ColorText    = lipgloss.Color("#E4E4E7")

	// Change colors
	ColorGrew   = lipgloss.Color("#FCA5A5") // light red
	ColorShrunk = lipgloss.Color("#86EFAC") // light green
	ColorNew    = lipgloss.Color("#FDE047") // yellow
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StatsStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	HeaderRowStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorDanger)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	DoneStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ActiveStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	// Change indicators
	GrewStyle = lipgloss.NewStyle().
			Foreground(ColorGrew)

	ShrunkStyle = lipgloss.NewStyle().
			Foreground(ColorShrunk)

	NewBadge = lipgloss.NewStyle().
			Foreground(ColorNew).
			Bold(true)
)

// shareStyle colors a row by its share of the scanned total.
func shareStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 30:
		return lipgloss.NewStyle().Foreground(ColorDanger)
	case pct >= 15:
		return lipgloss.NewStyle().Foreground(ColorWarning)
	case pct >= 5:
		return lipgloss.NewStyle().Foreground(ColorCyan)
	default:
		return MutedStyle
	}
}

// FormatSize formats bytes to a human readable string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatDelta formats a signed size change.
func FormatDelta(delta int64) string {
	if delta > 0 {
		return "+" + FormatSize(delta)
	}
	return FormatSize(delta)
}
