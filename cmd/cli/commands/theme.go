package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/stakeport/stakeport/pkg/types"
)

// Brand colors
var (
	ColorAccent  = lipgloss.Color("#f0b90b") // BNB yellow
	ColorSuccess = lipgloss.Color("#22c55e") // Green
	ColorWarning = lipgloss.Color("#eab308") // Yellow
	ColorError   = lipgloss.Color("#ef4444") // Red
	ColorInfo    = lipgloss.Color("#3b82f6") // Blue
	ColorMuted   = lipgloss.Color("#6b7280") // Gray
	ColorDim     = lipgloss.Color("#4b5563") // Darker gray
	ColorWhite   = lipgloss.Color("#f9fafb") // Off-white
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Semantic text styles
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	StyleSubheader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleInfo = lipgloss.NewStyle().
			Foreground(ColorInfo)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	StyleBold = lipgloss.NewStyle().
			Bold(true)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(14)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorWhite)
)

// Box style
var StyleBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorDim).
	Padding(0, 1)

// Table header style
var (
	StyleTableHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Padding(0, 1)

	StyleTableRow = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Padding(0, 1)

	StyleTableRowAlt = lipgloss.NewStyle().
				Foreground(ColorMuted).
				Padding(0, 1)
)

// statusTones maps the states shown by the CLI (transaction lifecycle,
// allow-list status, session and plan state, balance reads) to a badge
// color.
var statusTones = map[string]lipgloss.Color{
	string(types.TxConfirmed): ColorSuccess,
	"active":                  ColorSuccess,
	"connected":               ColorSuccess,
	"matured":                 ColorSuccess,
	"ok":                      ColorSuccess,

	string(types.TxSubmitted): ColorWarning,
	"pending":                 ColorWarning,
	"paused":                  ColorWarning,
	"locked":                  ColorWarning,
	"warning":                 ColorWarning,

	string(types.TxReverted): ColorError,
	string(types.TxDropped):  ColorError,
	"suspended":              ColorError,
	"disconnected":           ColorError,
	"failed":                 ColorError,
}

// StatusBadge renders status as a colored badge. Unknown states are muted.
func StatusBadge(status string) string {
	tone, ok := statusTones[status]
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#000000")).
		Padding(0, 1)
	if !ok {
		return style.Background(ColorMuted).Render(status)
	}
	return style.Background(tone).Bold(true).Render(status)
}

// Logo is the accent-colored product name used in box titles.
func Logo() string {
	return StyleAccent.Render("stakeport")
}
