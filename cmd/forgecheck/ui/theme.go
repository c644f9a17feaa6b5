package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// forgecheck theme. A handful of reusable styles and icons.

const (
	IconCrystal = "💎"
	IconTree    = "🌳"
	IconScroll  = "📜"
	IconSave    = "💾"
	IconOK      = "✅"
	IconWarn    = "⚠️"
	IconError   = "🧨"
	IconLock    = "🔒"
	IconOpen    = "🔓"
	IconClock   = "⏱️"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("141") // violet
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
	cVis     = lipgloss.Color("51")  // cyan
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Vis   = lipgloss.NewStyle().Bold(true).Foreground(cVis)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// NodeState colours an unlock node state.
func NodeState(state string) string {
	switch state {
	case "unlocked":
		return Good.Render(IconOpen + " unlocked")
	case "unlockable":
		return Warn.Render("unlockable")
	default:
		return Muted.Render(IconLock + " " + state)
	}
}

// Indent prefixes every line of s with depth levels of indentation.
func Indent(s string, depth int) string {
	pad := strings.Repeat("  ", depth)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
