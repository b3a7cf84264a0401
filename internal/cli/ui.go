package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

// styleHeader decorates section headings when stdout is a terminal.
func styleHeader(s string) string {
	if !colorEnabled {
		return s
	}
	return headerStyle.Render(s)
}
