package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPollen  = lipgloss.Color("#F2C94C")
	colorPetal   = lipgloss.Color("#F299C1")
	colorLeaf    = lipgloss.Color("#6FCF97")
	colorDimGray = lipgloss.Color("#555555")
	colorRed     = lipgloss.Color("#FF6B6B")
	colorSky     = lipgloss.Color("#56CCF2")
	colorWhite   = lipgloss.Color("#E6E6E6")
	colorSubtle  = lipgloss.Color("#888888")
)

var (
	chatBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPollen).
			Padding(0, 1)

	inputBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPetal).
			Padding(0, 1)

	statusBar = lipgloss.NewStyle().
			Foreground(colorPollen).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPollen).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	userStyle = lipgloss.NewStyle().
			Foreground(colorSky).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	toolCallStyle = lipgloss.NewStyle().
			Foreground(colorPetal)

	toolResultStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	successStyle = lipgloss.NewStyle().
			Foreground(colorLeaf)
)

func lineStyle(kind string) lipgloss.Style {
	switch kind {
	case lineUser:
		return userStyle
	case lineAssistant:
		return assistantStyle
	case lineTool:
		return toolCallStyle
	case lineResult:
		return toolResultStyle
	case lineError:
		return errorStyle
	}
	return subtleStyle
}
