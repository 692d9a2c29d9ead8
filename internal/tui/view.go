package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	w, _ := m.size()

	title := titleStyle.Render(m.opts.Title)
	if m.opts.Model != "" {
		title += subtleStyle.Render("  " + m.opts.Model)
	}

	chat := chatBorder.Width(w - 2).Render(m.viewport.View())
	return title + "\n" + chat + "\n" + m.renderInput(w) + "\n" + m.renderStatusBar(w)
}

func (m Model) renderInput(w int) string {
	var content string
	if m.busy {
		content = m.spinner.View() + subtleStyle.Render(" thinking...")
	} else {
		content = m.input.View()
	}
	return inputBorder.Width(w - 2).Render(content)
}

func (m Model) renderStatusBar(w int) string {
	elapsed := time.Since(m.startTime).Round(time.Second)

	left := successStyle.Render(fmt.Sprintf("%d turns", m.turns))
	if m.toolCalls > 0 {
		left += subtleStyle.Render(fmt.Sprintf(" · %d tool calls", m.toolCalls))
	}
	if m.inputTokens+m.outputTokens > 0 {
		left += subtleStyle.Render(fmt.Sprintf(" · %d↑ %d↓ tokens", m.inputTokens, m.outputTokens))
	}
	right := subtleStyle.Render(fmt.Sprintf("%s · %s to quit", elapsed, m.opts.ExitWords[0]))

	gap := w - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return statusBar.Width(w - 2).Render(left + strings.Repeat(" ", gap) + right)
}

// wrapText wraps a string to fit within maxWidth display columns,
// correctly handling emoji and CJK characters.
func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	if len(text) == 0 {
		return []string{""}
	}
	if runewidth.StringWidth(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	for runewidth.StringWidth(text) > maxWidth {
		colW := 0
		byteOff := 0
		for i, r := range text {
			rw := runewidth.RuneWidth(r)
			if colW+rw > maxWidth {
				break
			}
			colW += rw
			byteOff = i + len(string(r))
		}
		if byteOff == 0 {
			// single rune wider than maxWidth
			byteOff = len(string([]rune(text)[0]))
		}
		cut := byteOff
		if idx := strings.LastIndex(text[:byteOff], " "); idx > byteOff/3 {
			cut = idx
		}
		lines = append(lines, text[:cut])
		text = strings.TrimLeft(text[cut:], " ")
	}
	if text != "" {
		lines = append(lines, text)
	}
	return lines
}
