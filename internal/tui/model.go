// Package tui is the interactive full-screen chat.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/HexSleeves/pollen/internal/llm"
)

const (
	maxLines     = 500
	tickInterval = time.Second
)

const (
	lineUser      = "user"
	lineAssistant = "assistant"
	lineTool      = "tool"
	lineResult    = "result"
	lineError     = "error"
	lineInfo      = "info"
)

// AskFunc answers one user turn. The caller binds the context.
type AskFunc func(text string) (string, error)

// Options configures the chat model.
type Options struct {
	Title     string
	Model     string
	ExitWords []string
	History   []llm.Message
	// Render styles assistant replies (markdown); nil leaves them as-is.
	Render func(string) string
}

type chatLine struct {
	text string
	kind string
	// pre-rendered lines are not re-wrapped
	rendered bool
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	ask  AskFunc
	opts Options

	lines    []chatLine
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	busy         bool
	turns        int
	toolCalls    int
	inputTokens  int
	outputTokens int
	startTime    time.Time

	width    int
	height   int
	quitting bool
}

// New creates a chat model. History is replayed into the transcript.
func New(ask AskFunc, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "🌼 Pollen"
	}
	if len(opts.ExitWords) == 0 {
		opts.ExitWords = []string{"exit", "quit"}
	}

	ti := textinput.New()
	ti.Placeholder = "Ask anything... (exit to quit)"
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = toolCallStyle

	m := Model{
		ask:       ask,
		opts:      opts,
		input:     ti,
		viewport:  viewport.New(78, 18),
		spinner:   sp,
		startTime: time.Now(),
	}
	for _, msg := range opts.History {
		switch msg.Role {
		case llm.RoleUser:
			m.addLine("👤 "+msg.Content, lineUser)
		case llm.RoleAssistant:
			for _, c := range msg.ToolCalls {
				m.addLine("→ "+c.Name+"("+c.Arguments+")", lineTool)
			}
			if msg.Content != "" {
				m.addAssistant(msg.Content)
			}
		case llm.RoleTool:
			m.addLine("  "+msg.Content, lineResult)
		}
	}
	if len(m.lines) > 0 {
		m.addLine(fmt.Sprintf("restored %d messages", len(opts.History)), lineInfo)
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickCmd(), tea.WindowSize())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Turns reports how many user turns were answered.
func (m Model) Turns() int { return m.turns }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit(m.input.Value())
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case AnswerMsg:
		m.busy = false
		if msg.Err != nil {
			m.addLine("❌ "+msg.Err.Error(), lineError)
		} else {
			m.turns++
			m.addAssistant(msg.Text)
		}
		m.addLine("", lineInfo)
		m.refresh()
		return m, nil

	case ToolCallMsg:
		m.toolCalls++
		line := "→ " + msg.Name
		if msg.Arguments != "" {
			args := msg.Arguments
			if len(args) > 80 {
				args = args[:80] + "..."
			}
			line += "(" + args + ")"
		}
		m.addLine(line, lineTool)
		m.refresh()
		return m, nil

	case ToolResultMsg:
		kind := lineResult
		if msg.IsError {
			kind = lineError
		}
		result := strings.TrimSpace(msg.Result)
		lines := strings.Split(result, "\n")
		if len(lines) > 8 {
			for _, l := range lines[:6] {
				m.addLine("  "+strings.TrimSpace(l), kind)
			}
			m.addLine(fmt.Sprintf("  ... (%d more lines)", len(lines)-6), lineInfo)
		} else {
			for _, l := range lines {
				if l = strings.TrimSpace(l); l != "" {
					m.addLine("  "+l, kind)
				}
			}
		}
		m.refresh()
		return m, nil

	case ToolDroppedMsg:
		m.addLine("⚠ dropped "+msg.Name+": tool round budget spent", lineError)
		m.refresh()
		return m, nil

	case UsageMsg:
		m.inputTokens += msg.InputTokens
		m.outputTokens += msg.OutputTokens
		if msg.Model != "" {
			m.opts.Model = msg.Model
		}
		return m, nil

	case LogMsg:
		kind := lineInfo
		if msg.IsError {
			kind = lineError
		}
		m.addLine(msg.Text, kind)
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends text to the loop, or quits on an exit word.
func (m Model) submit(raw string) (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(raw)
	if text == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	if m.isExit(text) {
		m.quitting = true
		return m, tea.Quit
	}

	m.addLine("👤 "+text, lineUser)
	m.busy = true
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, answer(m.ask, text))
}

func answer(ask AskFunc, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := ask(text)
		return AnswerMsg{Text: reply, Err: err}
	}
}

func (m Model) isExit(text string) bool {
	for _, w := range m.opts.ExitWords {
		if strings.EqualFold(text, w) {
			return true
		}
	}
	return false
}

func (m *Model) addLine(text, kind string) {
	m.lines = append(m.lines, chatLine{text: text, kind: kind})
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m *Model) addAssistant(text string) {
	if m.opts.Render != nil {
		m.lines = append(m.lines, chatLine{text: m.opts.Render(text), kind: lineAssistant, rendered: true})
		return
	}
	m.addLine("🤖 "+text, lineAssistant)
}

// layout sizes the viewport and input to the window.
func (m *Model) layout() {
	w, h := m.size()
	m.viewport.Width = w - 4
	// title + input box (3) + status + chat border (2)
	m.viewport.Height = h - 7
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.input.Width = w - 8
	m.refresh()
}

func (m Model) size() (int, int) {
	w, h := m.width, m.height
	if w < 40 {
		w = 80
	}
	if h < 10 {
		h = 24
	}
	return w, h
}

// refresh re-renders the transcript into the viewport and follows the tail.
func (m *Model) refresh() {
	var out []string
	for _, line := range m.lines {
		if line.rendered {
			out = append(out, line.text)
			continue
		}
		for _, wl := range wrapText(line.text, m.viewport.Width-2) {
			out = append(out, lineStyle(line.kind).Render(wl))
		}
	}
	m.viewport.SetContent(strings.Join(out, "\n"))
	m.viewport.GotoBottom()
}
