package tui

import (
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/HexSleeves/pollen/internal/bus"
)

// Program wraps a Bubble Tea program with helpers for feeding it loop events.
type Program struct {
	program *tea.Program
}

// NewProgram creates a full-screen chat program.
func NewProgram(m Model, opts ...tea.ProgramOption) *Program {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Program{program: tea.NewProgram(m, opts...)}
}

// Run starts the TUI (blocking) and returns the final model.
func (p *Program) Run() (tea.Model, error) {
	return p.program.Run()
}

// Send sends a message to the TUI.
func (p *Program) Send(msg tea.Msg) {
	p.program.Send(msg)
}

// Quit asks the program to exit.
func (p *Program) Quit() {
	p.program.Quit()
}

// Attach forwards bus traffic that the chat view displays.
func (p *Program) Attach(b *bus.MessageBus) {
	b.SubscribeAll(func(m bus.Message) {
		if msg, ok := Translate(m); ok {
			p.program.Send(msg)
		}
	})
}

// Translate maps a bus message to the TUI message that displays it.
func Translate(m bus.Message) (tea.Msg, bool) {
	switch m.Type {
	case bus.MsgToolCalled:
		info, _ := m.Payload.(bus.ToolInfo)
		return ToolCallMsg{Round: m.Round, Name: m.Tool, Arguments: info.Arguments}, true
	case bus.MsgToolResult:
		info, _ := m.Payload.(bus.ToolInfo)
		return ToolResultMsg{Name: m.Tool, Result: info.Content, IsError: info.IsError}, true
	case bus.MsgToolsDropped:
		return ToolDroppedMsg{Name: m.Tool}, true
	case bus.MsgCompletionDone:
		info, ok := m.Payload.(bus.CompletionInfo)
		if !ok {
			return nil, false
		}
		return UsageMsg{Model: info.Model, InputTokens: info.InputTokens, OutputTokens: info.OutputTokens}, true
	case bus.MsgValidationFailed, bus.MsgSystemError:
		text, _ := m.Payload.(string)
		return LogMsg{Text: text, IsError: true}, true
	}
	return nil, false
}

// LogWriter returns an io.Writer that sends each line to the TUI as a LogMsg.
// Use it as the output of log.New() so logging does not corrupt the screen.
func (p *Program) LogWriter() io.Writer {
	return &tuiWriter{send: p.program.Send}
}

type tuiWriter struct {
	send func(tea.Msg)
	buf  []byte
}

func (w *tuiWriter) Write(data []byte) (int, error) {
	w.buf = append(w.buf, data...)
	for {
		nl := strings.IndexByte(string(w.buf), '\n')
		if nl == -1 {
			break
		}
		line := stripLogPrefix(string(w.buf[:nl]))
		w.buf = w.buf[nl+1:]
		if line == "" {
			continue
		}
		w.send(LogMsg{Text: line, IsError: strings.Contains(line, "⚠")})
	}
	return len(data), nil
}

// stripLogPrefix removes the standard log prefix "2026/02/14 20:30:59 ".
func stripLogPrefix(line string) string {
	if len(line) > 20 && line[4] == '/' && line[7] == '/' && line[10] == ' ' {
		return strings.TrimSpace(line[20:])
	}
	// Tagged: "[pollen] 2006/01/02 15:04:05 <message>"
	if strings.HasPrefix(line, "[") {
		if idx := strings.Index(line, "] "); idx != -1 {
			return stripLogPrefix(line[idx+2:])
		}
	}
	return strings.TrimSpace(line)
}
