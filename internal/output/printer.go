package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/llm"
)

// Printer wraps pterm for styled output, respecting output modes.
// Decoration is printed only in plain mode; Answer also prints in quiet mode.
type Printer struct {
	mode     Mode
	verbose  bool
	writer   io.Writer
	markdown *Markdown
}

// NewPrinter creates a Printer for the given output mode.
func NewPrinter(mode Mode, verbose bool) *Printer {
	return &Printer{
		mode:    mode,
		verbose: verbose,
		writer:  os.Stdout,
	}
}

// NewPrinterWithWriter creates a Printer with a custom writer (for testing).
func NewPrinterWithWriter(mode Mode, verbose bool, w io.Writer) *Printer {
	return &Printer{
		mode:    mode,
		verbose: verbose,
		writer:  w,
	}
}

// WithMarkdown enables glamour rendering of answers.
func (p *Printer) WithMarkdown(m *Markdown) *Printer {
	p.markdown = m
	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.writer }

func (p *Printer) active() bool {
	return p.mode == ModePlain
}

// Header prints a large styled header.
func (p *Printer) Header(text string) {
	if !p.active() {
		return
	}
	pterm.DefaultHeader.
		WithWriter(p.writer).
		WithBackgroundStyle(pterm.NewStyle(pterm.BgYellow)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack, pterm.Bold)).
		Println(text)
}

// Section prints a section header.
func (p *Printer) Section(text string) {
	if !p.active() {
		return
	}
	pterm.DefaultSection.
		WithWriter(p.writer).
		Println(text)
}

func (p *Printer) Info(format string, args ...interface{}) {
	if !p.active() {
		return
	}
	pterm.Info.WithWriter(p.writer).Printfln(format, args...)
}

func (p *Printer) Success(format string, args ...interface{}) {
	if !p.active() {
		return
	}
	pterm.Success.WithWriter(p.writer).Printfln(format, args...)
}

func (p *Printer) Warning(format string, args ...interface{}) {
	if !p.active() {
		return
	}
	pterm.Warning.WithWriter(p.writer).Printfln(format, args...)
}

// Error prints an error message. Unlike the other decorations it is also
// shown in quiet mode.
func (p *Printer) Error(format string, args ...interface{}) {
	if p.mode != ModePlain && p.mode != ModeQuiet {
		return
	}
	pterm.Error.WithWriter(p.writer).Printfln(format, args...)
}

// Debug prints a debug message (only if verbose).
func (p *Printer) Debug(format string, args ...interface{}) {
	if !p.active() || !p.verbose {
		return
	}
	dbg := &pterm.PrefixPrinter{
		Prefix: pterm.Prefix{
			Text:  " DEBUG ",
			Style: pterm.NewStyle(pterm.BgGray, pterm.FgWhite),
		},
		Writer: p.writer,
	}
	dbg.Printfln(format, args...)
}

// Table prints a table with headers and rows.
func (p *Printer) Table(headers []string, rows [][]string) {
	if !p.active() {
		return
	}
	data := pterm.TableData{headers}
	data = append(data, rows...)
	pterm.DefaultTable.
		WithWriter(p.writer).
		WithHasHeader().
		WithData(data).
		Render() //nolint:errcheck
}

// SpinnerHandle wraps a pterm spinner. A nil handle is valid.
type SpinnerHandle struct {
	spinner *pterm.SpinnerPrinter
}

// Stop stops the spinner with a success message.
func (h *SpinnerHandle) Stop(msg string) {
	if h == nil || h.spinner == nil {
		return
	}
	h.spinner.Success(msg)
}

// Fail stops the spinner with a failure message.
func (h *SpinnerHandle) Fail(msg string) {
	if h == nil || h.spinner == nil {
		return
	}
	h.spinner.Fail(msg)
}

// Spinner starts a spinner with the given text.
func (p *Printer) Spinner(text string) *SpinnerHandle {
	if !p.active() {
		return nil
	}
	sp, _ := pterm.DefaultSpinner.
		WithWriter(p.writer).
		WithRemoveWhenDone().
		Start(text)
	return &SpinnerHandle{spinner: sp}
}

// KeyValue prints key-value pairs in a formatted way.
func (p *Printer) KeyValue(pairs [][]string) {
	if !p.active() {
		return
	}
	for _, pair := range pairs {
		if len(pair) == 2 {
			fmt.Fprintf(p.writer, "  %s  %s\n",
				pterm.LightCyan(pair[0]+":"),
				pair[1])
		}
	}
}

func (p *Printer) Println(text string) {
	if !p.active() {
		return
	}
	fmt.Fprintln(p.writer, text)
}

func (p *Printer) Printf(format string, args ...interface{}) {
	if !p.active() {
		return
	}
	fmt.Fprintf(p.writer, format, args...)
}

// Chunk writes a streamed fragment as-is, without a newline.
func (p *Printer) Chunk(text string) {
	if p.mode != ModePlain && p.mode != ModeQuiet {
		return
	}
	fmt.Fprint(p.writer, text)
}

// Answer prints the assistant's final reply, rendered as markdown when a
// renderer is configured.
func (p *Printer) Answer(text string) {
	switch p.mode {
	case ModePlain:
		fmt.Fprintf(p.writer, "%s %s\n", pterm.LightGreen("🤖 Assistant:"), p.markdown.Render(text))
	case ModeQuiet:
		fmt.Fprintln(p.writer, text)
	}
}

// Divider prints a horizontal rule.
func (p *Printer) Divider() {
	if !p.active() {
		return
	}
	fmt.Fprintln(p.writer, pterm.Gray(strings.Repeat("─", 50)))
}

// RoleIcon returns a colored marker for a conversation role.
func RoleIcon(role llm.Role) string {
	switch role {
	case llm.RoleSystem:
		return pterm.Gray("⚙")
	case llm.RoleUser:
		return pterm.Cyan("👤")
	case llm.RoleAssistant:
		return pterm.Green("🤖")
	case llm.RoleTool:
		return pterm.Yellow("🔧")
	default:
		return pterm.Gray("?")
	}
}

// Follow prints tool activity and validation failures as they are
// published on b.
func (p *Printer) Follow(b *bus.MessageBus) {
	if b == nil || !p.active() {
		return
	}
	b.Subscribe(bus.MsgToolCalled, func(m bus.Message) {
		if info, ok := m.Payload.(bus.ToolInfo); ok {
			p.Info("🔧 Tool called: %s(%s)", m.Tool, info.Arguments)
		}
	})
	b.Subscribe(bus.MsgToolResult, func(m bus.Message) {
		info, ok := m.Payload.(bus.ToolInfo)
		if !ok {
			return
		}
		if info.IsError {
			p.Warning("%s failed: %s", m.Tool, info.Content)
			return
		}
		p.Success("%s → %s", m.Tool, info.Content)
	})
	b.Subscribe(bus.MsgToolsDropped, func(m bus.Message) {
		p.Warning("tool round budget spent; dropped %s", m.Tool)
	})
	b.Subscribe(bus.MsgValidationFailed, func(m bus.Message) {
		p.Warning("structured reply did not match schema: %v", m.Payload)
	})
}
