package main

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/chat"
	"github.com/HexSleeves/pollen/internal/config"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/metrics"
	"github.com/HexSleeves/pollen/internal/output"
	"github.com/HexSleeves/pollen/internal/tools"
)

// env is what every command needs: config, output and the event bus.
type env struct {
	name    string
	cfg     *config.Config
	mode    output.Mode
	stdout  io.Writer
	printer *output.Printer
	logger  *log.Logger
	bus     *bus.MessageBus
	json    *output.JSONWriter
	verbose bool

	stopMetrics context.CancelFunc
	metricsDone sync.WaitGroup
}

// setup loads config and wires output. Nothing here touches the network.
func setup(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if model := cmd.String("model"); model != "" {
		cfg.Model = model
	}

	stdout := cmd.Root().Writer
	if stdout == nil {
		stdout = os.Stdout
	}
	verbose := cmd.Bool("verbose")
	mode := output.DetectMode(cmd.Bool("plain"), cmd.Bool("json"), cmd.Bool("quiet"))
	// only chat has a TUI
	if mode == output.ModeTUI && cmd.Name != "chat" {
		mode = output.ModePlain
	}

	e := &env{
		name:    cmd.Name,
		cfg:     cfg,
		mode:    mode,
		stdout:  stdout,
		bus:     bus.New(0),
		verbose: verbose,
		logger:  log.New(io.Discard, "", 0),
	}
	if verbose {
		errw := cmd.Root().ErrWriter
		if errw == nil {
			errw = os.Stderr
		}
		e.logger = log.New(errw, "", log.LstdFlags)
	}

	e.printer = output.NewPrinterWithWriter(mode, verbose, stdout)
	if mode == output.ModePlain {
		e.printer.WithMarkdown(output.NewMarkdown(100))
	}
	e.printer.Follow(e.bus)

	if mode == output.ModeJSON {
		e.json = output.NewJSONWriter(stdout, cfg.Memory.SessionID)
		e.json.IncludeChunks(verbose)
		e.json.Attach(e.bus)
		e.json.WriteSessionStart(cmd.Name) //nolint:errcheck
	}

	addr := cmd.String("metrics-addr")
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		e.serveMetrics(ctx, addr)
	}
	return e, nil
}

func (e *env) serveMetrics(ctx context.Context, addr string) {
	m := metrics.New()
	m.Attach(e.bus)
	ctx, e.stopMetrics = context.WithCancel(ctx)
	e.metricsDone.Add(1)
	go func() {
		defer e.metricsDone.Done()
		if err := m.Serve(ctx, addr, e.logger, nil); err != nil {
			e.printer.Warning("metrics server: %v", err)
		}
	}()
}

// client checks the credential and builds the provider client. A missing
// key is returned before any request is made.
func (e *env) client() (llm.Completer, error) {
	key, err := e.cfg.APIKey()
	if err != nil {
		return nil, err
	}
	return llm.NewFromConfig(llm.ProviderConfig{
		Provider:  e.cfg.Provider,
		Model:     e.cfg.Model,
		APIKey:    key,
		BaseURL:   e.cfg.BaseURL,
		Timeout:   e.cfg.Timeout,
		MaxTokens: e.cfg.MaxTokens,
	})
}

// session builds a loop over registry (nil means no tools).
func (e *env) session(registry *tools.Registry) (*chat.Session, error) {
	client, err := e.client()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	s := chat.NewSession(client, registry)
	s.Bus = e.bus
	s.Logger = e.logger
	s.Options = chat.Options{
		MaxRounds:       e.cfg.Chat.MaxRounds,
		ReattachTools:   e.cfg.Chat.ReattachTools,
		ReasoningEffort: e.cfg.Chat.ReasoningEffort,
		SessionID:       e.name + "-" + uuid.NewString()[:8],
	}
	return s, nil
}

// banner prints the command header in plain mode.
func (e *env) banner(title, prompt string) {
	e.printer.Header("🌼 Pollen · " + title)
	e.printer.KeyValue([][]string{
		{"Model", e.cfg.Model + " (" + e.cfg.Provider + ")"},
		{"Prompt", prompt},
	})
	e.printer.Println("")
}

// finish closes the run: the JSON summary or error event, then metrics.
func (e *env) finish(answer string, data interface{}, err error) error {
	if e.json != nil {
		if err != nil {
			e.json.WriteError(err.Error(), string(errors.KindOf(err))) //nolint:errcheck
		} else {
			e.json.WriteSessionEnd(e.name, answer, data) //nolint:errcheck
		}
	}
	if e.stopMetrics != nil {
		e.stopMetrics()
		e.metricsDone.Wait()
	}
	return err
}

// promptArg joins trailing arguments, falling back to def.
func promptArg(cmd *cli.Command, def string) string {
	if args := cmd.Args().Slice(); len(args) > 0 {
		if p := strings.TrimSpace(strings.Join(args, " ")); p != "" {
			return p
		}
	}
	return def
}
