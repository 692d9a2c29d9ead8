package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/HexSleeves/pollen/internal/config"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/memory"
	"github.com/HexSleeves/pollen/internal/output"
)

func cmdInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return errors.Newf(errors.KindConfig, "init", "%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

func cmdConfig(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	cfg := e.cfg

	key := "missing"
	if _, err := cfg.APIKey(); err == nil {
		key = "set"
	}

	switch e.mode {
	case output.ModeQuiet:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return e.finish("", nil, err)
		}
		e.stdout.Write(data) //nolint:errcheck
	case output.ModePlain:
		e.printer.Header("🌼 Pollen configuration")
		e.printer.KeyValue([][]string{
			{"Provider", cfg.Provider},
			{"Model", cfg.Model},
			{"Base URL", orDefault(cfg.BaseURL, "(provider default)")},
			{"API key", cfg.KeyEnv() + " (" + key + ")"},
			{"Timeout", cfg.Timeout.String()},
		})
		e.printer.Section("Chat")
		e.printer.KeyValue([][]string{
			{"Max rounds", strconv.Itoa(cfg.Chat.MaxRounds)},
			{"Reattach tools", strconv.FormatBool(cfg.Chat.ReattachTools)},
			{"Reasoning effort", orDefault(cfg.Chat.ReasoningEffort, "(none)")},
			{"System prompt", cfg.Chat.SystemPrompt},
		})
		e.printer.Section("Memory")
		e.printer.KeyValue([][]string{
			{"Backend", orDefault(cfg.Memory.Backend, "json")},
			{"Session", cfg.Memory.SessionID},
			{"Dir", cfg.Memory.Dir},
		})
		e.printer.Section("Voice")
		e.printer.KeyValue([][]string{
			{"Listen", cfg.Voice.ListenCommand},
			{"Speak", cfg.Voice.SpeakCommand},
			{"Exit word", cfg.Voice.ExitWord},
		})
		if cfg.Metrics.Addr != "" {
			e.printer.KeyValue([][]string{{"Metrics", cfg.Metrics.Addr}})
		}
	}
	return e.finish("", cfg, nil)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// SessionRow is one stored conversation in the sessions listing.
type SessionRow struct {
	ID       string `json:"id"`
	Messages int    `json:"messages"`
}

func cmdSessions(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	store, err := memory.Open(ctx, e.cfg.Memory)
	if err != nil {
		return e.finish("", nil, err)
	}
	defer store.Close()

	id := cmd.Args().First()
	switch {
	case cmd.Bool("remove"):
		if id == "" {
			return e.finish("", nil, errors.Newf(errors.KindConfig, "sessions", "--remove needs a session id"))
		}
		if err := memory.ValidateID(id); err != nil {
			return e.finish("", nil, err)
		}
		if err := store.Delete(ctx, id); err != nil {
			return e.finish("", nil, err)
		}
		e.printer.Success("Removed %s", id)
		return e.finish("", SessionRow{ID: id}, nil)
	case cmd.Bool("show") || id != "":
		if id == "" {
			id = e.cfg.Memory.SessionID
		}
		return showSession(ctx, e, store, id)
	}

	ids, err := store.List(ctx)
	if err != nil {
		return e.finish("", nil, err)
	}
	rows := make([]SessionRow, 0, len(ids))
	table := make([][]string, 0, len(ids))
	for _, sid := range ids {
		msgs, err := store.Load(ctx, sid)
		if err != nil && !errors.Is(err, memory.ErrNotFound) {
			return e.finish("", nil, err)
		}
		rows = append(rows, SessionRow{ID: sid, Messages: len(msgs)})
		table = append(table, []string{sid, strconv.Itoa(len(msgs))})
		if e.mode == output.ModeQuiet {
			fmt.Fprintln(e.stdout, sid)
		}
	}

	if len(rows) == 0 {
		e.printer.Info("No saved sessions")
	} else {
		e.printer.Table([]string{"Session", "Messages"}, table)
	}
	return e.finish("", rows, nil)
}

func showSession(ctx context.Context, e *env, store memory.Store, id string) error {
	if err := memory.ValidateID(id); err != nil {
		return e.finish("", nil, err)
	}
	msgs, err := store.Load(ctx, id)
	if err != nil {
		return e.finish("", nil, fmt.Errorf("session %s: %w", id, err))
	}
	e.printer.Header("💬 " + id)
	for _, m := range msgs {
		text := m.Content
		for _, tc := range m.ToolCalls {
			text = strings.TrimSpace(text + " " + tc.Name + "(" + tc.Arguments + ")")
		}
		e.printer.Printf("%s %s\n", output.RoleIcon(m.Role), text)
		if e.mode == output.ModeQuiet {
			fmt.Fprintf(e.stdout, "%s: %s\n", m.Role, text)
		}
	}
	return e.finish("", msgs, nil)
}
