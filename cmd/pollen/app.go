package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/pollen/internal/config"
)

// version is set via ldflags at build time.
var version = "dev"

// newApp creates the CLI application with all flags and commands.
func newApp() *cli.Command {
	return &cli.Command{
		Name:        "pollen",
		Usage:       "Tool-calling chat demos against an OpenAI-compatible endpoint",
		Version:     version,
		UsageText:   "pollen [global options] command [command options] [prompt...]",
		Description: "pollen talks to Gemini (or any OpenAI-compatible endpoint) and runs the tool-call round trip in its common variants",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (.json or .yaml)",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file to load before reading credentials",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Override the configured model",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose logging to stderr",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Plain output (no TUI)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Print only the answer (mutually exclusive with --json and --plain)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit newline-delimited JSON events (mutually exclusive with --quiet and --plain)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while the command runs",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			flagCount := 0
			for _, name := range []string{"quiet", "json", "plain"} {
				if cmd.Bool(name) {
					flagCount++
				}
			}
			if flagCount > 1 {
				return ctx, fmt.Errorf("flags --quiet, --json, and --plain are mutually exclusive")
			}
			if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Ask one question without tools",
				ArgsUsage: "[prompt]",
				Action:    cmdAsk,
			},
			{
				Name:      "weather",
				Usage:     "Single tool call: current weather",
				ArgsUsage: "[prompt]",
				Action:    cmdWeather,
			},
			{
				Name:      "multi-tool",
				Usage:     "Several tool calls in one round: weather and time",
				ArgsUsage: "[prompt]",
				Action:    cmdMultiTool,
			},
			{
				Name:      "stream",
				Usage:     "Stream a reply as it is generated",
				ArgsUsage: "[prompt]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reasoning-effort", Value: "low", Usage: "low, medium or high"},
				},
				Action: cmdStream,
			},
			{
				Name:      "stream-tools",
				Usage:     "Stream a reply that calls tools midway",
				ArgsUsage: "[prompt]",
				Action:    cmdStreamTools,
			},
			{
				Name:      "structured",
				Usage:     "Request a schema-validated WeatherInfo object",
				ArgsUsage: "[prompt]",
				Action:    cmdStructured,
			},
			{
				Name:      "tool-structured",
				Usage:     "Call tools, then request a schema-validated WeatherSummary",
				ArgsUsage: "[prompt]",
				Action:    cmdToolStructured,
			},
			{
				Name:  "chat",
				Usage: "Multi-turn chat with tools and persisted memory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Conversation to load and save"},
					&cli.BoolFlag{Name: "fresh", Usage: "Ignore any saved conversation"},
				},
				Action: cmdChat,
			},
			{
				Name:   "voice",
				Usage:  "Listen, answer and speak until the exit word is heard",
				Action: cmdVoice,
			},
			{
				Name:   "init",
				Usage:  "Write a default config file",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"}},
				Action: cmdInit,
			},
			{
				Name:   "config",
				Usage:  "Show current configuration",
				Action: cmdConfig,
			},
			{
				Name:      "sessions",
				Usage:     "List saved conversations",
				ArgsUsage: "[session-id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "remove", Aliases: []string{"rm"}, Usage: "Remove the named session"},
					&cli.BoolFlag{Name: "show", Usage: "Print the named session"},
				},
				Action: cmdSessions,
			},
		},
	}
}
