// Package voice runs the listen, answer, speak loop against external
// speech commands.
package voice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/HexSleeves/pollen/internal/errors"
)

// ErrUnrecognized means the recognizer heard nothing it could transcribe.
var ErrUnrecognized = errors.Newf(errors.KindSpeech, "listen", "could not understand audio")

// Recognizer turns one utterance into text.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// Synthesizer speaks text aloud and returns when playback finishes.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Command is an external program parsed from a shell-style command line.
type Command struct {
	argv []string
}

// ParseCommand splits line with POSIX shell quoting rules. Environment
// references such as $HOME are expanded.
func ParseCommand(line string) (Command, error) {
	argv, err := shell.Fields(line, os.Getenv)
	if err != nil {
		return Command{}, errors.New(errors.KindConfig, "voice: parse command", err)
	}
	if len(argv) == 0 {
		return Command{}, errors.Newf(errors.KindConfig, "voice", "empty command")
	}
	return Command{argv: argv}, nil
}

func (c Command) String() string { return strings.Join(c.argv, " ") }

func (c Command) run(ctx context.Context, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", c.argv[0], msg)
	}
	return stdout.String(), nil
}

// CommandRecognizer runs a program that records one utterance and prints
// the transcript on stdout. Empty output means nothing was understood.
type CommandRecognizer struct {
	Command Command
}

func (r *CommandRecognizer) Listen(ctx context.Context) (string, error) {
	out, err := r.Command.run(ctx, "")
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", errors.New(errors.KindSpeech, "listen", err)
	}
	text := strings.TrimSpace(out)
	if text == "" {
		return "", ErrUnrecognized
	}
	return text, nil
}

// CommandSynthesizer runs a program that reads text on stdin and speaks it.
type CommandSynthesizer struct {
	Command Command
}

func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	if _, err := s.Command.run(ctx, text); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errors.New(errors.KindSpeech, "speak", err)
	}
	return nil
}
