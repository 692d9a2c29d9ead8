package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/pollen/internal/chat"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/memory"
	"github.com/HexSleeves/pollen/internal/output"
	"github.com/HexSleeves/pollen/internal/tui"
)

// chatInput is where the plain chat loop reads from; tests replace it.
var chatInput io.Reader = os.Stdin

func cmdChat(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := e.session(allTools(e))
	if err != nil {
		return e.finish("", nil, err)
	}

	sessionID := cmd.String("session")
	if sessionID == "" {
		sessionID = e.cfg.Memory.SessionID
	}
	if err := memory.ValidateID(sessionID); err != nil {
		return e.finish("", nil, err)
	}
	if e.json != nil {
		e.json.SetSessionID(sessionID)
	}

	store, err := memory.Open(ctx, e.cfg.Memory)
	if err != nil {
		return e.finish("", nil, err)
	}
	defer store.Close()

	conv, restored, err := loadConversation(ctx, store, sessionID, e.cfg.Chat.SystemPrompt, cmd.Bool("fresh"))
	if err != nil {
		return e.finish("", nil, err)
	}

	var runErr error
	if e.mode == output.ModeTUI {
		runErr = chatTUI(ctx, e, s, conv)
	} else {
		runErr = chatPlain(ctx, e, s, conv, restored)
	}

	// saved whatever happened; the last writer wins
	if err := store.Save(context.WithoutCancel(ctx), sessionID, conv.Messages()); err != nil {
		return e.finish("", nil, fmt.Errorf("save conversation: %w", err))
	}
	if runErr == nil {
		e.printer.Success("💾 Chat memory saved. Goodbye!")
	}
	last := ""
	if m, ok := conv.Last(); ok {
		last = m.Content
	}
	return e.finish(last, nil, runErr)
}

// loadConversation restores sessionID or starts fresh with system.
func loadConversation(ctx context.Context, store memory.Store, sessionID, system string, fresh bool) (*chat.Conversation, int, error) {
	if fresh {
		return chat.NewConversation(system), 0, nil
	}
	msgs, err := store.Load(ctx, sessionID)
	if errors.Is(err, memory.ErrNotFound) {
		return chat.NewConversation(system), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	conv, err := chat.FromMessages(msgs)
	if err != nil {
		return nil, 0, fmt.Errorf("restore %s: %w", sessionID, err)
	}
	return conv, len(msgs), nil
}

func isExit(text string) bool {
	return strings.EqualFold(text, "exit") || strings.EqualFold(text, "quit")
}

// chatPlain reads lines until exit/quit or EOF. A transport error ends
// the loop.
func chatPlain(ctx context.Context, e *env, s *chat.Session, conv *chat.Conversation, restored int) error {
	e.printer.Header("💬 Pollen chat (multi-turn memory & tools)")
	if restored > 0 {
		e.printer.Info("Restored %d messages", restored)
	}
	e.printer.Info("Type 'exit' to stop")

	sc := bufio.NewScanner(chatInput)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.printer.Printf("👤 You: ")
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return nil
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if isExit(text) {
			return nil
		}

		if err := conv.AddUser(text); err != nil {
			return err
		}
		answer, err := s.Resolve(ctx, conv)
		if err != nil {
			return err
		}
		e.printer.Answer(answer.Content)
	}
}

// chatTUI runs the full-screen chat. A transport error closes the TUI and
// is returned.
func chatTUI(ctx context.Context, e *env, s *chat.Session, conv *chat.Conversation) error {
	var (
		mu    sync.Mutex
		fatal error
		prog  *tui.Program
	)
	ask := func(text string) (string, error) {
		if err := conv.AddUser(text); err != nil {
			return "", err
		}
		answer, err := s.Resolve(ctx, conv)
		if err != nil {
			if errors.IsTransport(err) || ctx.Err() != nil {
				mu.Lock()
				fatal = err
				mu.Unlock()
				prog.Quit()
			}
			return "", err
		}
		return answer.Content, nil
	}

	md := output.NewMarkdown(90)
	m := tui.New(ask, tui.Options{
		Model:     e.cfg.Model,
		ExitWords: []string{"exit", "quit"},
		History:   conv.Messages(),
		Render:    md.Render,
	})
	prog = tui.NewProgram(m)
	prog.Attach(e.bus)
	if e.verbose {
		e.logger.SetOutput(prog.LogWriter())
	}

	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return fatal
}
