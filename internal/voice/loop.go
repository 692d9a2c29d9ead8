package voice

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/errors"
)

// AnswerFunc produces the spoken reply for one recognized utterance.
type AnswerFunc func(ctx context.Context, heard string) (string, error)

// Loop listens, answers and speaks until the exit word is heard.
type Loop struct {
	Recognizer Recognizer
	Queue      *SpeechQueue
	Answer     AnswerFunc
	ExitWord   string
	Bus        *bus.MessageBus
	Logger     *log.Logger
}

// Run blocks until the exit word is heard (nil), ctx is cancelled
// (ctx.Err()), or a non-recoverable error occurs. Unrecognized speech is
// reported and listening resumes. The queue is drained before each listen
// so the microphone never records the assistant's own voice.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	exit := strings.ToLower(strings.TrimSpace(l.ExitWord))

	for {
		l.Queue.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Println("👂 Listening...")
		heard, err := l.Recognizer.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrUnrecognized) {
				logger.Println("⚠ Could not understand audio")
				l.publish(bus.Message{Type: bus.MsgSpeechFailed, Payload: err.Error()})
				continue
			}
			return err
		}

		logger.Printf("👤 Heard: %s", heard)
		l.publish(bus.Message{Type: bus.MsgSpeechHeard, Payload: heard})
		if exit != "" && strings.Contains(strings.ToLower(heard), exit) {
			logger.Println("👋 Exit word heard")
			return nil
		}

		reply, err := l.Answer(ctx, heard)
		if err != nil {
			return err
		}
		l.publish(bus.Message{Type: bus.MsgSpeechSpoken, Payload: reply})
		if strings.TrimSpace(reply) != "" {
			l.Queue.Enqueue(reply)
		}
	}
}

func (l *Loop) publish(msg bus.Message) {
	if l.Bus != nil {
		l.Bus.Publish(msg)
	}
}
