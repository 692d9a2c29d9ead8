package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/pollen/internal/chat"
	"github.com/HexSleeves/pollen/internal/voice"
)

const voiceSystem = "You are a helpful voice assistant."

// cmdVoice answers each utterance in a fresh conversation and speaks the
// reply through the configured synthesizer.
func cmdVoice(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := e.session(nil)
	if err != nil {
		return e.finish("", nil, err)
	}

	listen, err := voice.ParseCommand(e.cfg.Voice.ListenCommand)
	if err != nil {
		return e.finish("", nil, err)
	}
	speak, err := voice.ParseCommand(e.cfg.Voice.SpeakCommand)
	if err != nil {
		return e.finish("", nil, err)
	}

	e.printer.Header("🎙️ Pollen voice assistant")
	e.printer.KeyValue([][]string{
		{"Listen", listen.String()},
		{"Speak", speak.String()},
		{"Exit word", e.cfg.Voice.ExitWord},
	})

	q := voice.NewSpeechQueue(ctx, &voice.CommandSynthesizer{Command: speak}, func(err error) {
		e.printer.Warning("speech failed: %v", err)
	})
	defer q.Close()

	var last string
	loop := &voice.Loop{
		Recognizer: &voice.CommandRecognizer{Command: listen},
		Queue:      q,
		ExitWord:   e.cfg.Voice.ExitWord,
		Bus:        e.bus,
		Logger:     e.logger,
		Answer: func(ctx context.Context, heard string) (string, error) {
			e.printer.Printf("👤 You: %s\n", heard)
			conv := chat.NewConversation(voiceSystem)
			if err := conv.AddUser(heard); err != nil {
				return "", err
			}
			answer, err := s.Resolve(ctx, conv)
			if err != nil {
				return "", err
			}
			e.printer.Answer(answer.Content)
			last = answer.Content
			return answer.Content, nil
		},
	}
	if err := loop.Run(ctx); err != nil {
		return e.finish("", nil, err)
	}
	e.printer.Success("👋 Goodbye!")
	return e.finish(last, nil, nil)
}
