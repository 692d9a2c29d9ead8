package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/HexSleeves/pollen/internal/errors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	app := newApp()
	if err := app.Run(ctx, os.Args); err != nil {
		cancel()
		report(err)
		os.Exit(exitCode(err))
	}
}

// setupSignalHandler cancels the run on SIGINT/SIGTERM.
func setupSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
}

func report(err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted")
		return
	}
	kind := errors.KindOf(err)
	msg := err.Error()
	if kind == errors.KindTransport {
		msg = fmt.Sprintf("%s (%s)", msg, errors.ClassifyError(err))
	}
	pterm.Error.WithWriter(os.Stderr).Printfln("%s", msg)
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch errors.KindOf(err) {
	case errors.KindCredential, errors.KindConfig:
		return 2
	case errors.KindValidation:
		return 3
	case errors.KindTransport:
		return 4
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
