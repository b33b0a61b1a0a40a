// Command agent edits a shared live field from the terminal. Every
// participant in the same room sees the same text; the status line
// shows how many participants are connected.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"collabtext/config"
	"collabtext/discovery"
	"collabtext/livesync"
	"collabtext/protocol"
	"collabtext/transport"
	"collabtext/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.AgentFlags
	flagSet := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := flags.Resolve(flagSet, os.LookupEnv)
	if err != nil {
		return err
	}

	logger, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := cfg.URL
	if cfg.Discover {
		lookupCtx, cancelLookup := context.WithTimeout(ctx, time.Duration(cfg.DiscoverTimeout))
		url, err = discovery.Lookup(lookupCtx, logger)
		cancelLookup()
		if err != nil {
			return err
		}
	}

	codec, err := protocol.Lookup(cfg.Codec)
	if err != nil {
		return err
	}

	// The program and the transport refer to each other: the program
	// emits through the transport, the transport posts into the program.
	var program *tui.Program
	client := transport.New(transport.Config{
		URL:    url,
		Room:   cfg.Room,
		Codec:  codec,
		Logger: logger,
	}, livesync.Inbound(func(ev livesync.Event) { program.Post(ev) }))
	program = tui.NewProgram(tui.Config{
		Room:          cfg.Room,
		Channel:       client,
		QuietInterval: time.Duration(cfg.QuietInterval),
		Logger:        logger,
	}, tea.WithAltScreen())

	// The transport only stops on its own when the context ends or it
	// gives up reconnecting; either way the editor closes with it.
	transportDone := make(chan error, 1)
	go func() {
		err := client.Run(ctx)
		program.Quit()
		transportDone <- err
	}()

	runErr := program.Run()
	stop()
	if err := <-transportDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("transport stopped", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func openLogger(cfg config.Agent) (*slog.Logger, func(), error) {
	level, _ := config.ParseLevel(cfg.LogLevel)
	if cfg.LogOutput == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(cfg.LogOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.LogOutput, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { file.Close() }, nil
}
