// Command server is the CollabText relay. It fans live-field updates
// out to the other participants of a room and keeps every participant
// informed of the room's size. Several relays can serve the same rooms
// when they share a Redis instance.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"collabtext/config"
	"collabtext/discovery"
	"collabtext/hub"
	"collabtext/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.ServerFlags
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
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

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := protocol.Lookup(cfg.Codec)
	if err != nil {
		return err
	}
	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	if cfg.Advertise {
		go advertise(ctx, cfg, listener.Addr(), logger)
	}

	relay := hub.New(broker, codec, logger)
	server := &http.Server{
		Handler:           relay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("collabtext relay starting", "addr", listener.Addr().String(), "codec", codec.Subprotocol())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func newBroker(ctx context.Context, cfg config.Server, logger *slog.Logger) (hub.Broker, error) {
	if cfg.RedisAddr == "" {
		return hub.NewLocalBroker(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("connected to redis", "addr", cfg.RedisAddr)
	return hub.NewRedisBroker(rdb, cfg.RedisPrefix), nil
}

func advertise(ctx context.Context, cfg config.Server, addr net.Addr, logger *slog.Logger) {
	instance := cfg.Instance
	if instance == "" {
		host, _ := os.Hostname()
		instance = "CollabText-" + host
	}
	_, portText, err := net.SplitHostPort(addr.String())
	if err != nil {
		logger.Error("cannot advertise", "addr", addr.String(), "error", err)
		return
	}
	port, _ := strconv.Atoi(portText)
	if err := discovery.Advertise(ctx, instance, port, logger); err != nil {
		logger.Error("cannot advertise", "error", err)
	}
}
