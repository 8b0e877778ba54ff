// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// lucidity-relay forwards the Lucidity byte protocol between a listen
// address and a host, verbatim and keyless. Use it to expose a
// loopback-bound host on a LAN address, or to run a rendezvous point
// both sides can reach.
//
// Usage:
//
//	lucidity-relay --listen 0.0.0.0:9898 --target 127.0.0.1:9797
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lucidity-foundation/lucidity/lib/version"
	"github.com/lucidity-foundation/lucidity/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("lucidity-relay", pflag.ContinueOnError)
	listen := flags.String("listen", "0.0.0.0:9898", "address to accept device connections on")
	target := flags.String("target", "127.0.0.1:9797", "host address to forward to")
	verbose := flags.BoolP("verbose", "v", false, "enable per-connection debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("lucidity-relay %s\n", version.Info())
		return nil
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	r := &relay.Relay{
		ListenAddr: *listen,
		TargetAddr: *target,
		Logger:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	r.Stop()
	return nil
}
