// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// lucidity-host runs the desktop host bridge: a dedicated tmux server
// exposed to paired remote devices over the framed TCP protocol.
//
// Usage:
//
//	lucidity-host [--config FILE] [--listen ADDR] [--verbose]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lucidity-foundation/lucidity/host"
	"github.com/lucidity-foundation/lucidity/lib/config"
	"github.com/lucidity-foundation/lucidity/lib/secret"
	"github.com/lucidity-foundation/lucidity/lib/tmux"
	"github.com/lucidity-foundation/lucidity/lib/version"
	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/pane"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("lucidity-host", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default $LUCIDITY_CONFIG)")
	listenAddr := flags.String("listen", "", "override the listen address")
	printURL := flags.Bool("pairing-url", false, "print the pairing URL and exit")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("lucidity-host %s\n", version.Info())
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

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.Host.Listen = *listenAddr
	}
	if cfg.Host.Disabled {
		logger.Info("host disabled by configuration")
		return nil
	}

	if err := os.MkdirAll(cfg.Paths.State, 0700); err != nil {
		return fmt.Errorf("creating state directory %s: %w", cfg.Paths.State, err)
	}

	keypair, generated, err := pairing.NewKeypairStore(cfg.Paths.Keypair).LoadOrGenerate()
	if err != nil {
		return err
	}
	if generated {
		logger.Info("generated host keypair", "path", cfg.Paths.Keypair)
	}
	logger.Info("host identity", "fingerprint", pairing.Fingerprint(keypair.PublicKey()))

	trust, err := pairing.OpenTrustStore(cfg.Paths.TrustDB, logger)
	if err != nil {
		return err
	}
	defer trust.Close()

	addresses := pairing.PayloadAddresses{
		LANAddr:      cfg.Host.LANAddr,
		ExternalAddr: cfg.Host.ExternalAddr,
		RelayURL:     cfg.Host.RelayURL,
	}
	if cfg.Host.RelaySecretFile != "" {
		relaySecret, err := secret.ReadFromPath(cfg.Host.RelaySecretFile)
		if err != nil {
			return fmt.Errorf("reading relay secret: %w", err)
		}
		defer relaySecret.Close()
		addresses.RelaySecret = relaySecret.String()
	}

	pairer := pairing.NewPairer(pairing.PairerConfig{
		Keypair:         keypair,
		Trust:           trust,
		Approver:        newTerminalApprover(os.Stdin, os.Stderr),
		Addresses:       addresses,
		FreshnessWindow: cfg.Host.FreshnessWindow(),
		ApprovalTimeout: cfg.Host.ApprovalTimeout(),
		Logger:          logger,
	})

	if *printURL {
		url, err := pairer.CurrentPayload().URL()
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	}

	tmuxServer := tmux.NewServer(cfg.Tmux.Socket, cfg.Tmux.ConfigFile)
	overflowPolicy, err := pane.ParseOverflowPolicy(cfg.Host.OverflowPolicy)
	if err != nil {
		return err
	}
	bridge, err := pane.NewTmuxBridge(tmuxServer, pane.TmuxBridgeConfig{
		Policy: overflowPolicy,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer bridge.Close()

	server := &host.Server{
		Config: host.Config{
			ListenAddr:         cfg.Host.Listen,
			MaxSessions:        cfg.Host.MaxSessions,
			AuthGrace:          cfg.Host.AuthGrace(),
			LoopbackAuthExempt: *cfg.Host.LoopbackAuthExempt,
		},
		Bridge:  bridge,
		Trust:   trust,
		Pairer:  pairer,
		Keypair: keypair,
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	server.Stop()
	return nil
}
