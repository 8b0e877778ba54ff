// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the transparent byte-pipe forwarder a
// Lucidity deployment may place between a device and a loopback-bound
// host. The relay preserves the framed protocol verbatim and holds no
// keys: a device authenticating through it still performs the full
// mutual handshake with the host.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/lucidity-foundation/lucidity/lib/netutil"
)

// Relay forwards connections from a listen address to a target
// address, byte for byte, in both directions.
type Relay struct {
	// ListenNetwork and ListenAddr bind the accepting side
	// ("tcp" / "unix").
	ListenNetwork string
	ListenAddr    string

	// TargetNetwork and TargetAddr name the host to forward to.
	TargetNetwork string
	TargetAddr    string

	// Logger receives structured log output. If nil, slog.Default()
	// is used. Per-connection events log at Debug; lifecycle at Info;
	// failures at Warn or Error.
	Logger *slog.Logger

	listener    net.Listener
	cancel      context.CancelFunc
	done        chan struct{}
	connections sync.WaitGroup
}

// logger returns the configured logger or the default.
func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Start begins listening and forwarding. It returns once the listener
// is bound, or an error if binding fails. The relay runs in the
// background until Stop is called or the context is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	if r.ListenAddr == "" || r.TargetAddr == "" {
		return fmt.Errorf("relay: ListenAddr and TargetAddr are required")
	}
	if r.ListenNetwork == "" {
		r.ListenNetwork = "tcp"
	}
	if r.TargetNetwork == "" {
		r.TargetNetwork = "tcp"
	}

	listener, err := net.Listen(r.ListenNetwork, r.ListenAddr)
	if err != nil {
		return fmt.Errorf("relay: listening on %s %s: %w", r.ListenNetwork, r.ListenAddr, err)
	}
	r.listener = listener

	relayCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger().Info("relay listening",
		"listen", listener.Addr().String(),
		"target", r.TargetAddr,
	)

	go r.acceptLoop(relayCtx)
	return nil
}

// Addr returns the bound listener address.
func (r *Relay) Addr() net.Addr {
	return r.listener.Addr()
}

// Stop closes the listener and waits for in-flight connections to
// drain.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.listener != nil {
		r.listener.Close()
	}
	r.connections.Wait()
	if r.done != nil {
		<-r.done
	}
	r.logger().Info("relay stopped")
}

// acceptLoop forwards each accepted connection until the listener
// closes.
func (r *Relay) acceptLoop(ctx context.Context) {
	defer close(r.done)

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if netutil.IsExpectedCloseError(err) || ctx.Err() != nil {
				return
			}
			r.logger().Warn("relay accept failed", "error", err)
			continue
		}

		r.connections.Add(1)
		go func() {
			defer r.connections.Done()
			r.forward(conn)
		}()
	}
}

// forward pipes one connection to the target.
func (r *Relay) forward(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	r.logger().Debug("relay connection opened", "peer", peer)

	target, err := net.Dial(r.TargetNetwork, r.TargetAddr)
	if err != nil {
		r.logger().Error("relay target unreachable",
			"peer", peer, "target", r.TargetAddr, "error", err)
		conn.Close()
		return
	}

	if err := netutil.BridgeConns(conn, target); err != nil {
		r.logger().Warn("relay connection error", "peer", peer, "error", err)
	}
	r.logger().Debug("relay connection closed", "peer", peer)
}
