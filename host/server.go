// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucidity-foundation/lucidity/lib/clock"
	"github.com/lucidity-foundation/lucidity/lib/netutil"
	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/pane"
	"github.com/lucidity-foundation/lucidity/proto"
)

// Defaults for the connection supervisor.
const (
	// DefaultListenAddr binds to loopback only. Binding wider is a
	// deliberate act and logs a prominent warning.
	DefaultListenAddr = "127.0.0.1:9797"

	// DefaultMaxSessions is the admission cap across all active
	// sessions.
	DefaultMaxSessions = 4

	// DefaultAuthGrace is how long a connection gets to complete
	// authentication before it is closed.
	DefaultAuthGrace = 15 * time.Second
)

// Config holds the supervisor's tunables. The zero value uses the
// defaults above.
type Config struct {
	// ListenAddr is the TCP bind address.
	ListenAddr string

	// MaxSessions is the admission cap. Connection N+1 is accepted,
	// told why, and closed.
	MaxSessions int

	// AuthGrace closes connections that have not completed
	// authentication in time. Pairing in flight extends the grace.
	AuthGrace time.Duration

	// LoopbackAuthExempt lets loopback connections skip the
	// challenge-response handshake. Exempt sessions cannot reach the
	// trust store operations. Note this weakens the authentication
	// property to "all remote connections are authenticated".
	LoopbackAuthExempt bool
}

// Server is the connection supervisor: it owns the listener, admission
// control, and the registry of live sessions. Populate the exported
// fields, then Start.
type Server struct {
	// Config holds the supervisor tunables.
	Config Config

	// Bridge is the terminal capability. Required.
	Bridge pane.Bridge

	// Trust is the durable device store. Required.
	Trust *pairing.TrustStore

	// Pairer runs the pairing protocol. Required.
	Pairer *pairing.Pairer

	// Keypair is the host identity used to answer client nonces.
	// Required.
	Keypair *pairing.Keypair

	// Clock drives the auth grace timer. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives lifecycle events. Nil uses slog.Default().
	Logger *slog.Logger

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	active        atomic.Int64
	nextSessionID atomic.Uint64

	mu       sync.Mutex
	sessions map[uint64]*session
	wg       sync.WaitGroup
}

// logger returns the configured logger or the default.
func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// clk returns the configured clock or the real one.
func (s *Server) clk() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.Real()
}

// maxSessions returns the effective admission cap.
func (s *Server) maxSessions() int64 {
	if s.Config.MaxSessions > 0 {
		return int64(s.Config.MaxSessions)
	}
	return DefaultMaxSessions
}

// authGrace returns the effective authentication grace period.
func (s *Server) authGrace() time.Duration {
	if s.Config.AuthGrace > 0 {
		return s.Config.AuthGrace
	}
	return DefaultAuthGrace
}

// Start binds the listener and begins accepting connections. It
// returns once the listener is bound, or an error if binding fails —
// the only supervisor failure that should take the process down.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Config.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("host: binding %s: %w", addr, err)
	}
	s.listener = listener
	s.sessions = make(map[uint64]*session)

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok && !tcpAddr.IP.IsLoopback() {
		s.logger().Warn("SECURITY: host listening on a non-loopback address; anyone who can reach it and pass auth can inject keystrokes",
			"addr", listener.Addr().String(),
		)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger().Info("host listening",
		"addr", listener.Addr().String(),
		"max_sessions", s.maxSessions(),
		"loopback_auth_exempt", s.Config.LoopbackAuthExempt,
	)

	go s.acceptLoop(serverCtx)
	return nil
}

// Addr returns the bound listener address, for callers that bind
// port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for
// their goroutines to drain.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.close("server shutdown")
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.done != nil {
		<-s.done
	}
	s.logger().Info("host stopped")
}

// acceptLoop admits connections until the listener closes.
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.done)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if netutil.IsExpectedCloseError(err) || ctx.Err() != nil {
				return
			}
			s.logger().Warn("accept failed", "error", err)
			continue
		}
		s.admit(ctx, conn)
	}
}

// admit applies the admission cap and hands the connection to a
// session. Over the cap the connection is accepted, told why, and
// closed — never silently dropped.
func (s *Server) admit(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr().String()

	count := s.active.Add(1)
	if count > s.maxSessions() {
		s.active.Add(-1)
		s.logger().Warn("session rejected: admission cap reached",
			"peer", peer, "max_sessions", s.maxSessions())
		if frame, err := proto.EncodeControl(proto.NewError(
			fmt.Sprintf("server busy: max sessions (%d) reached", s.maxSessions()))); err == nil {
			conn.Write(frame)
		}
		conn.Close()
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := newSession(s, conn)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger().Info("session accepted",
		"session", sess.id, "peer", peer, "loopback", sess.loopback)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			s.active.Add(-1)
		}()
		sess.run(ctx)
	}()
}

// ActiveSessions returns the number of admitted sessions.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

// PushClipboard sends a clipboard_push control frame to every session
// that has left the authenticating state, including loopback sessions
// admitted without a handshake. Sessions that cannot take the frame
// immediately are skipped; clipboard sync is best-effort.
func (s *Server) PushClipboard(text string) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.pushClipboard(text)
	}
}
