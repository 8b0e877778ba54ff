// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/lucidity-foundation/lucidity/lib/clock"
	"github.com/lucidity-foundation/lucidity/lib/netutil"
	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/pane"
	"github.com/lucidity-foundation/lucidity/proto"
)

// sessionState is the per-connection dispatcher state.
type sessionState int

const (
	// stateAuthenticating accepts auth_response and, because pairing
	// exists to establish future authentication, the pairing ops.
	stateAuthenticating sessionState = iota

	// stateReady accepts pane listing, attach, pairing, and trust
	// store operations.
	stateReady

	// stateAttached additionally accepts pane input, resize, paste,
	// and re-attach.
	stateAttached
)

func (s sessionState) String() string {
	switch s {
	case stateAuthenticating:
		return "authenticating"
	case stateReady:
		return "ready"
	case stateAttached:
		return "attached"
	default:
		return "unknown"
	}
}

// outboundQueueSize bounds the control/output frame queue between the
// dispatcher and the transport writer. Pane output has its own
// bounded subscription queue upstream; this queue only smooths bursts.
const outboundQueueSize = 256

// attachment is one live pane subscription.
type attachment struct {
	paneID       int
	subscription *pane.Subscription

	// detached is closed by the session when it deliberately releases
	// the subscription (re-attach, close), so the forwarder can tell
	// deliberate release from the pane dying.
	detached chan struct{}
}

// session is one connection's state machine. The reader goroutine owns
// frame decoding and op dispatch; a writer goroutine owns the
// transport write side; a per-attachment forwarder pumps subscription
// chunks into output frames.
type session struct {
	id     uint64
	server *Server
	conn   net.Conn
	peer   string

	loopback bool
	logger   *slog.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// outbound carries encoded frames to the writer goroutine.
	// Control responses are enqueued by the reader in arrival order.
	outbound chan []byte

	// closed is closed exactly once when the session shuts down.
	closed    chan struct{}
	closeOnce sync.Once

	// mu guards the fields below against the forwarder and timer
	// goroutines.
	mu             sync.Mutex
	state          sessionState
	authenticated  bool
	deviceKey      *pairing.PublicKey
	challengeNonce []byte
	attached       *attachment
	pairingPending bool
	closeReason    string

	graceTimer *clock.Timer
}

// newSession wraps an accepted connection.
func newSession(server *Server, conn net.Conn) *session {
	id := server.nextSessionID.Add(1)
	peer := conn.RemoteAddr().String()
	loopback := false
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		loopback = tcpAddr.IP.IsLoopback()
	}
	return &session{
		id:       id,
		server:   server,
		conn:     conn,
		peer:     peer,
		loopback: loopback,
		logger: server.logger().With(
			"session", id,
			"peer", peer,
		),
		outbound: make(chan []byte, outboundQueueSize),
		closed:   make(chan struct{}),
	}
}

// lock acquires the session mutex.
func (s *session) lock() { s.mu.Lock() }

// unlock releases the session mutex.
func (s *session) unlock() { s.mu.Unlock() }

// run drives the session until the connection closes. It owns the
// reader side; the writer runs as a child goroutine.
func (s *session) run(ctx context.Context) {
	s.ctx, s.cancelCtx = context.WithCancel(ctx)
	defer s.cleanup()

	go s.writeLoop()

	if s.loopback && s.server.Config.LoopbackAuthExempt {
		s.state = stateReady
		s.logger.Debug("loopback session exempt from authentication")
	} else {
		if err := s.sendChallenge(); err != nil {
			s.close(err.Error())
			return
		}
	}

	s.readLoop()
}

// cleanup releases everything the session holds: subscription,
// pending pairing context, transport, and the admission slot (released
// by the caller in the supervisor).
func (s *session) cleanup() {
	s.lock()
	reason := s.closeReason
	if reason == "" {
		reason = "connection closed"
	}
	s.detachLocked()
	s.unlock()

	s.cancelCtx()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.conn.Close()
	s.logger.Info("session closed", "reason", reason)
}

// close requests shutdown with a reason. Safe to call from any
// goroutine, any number of times; the first reason wins.
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		s.lock()
		s.closeReason = reason
		s.unlock()
		close(s.closed)
		s.conn.Close()
	})
}

// sendChallenge opens the mutual handshake and starts the grace timer.
func (s *session) sendChallenge() error {
	nonce, err := newNonce(nil)
	if err != nil {
		return err
	}
	s.lock()
	s.state = stateAuthenticating
	s.challengeNonce = nonce
	s.unlock()

	grace := s.server.authGrace()
	s.graceTimer = s.server.clk().AfterFunc(grace, s.onGraceExpired)

	return s.enqueueControl(proto.NewAuthChallenge(b64u.EncodeToString(nonce)))
}

// onGraceExpired fires when the auth grace period lapses. A pairing
// request in flight extends the grace — the human is the slow party,
// not the client.
func (s *session) onGraceExpired() {
	s.lock()
	authenticated := s.authenticated
	pending := s.pairingPending
	s.unlock()

	if authenticated {
		return
	}
	if pending {
		s.graceTimer = s.server.clk().AfterFunc(s.server.authGrace(), s.onGraceExpired)
		return
	}
	s.logger.Warn("authentication grace period expired")
	s.close("auth grace period expired")
}

// readLoop decodes frames from the transport and dispatches them.
func (s *session) readLoop() {
	decoder := &proto.Decoder{}
	buffer := make([]byte, 64*1024)

	for {
		n, err := s.conn.Read(buffer)
		if n > 0 {
			decoder.Push(buffer[:n])
			for {
				frame, err := decoder.Next()
				if err != nil {
					s.logger.Warn("protocol violation: bad frame", "error", err)
					s.close("frame decode error")
					return
				}
				if frame == nil {
					break
				}
				if !s.handleFrame(frame) {
					return
				}
			}
		}
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("read error", "error", err)
			}
			s.close("connection closed by peer")
			return
		}
	}
}

// writeLoop owns the transport write side.
func (s *session) writeLoop() {
	for {
		select {
		case frame := <-s.outbound:
			if _, err := s.conn.Write(frame); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					s.logger.Debug("write error", "error", err)
				}
				s.close("transport write error")
				return
			}
		case <-s.closed:
			return
		}
	}
}

// enqueue hands an encoded frame to the writer. Blocks if the queue is
// full — per-connection backpressure is acceptable; per-pane producer
// backpressure is not and is prevented upstream.
func (s *session) enqueue(frame []byte) error {
	select {
	case s.outbound <- frame:
		return nil
	case <-s.closed:
		return net.ErrClosed
	}
}

// enqueueControl encodes and enqueues a control message.
func (s *session) enqueueControl(message any) error {
	frame, err := proto.EncodeControl(message)
	if err != nil {
		return err
	}
	return s.enqueue(frame)
}

// sendError reports a survivable failure to the peer.
func (s *session) sendError(message string) {
	s.enqueueControl(proto.NewError(message))
}

// pushClipboard best-effort delivers a clipboard_push to this session.
func (s *session) pushClipboard(text string) {
	s.lock()
	eligible := s.state != stateAuthenticating
	s.unlock()
	if !eligible {
		return
	}
	frame, err := proto.EncodeControl(proto.NewClipboardPush(text))
	if err != nil {
		return
	}
	select {
	case s.outbound <- frame:
	default:
	}
}

// handleFrame routes one frame. Returns false when the session must
// stop reading.
func (s *session) handleFrame(frame *proto.Frame) bool {
	switch frame.Type {
	case proto.TypeControl:
		return s.handleControl(frame.Payload)
	case proto.TypePaneInput:
		return s.handlePaneInput(frame.Payload)
	default:
		s.logger.Warn("protocol violation: unknown frame type", "type", frame.Type)
		s.close(fmt.Sprintf("unknown frame type %d", frame.Type))
		return false
	}
}

// handlePaneInput writes client keystrokes to the attached pane.
// Input outside stateAttached is dropped and logged, never fatal.
func (s *session) handlePaneInput(payload []byte) bool {
	s.lock()
	att := s.attached
	inAttached := s.state == stateAttached
	s.unlock()

	if !inAttached || att == nil {
		s.logger.Debug("dropping pane input outside attached state", "bytes", len(payload))
		return true
	}

	if err := s.server.Bridge.Write(att.paneID, payload); err != nil {
		s.logger.Warn("pane write failed", "pane_id", att.paneID, "error", err)
		s.sendError(fmt.Sprintf("write to pane %d failed", att.paneID))
	}
	return true
}

// handleControl dispatches one control op according to the current
// state. Returns false when the session must stop reading.
func (s *session) handleControl(payload []byte) bool {
	op, err := proto.RequestOp(payload)
	if err != nil {
		s.logger.Warn("protocol violation: malformed control frame", "error", err)
		s.close("malformed control frame")
		return false
	}

	s.lock()
	state := s.state
	s.unlock()

	if state == stateAuthenticating {
		switch op {
		case proto.OpAuthResponse:
			return s.handleAuthResponse(payload)
		case proto.OpPairingPayload, proto.OpPairingSubmit:
			// Pairing exists to establish future authentication, so it
			// is reachable before the handshake completes.
		default:
			s.sendError("authentication required")
			s.close(fmt.Sprintf("op %q before authentication", op))
			return false
		}
	}

	switch op {
	case proto.OpListPanes:
		s.handleListPanes()
	case proto.OpAttach:
		return s.handleAttach(payload)
	case proto.OpPairingPayload:
		s.enqueueControl(proto.NewPairingPayloadResponse(s.server.Pairer.RefreshPayload()))
	case proto.OpPairingSubmit:
		return s.handlePairingSubmit(payload)
	case proto.OpPairingListTrustedDevices:
		s.handleListTrustedDevices()
	case proto.OpRevokeDevice:
		return s.handleRevokeDevice(payload)
	case proto.OpPaste:
		return s.handlePaste(payload, state)
	case proto.OpResize:
		return s.handleResize(payload, state)
	case proto.OpAuthResponse:
		// A challenge was never issued (loopback exemption) or the
		// handshake already completed.
		s.sendError("no authentication challenge outstanding")
		s.close("unexpected auth_response")
		return false
	default:
		s.logger.Debug("unknown op", "op", op)
		s.sendError(fmt.Sprintf("unknown op: %s", op))
	}
	return true
}

// handleAuthResponse verifies the device signature over the challenge
// nonce, checks trust store membership, and answers the client's
// counter-challenge.
func (s *session) handleAuthResponse(payload []byte) bool {
	var request proto.AuthResponseRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed auth_response")
		return false
	}

	deviceKey, err := pairing.ParsePublicKey(request.PublicKey)
	if err != nil {
		s.failAuth("malformed public key")
		return false
	}
	signature, err := pairing.ParseSignature(request.Signature)
	if err != nil {
		s.failAuth("malformed signature")
		return false
	}

	s.lock()
	nonce := s.challengeNonce
	s.unlock()

	if !deviceKey.Verify(nonce, signature) {
		s.logger.Warn("authentication failed: bad signature",
			"fingerprint", pairing.Fingerprint(deviceKey))
		s.failAuth("invalid_signature")
		return false
	}

	trusted, err := s.server.Trust.IsTrusted(s.ctx, deviceKey)
	if err != nil {
		s.logger.Error("trust store lookup failed", "error", err)
		s.failAuth("trust store unavailable")
		return false
	}
	if !trusted {
		s.logger.Warn("authentication failed: unknown device",
			"fingerprint", pairing.Fingerprint(deviceKey))
		s.failAuth("unknown_device")
		return false
	}

	// Prove our side of the handshake by signing the client's nonce.
	hostSignature := ""
	if request.ClientNonce != "" {
		clientNonce, err := decodeNonce(request.ClientNonce)
		if err != nil {
			s.failAuth("malformed client nonce")
			return false
		}
		hostSignature = s.server.Keypair.Sign(clientNonce).String()
	}

	s.lock()
	s.authenticated = true
	s.deviceKey = &deviceKey
	s.challengeNonce = nil
	if s.state == stateAuthenticating {
		s.state = stateReady
	}
	s.unlock()

	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	if err := s.server.Trust.Touch(s.ctx, deviceKey, s.server.clk().Now().Unix()); err != nil {
		s.logger.Warn("updating last_seen failed", "error", err)
	}

	s.logger.Info("session authenticated",
		"fingerprint", pairing.Fingerprint(deviceKey))
	s.enqueueControl(proto.NewAuthSuccess(hostSignature))
	return true
}

// failAuth reports an authentication failure and closes. Authorization
// failures during the handshake are fatal to the connection.
func (s *session) failAuth(message string) {
	s.sendError(message)
	s.close("authentication failed: " + message)
}

// handleListPanes returns the bridge's pane snapshot.
func (s *session) handleListPanes() {
	panes, err := s.server.Bridge.List()
	if err != nil {
		s.logger.Warn("listing panes failed", "error", err)
		s.sendError("listing panes failed")
		return
	}
	if panes == nil {
		panes = []pane.Info{}
	}
	s.enqueueControl(proto.NewListPanesResponse(panes))
}

// handleAttach installs the output subscription, releasing any prior
// one first so a re-attach never double-delivers.
func (s *session) handleAttach(payload []byte) bool {
	var request proto.AttachRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed attach")
		return false
	}

	// Cancel the prior subscription before installing the new one, so
	// no window exists where both deliver.
	s.lock()
	s.detachLocked()
	s.unlock()

	subscription, err := s.server.Bridge.Subscribe(request.PaneID)
	if err != nil {
		s.logger.Warn("attach failed", "pane_id", request.PaneID, "error", err)
		s.sendError(fmt.Sprintf("pane %d not found", request.PaneID))
		return true
	}

	att := &attachment{
		paneID:       request.PaneID,
		subscription: subscription,
		detached:     make(chan struct{}),
	}

	s.lock()
	s.attached = att
	s.state = stateAttached
	s.unlock()

	s.logger.Info("attached", "pane_id", request.PaneID)
	s.enqueueControl(proto.NewAttachOk(request.PaneID))
	go s.forwardOutput(att)
	return true
}

// detachLocked releases the current attachment. Caller holds the
// session lock.
func (s *session) detachLocked() {
	if s.attached == nil {
		return
	}
	close(s.attached.detached)
	s.attached.subscription.Close()
	s.attached = nil
	if s.state == stateAttached {
		s.state = stateReady
	}
}

// forwardOutput pumps subscription chunks into output frames until the
// subscription terminates. A termination the session did not initiate
// means the pane died: the client gets a pane_closed error and the
// session drops back to ready.
func (s *session) forwardOutput(att *attachment) {
	for {
		select {
		case chunk, ok := <-att.subscription.C():
			if !ok {
				select {
				case <-att.detached:
					// Deliberate release; nothing to report.
				default:
					s.logger.Info("pane closed under attachment", "pane_id", att.paneID)
					s.lock()
					if s.attached == att {
						s.attached = nil
						if s.state == stateAttached {
							s.state = stateReady
						}
					}
					s.unlock()
					s.sendError("pane_closed")
				}
				return
			}
			frame, err := proto.Encode(proto.TypePaneOutput, chunk)
			if err != nil {
				s.logger.Error("encoding output frame", "error", err)
				continue
			}
			if s.enqueue(frame) != nil {
				return
			}
		case <-att.detached:
			return
		case <-s.closed:
			return
		}
	}
}

// handlePaste writes text into a pane. Only legal while attached.
func (s *session) handlePaste(payload []byte, state sessionState) bool {
	if state != stateAttached {
		s.sendError("paste requires an attached pane")
		s.close("paste outside attached state")
		return false
	}
	var request proto.PasteRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed paste")
		return false
	}
	if err := s.server.Bridge.Paste(request.PaneID, request.Text); err != nil {
		s.logger.Warn("paste failed", "pane_id", request.PaneID, "error", err)
		s.sendError(fmt.Sprintf("paste to pane %d failed", request.PaneID))
	}
	return true
}

// handleResize resizes a pane. Only legal while attached.
func (s *session) handleResize(payload []byte, state sessionState) bool {
	if state != stateAttached {
		s.sendError("resize requires an attached pane")
		s.close("resize outside attached state")
		return false
	}
	var request proto.ResizeRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed resize")
		return false
	}
	if err := s.server.Bridge.Resize(request.PaneID, request.Rows, request.Cols); err != nil {
		s.logger.Warn("resize failed", "pane_id", request.PaneID, "error", err)
		s.sendError(fmt.Sprintf("resize of pane %d failed", request.PaneID))
	}
	return true
}

// handlePairingSubmit validates the submission asynchronously so the
// session keeps serving frames while the human decides. A second
// submission while one is pending is answered busy.
func (s *session) handlePairingSubmit(payload []byte) bool {
	var request proto.PairingSubmitRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed pairing_submit")
		return false
	}

	s.lock()
	if s.pairingPending {
		s.unlock()
		s.enqueueControl(proto.NewPairingResponse(pairing.Rejected(pairing.ReasonBusy)))
		return true
	}
	s.pairingPending = true
	s.unlock()

	go func() {
		response := s.server.Pairer.Submit(s.ctx, request.Request)
		s.lock()
		s.pairingPending = false
		s.unlock()
		s.enqueueControl(proto.NewPairingResponse(response))
	}()
	return true
}

// handleListTrustedDevices returns the trust store contents. Requires
// real authentication; loopback-exempt sessions are refused.
func (s *session) handleListTrustedDevices() {
	s.lock()
	authenticated := s.authenticated
	s.unlock()
	if !authenticated {
		s.sendError("listing trusted devices requires authentication")
		return
	}

	devices, err := s.server.Trust.List(s.ctx)
	if err != nil {
		s.logger.Error("listing trusted devices failed", "error", err)
		s.sendError("trust store unavailable")
		return
	}
	if devices == nil {
		devices = []pairing.TrustedDevice{}
	}
	s.enqueueControl(proto.NewPairingTrustedDevices(devices))
}

// handleRevokeDevice removes a device from the trust store. Requires
// real authentication. Revocation does not terminate that device's
// live sessions; it takes effect at the next handshake.
func (s *session) handleRevokeDevice(payload []byte) bool {
	var request proto.RevokeDeviceRequest
	if err := proto.DecodeRequest(payload, &request); err != nil {
		s.close("malformed revoke_device")
		return false
	}

	s.lock()
	authenticated := s.authenticated
	s.unlock()
	if !authenticated {
		s.sendError("revoking a device requires authentication")
		return true
	}

	key, err := pairing.ParsePublicKey(request.PublicKey)
	if err != nil {
		s.sendError("malformed public key")
		return true
	}

	removed, err := s.server.Trust.Remove(s.ctx, key)
	if err != nil {
		s.logger.Error("revoking device failed", "error", err)
		s.sendError("trust store unavailable")
		return true
	}
	if !removed {
		s.sendError("unknown device")
		return true
	}

	s.logger.Info("device revoked", "fingerprint", pairing.Fingerprint(key))
	s.enqueueControl(proto.NewOk())
	return true
}
