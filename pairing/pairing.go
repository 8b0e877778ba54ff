// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/lucidity-foundation/lucidity/lib/clock"
)

// Default protocol timings.
const (
	// DefaultFreshnessWindow bounds the replay window: a pairing
	// request whose timestamp is further than this from the current
	// time is rejected.
	DefaultFreshnessWindow = 300 * time.Second

	// DefaultApprovalTimeout bounds how long the human gets to answer
	// an approval prompt.
	DefaultApprovalTimeout = 60 * time.Second
)

// Rejection reasons carried in Response.Reason. Wire-stable.
const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonNoApprover       = "no_approver"
	ReasonTimeout          = "timeout"
	ReasonRejected         = "rejected"
	ReasonBusy             = "busy"
	ReasonStoreError       = "store_error"
)

// Request is a device's bid for trust. The signature covers the host
// public key concatenated with the little-endian timestamp, proving the
// device scanned a specific, recent payload.
type Request struct {
	MobilePublicKey PublicKey `json:"mobile_public_key"`
	Signature       Signature `json:"signature"`
	UserEmail       string    `json:"user_email"`
	DeviceName      string    `json:"device_name"`
	Timestamp       int64     `json:"timestamp"`
}

// SignedMessage reconstructs the bytes the device signed:
// desktop_public_key ‖ int64le(timestamp).
func SignedMessage(desktopKey PublicKey, timestamp int64) []byte {
	message := make([]byte, len(desktopKey)+8)
	copy(message, desktopKey[:])
	binary.LittleEndian.PutUint64(message[len(desktopKey):], uint64(timestamp))
	return message
}

// NewRequest builds and signs a request on the device side.
func NewRequest(device *Keypair, payload Payload, userEmail, deviceName string) Request {
	return Request{
		MobilePublicKey: device.PublicKey(),
		Signature:       device.Sign(SignedMessage(payload.DesktopPublicKey, payload.Timestamp)),
		UserEmail:       userEmail,
		DeviceName:      deviceName,
		Timestamp:       payload.Timestamp,
	}
}

// Verify checks the request signature against the host key it claims
// to have scanned.
func (r Request) Verify(desktopKey PublicKey) bool {
	return r.MobilePublicKey.Verify(SignedMessage(desktopKey, r.Timestamp), r.Signature)
}

// Response is the host's answer to a pairing submission.
type Response struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Approved builds a positive response.
func Approved() Response {
	return Response{Approved: true}
}

// Rejected builds a negative response with a reason.
func Rejected(reason string) Response {
	return Response{Approved: false, Reason: reason}
}

// Decision is an approver's verdict.
type Decision int

const (
	// Reject denies the request.
	Reject Decision = iota
	// Approve admits the device to the trust store.
	Approve
)

// ApprovalRequest is the summary shown to the human.
type ApprovalRequest struct {
	MobilePublicKey PublicKey
	DeviceName      string
	UserEmail       string
	Fingerprint     string
}

// Approver is the human-in-the-loop capability. Approve may suspend for
// as long as the human takes; the Pairer enforces the deadline through
// ctx and treats an expired ctx as a timeout. Implementations must
// tolerate ctx cancellation at any point.
type Approver interface {
	Approve(ctx context.Context, request ApprovalRequest) (Decision, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, request ApprovalRequest) (Decision, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, request ApprovalRequest) (Decision, error) {
	return f(ctx, request)
}

// PairerConfig assembles a Pairer's dependencies.
type PairerConfig struct {
	// Keypair is the host identity. Required.
	Keypair *Keypair

	// Trust is the durable device store. Required.
	Trust *TrustStore

	// Approver answers approval prompts. Nil means every request is
	// rejected with reason "no_approver".
	Approver Approver

	// Clock drives freshness checks and the approval deadline.
	// Nil uses the real clock.
	Clock clock.Clock

	// Addresses is the connectivity information stamped into payloads.
	Addresses PayloadAddresses

	// FreshnessWindow overrides DefaultFreshnessWindow when positive.
	FreshnessWindow time.Duration

	// ApprovalTimeout overrides DefaultApprovalTimeout when positive.
	ApprovalTimeout time.Duration

	// Logger receives pairing decisions. Nil discards.
	Logger *slog.Logger
}

// Pairer runs the host side of the pairing protocol: payload issuance,
// request validation, approver callout, trust store insertion.
//
// Approval prompts are serialized — one human question at a time —
// regardless of how many sessions submit concurrently.
type Pairer struct {
	keypair         *Keypair
	trust           *TrustStore
	approver        Approver
	clock           clock.Clock
	addresses       PayloadAddresses
	freshnessWindow time.Duration
	approvalTimeout time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	current *Payload

	// approvalMu serializes approver callouts across sessions.
	approvalMu sync.Mutex
}

// NewPairer builds a Pairer from the config.
func NewPairer(cfg PairerConfig) *Pairer {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	freshness := cfg.FreshnessWindow
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	approval := cfg.ApprovalTimeout
	if approval <= 0 {
		approval = DefaultApprovalTimeout
	}
	return &Pairer{
		keypair:         cfg.Keypair,
		trust:           cfg.Trust,
		approver:        cfg.Approver,
		clock:           c,
		addresses:       cfg.Addresses,
		freshnessWindow: freshness,
		approvalTimeout: approval,
		logger:          logger,
	}
}

// CurrentPayload returns the most recently issued payload, generating
// one on first use.
func (p *Pairer) CurrentPayload() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		payload := NewPayload(p.keypair.PublicKey(), p.clock.Now(), p.addresses)
		p.current = &payload
	}
	return *p.current
}

// RefreshPayload issues a new payload with a fresh timestamp.
func (p *Pairer) RefreshPayload() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload := NewPayload(p.keypair.PublicKey(), p.clock.Now(), p.addresses)
	p.current = &payload
	return *p.current
}

// Submit validates a pairing request and, if the human approves within
// the deadline, admits the device to the trust store. Submit blocks for
// up to the approval timeout; callers that must keep serving their
// connection run it from a separate goroutine. ctx cancellation (the
// session closed) aborts the prompt and rejects.
func (p *Pairer) Submit(ctx context.Context, request Request) Response {
	fingerprint := Fingerprint(request.MobilePublicKey)

	if !request.Verify(p.keypair.PublicKey()) {
		p.logger.Warn("pairing request has invalid signature",
			"device", request.DeviceName, "fingerprint", fingerprint)
		return Rejected(ReasonInvalidSignature)
	}

	age := p.clock.Now().Unix() - request.Timestamp
	if age < 0 {
		age = -age
	}
	if age > int64(p.freshnessWindow/time.Second) {
		p.logger.Warn("pairing request expired",
			"device", request.DeviceName, "age_seconds", age)
		return Rejected(ReasonExpired)
	}

	if p.approver == nil {
		p.logger.Warn("pairing request with no approver registered",
			"device", request.DeviceName)
		return Rejected(ReasonNoApprover)
	}

	// One approval prompt at a time across all sessions.
	p.approvalMu.Lock()
	defer p.approvalMu.Unlock()

	decision, timedOut := p.askApprover(ctx, ApprovalRequest{
		MobilePublicKey: request.MobilePublicKey,
		DeviceName:      request.DeviceName,
		UserEmail:       request.UserEmail,
		Fingerprint:     fingerprint,
	})
	if timedOut {
		p.logger.Warn("pairing approval timed out", "device", request.DeviceName)
		return Rejected(ReasonTimeout)
	}
	if decision != Approve {
		p.logger.Info("pairing rejected", "device", request.DeviceName)
		return Rejected(ReasonRejected)
	}

	err := p.trust.Add(ctx, TrustedDevice{
		PublicKey:  request.MobilePublicKey,
		UserEmail:  request.UserEmail,
		DeviceName: request.DeviceName,
		PairedAt:   p.clock.Now().Unix(),
	})
	if err != nil {
		p.logger.Error("storing trusted device", "device", request.DeviceName, "error", err)
		return Rejected(ReasonStoreError)
	}

	p.logger.Info("device paired",
		"device", request.DeviceName,
		"user", request.UserEmail,
		"fingerprint", fingerprint,
	)
	return Approved()
}

// askApprover runs the approver with the deadline enforced through the
// injected clock. Returns the decision, or timedOut=true when the
// deadline or the caller's ctx expired first.
func (p *Pairer) askApprover(ctx context.Context, request ApprovalRequest) (decision Decision, timedOut bool) {
	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		decision Decision
		err      error
	}
	results := make(chan result, 1)
	go func() {
		d, err := p.approver.Approve(promptCtx, request)
		results <- result{d, err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return Reject, false
		}
		return r.decision, false
	case <-p.clock.After(p.approvalTimeout):
		return Reject, true
	case <-ctx.Done():
		return Reject, true
	}
}
