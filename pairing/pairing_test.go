// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/lucidity-foundation/lucidity/lib/clock"
)

// decisionApprover answers every prompt with a fixed decision.
type decisionApprover struct {
	decision Decision
	asked    chan ApprovalRequest
}

func (a *decisionApprover) Approve(ctx context.Context, request ApprovalRequest) (Decision, error) {
	if a.asked != nil {
		a.asked <- request
	}
	return a.decision, nil
}

// blockingApprover never answers; the deadline must fire.
type blockingApprover struct {
	asked chan struct{}
}

func (a *blockingApprover) Approve(ctx context.Context, request ApprovalRequest) (Decision, error) {
	close(a.asked)
	<-ctx.Done()
	return Reject, ctx.Err()
}

// newTestPairer wires a Pairer over an in-memory trust store.
func newTestPairer(t *testing.T, c clock.Clock, approver Approver) (*Pairer, *TrustStore, *Keypair) {
	t.Helper()
	host := newTestKeypair(t)
	trust := openTestStore(t)
	pairer := NewPairer(PairerConfig{
		Keypair:  host,
		Trust:    trust,
		Approver: approver,
		Clock:    c,
	})
	return pairer, trust, host
}

// signedRequest builds a valid request for the pairer's current
// payload timestamp.
func signedRequest(t *testing.T, pairer *Pairer, device *Keypair) Request {
	t.Helper()
	return NewRequest(device, pairer.CurrentPayload(), "user@example.com", "Pixel 9")
}

// waitForPendingTimer spins until the fake clock has a registered
// timer, so Advance cannot race the select arm that creates it.
func waitForPendingTimer(t *testing.T, fake *clock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for fake.PendingTimers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no timer registered")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestPairer_ApproveInsertsTrust is the happy path: valid signature,
// fresh timestamp, approval, trust store row.
func TestPairer_ApproveInsertsTrust(t *testing.T) {
	ctx := context.Background()
	approver := &decisionApprover{decision: Approve, asked: make(chan ApprovalRequest, 1)}
	pairer, trust, _ := newTestPairer(t, clock.Fake(), approver)
	device := newTestKeypair(t)

	response := pairer.Submit(ctx, signedRequest(t, pairer, device))
	if !response.Approved {
		t.Fatalf("response = %+v, want approved", response)
	}

	asked := <-approver.asked
	if asked.DeviceName != "Pixel 9" || asked.Fingerprint != Fingerprint(device.PublicKey()) {
		t.Errorf("approval prompt = %+v", asked)
	}

	stored, err := trust.Get(ctx, device.PublicKey())
	if err != nil || stored == nil {
		t.Fatalf("device not stored: %v", err)
	}
	if stored.UserEmail != "user@example.com" {
		t.Errorf("stored email = %q", stored.UserEmail)
	}
}

// TestPairer_InvalidSignature rejects before asking anyone.
func TestPairer_InvalidSignature(t *testing.T) {
	ctx := context.Background()
	approver := &decisionApprover{decision: Approve, asked: make(chan ApprovalRequest, 1)}
	pairer, trust, _ := newTestPairer(t, clock.Fake(), approver)
	device := newTestKeypair(t)

	// Signature produced against the wrong host key.
	wrongHost := newTestKeypair(t)
	request := signedRequest(t, pairer, device)
	request.Signature = device.Sign(SignedMessage(wrongHost.PublicKey(), request.Timestamp))

	response := pairer.Submit(ctx, request)
	if response.Approved || response.Reason != ReasonInvalidSignature {
		t.Errorf("response = %+v, want invalid_signature", response)
	}
	if len(approver.asked) != 0 {
		t.Errorf("approver consulted for an invalid signature")
	}
	if count, _ := trust.Count(ctx); count != 0 {
		t.Errorf("trust store gained a row")
	}
}

// TestPairer_FreshnessBoundary: 300 seconds old is accepted, 301 is
// expired, and so is a timestamp from the future.
func TestPairer_FreshnessBoundary(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		ageSecs  int64
		approved bool
	}{
		{"exactly at the window", 300, true},
		{"one past the window", 301, false},
		{"six minutes stale", 360, false},
		{"from the future", -301, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := clock.Fake()
			pairer, _, host := newTestPairer(t, fake, &decisionApprover{decision: Approve})
			device := newTestKeypair(t)

			timestamp := fake.Now().Unix() - tc.ageSecs
			request := Request{
				MobilePublicKey: device.PublicKey(),
				Signature:       device.Sign(SignedMessage(host.PublicKey(), timestamp)),
				UserEmail:       "user@example.com",
				DeviceName:      "Pixel 9",
				Timestamp:       timestamp,
			}

			response := pairer.Submit(ctx, request)
			if response.Approved != tc.approved {
				t.Errorf("approved = %v, want %v (%+v)", response.Approved, tc.approved, response)
			}
			if !tc.approved && response.Reason != ReasonExpired {
				t.Errorf("reason = %q, want %q", response.Reason, ReasonExpired)
			}
		})
	}
}

// TestPairer_NoApprover rejects when nothing can ask the human.
func TestPairer_NoApprover(t *testing.T) {
	pairer, _, _ := newTestPairer(t, clock.Fake(), nil)
	device := newTestKeypair(t)

	response := pairer.Submit(context.Background(), signedRequest(t, pairer, device))
	if response.Approved || response.Reason != ReasonNoApprover {
		t.Errorf("response = %+v, want no_approver", response)
	}
}

// TestPairer_Rejected relays the human's no.
func TestPairer_Rejected(t *testing.T) {
	ctx := context.Background()
	pairer, trust, _ := newTestPairer(t, clock.Fake(), &decisionApprover{decision: Reject})
	device := newTestKeypair(t)

	response := pairer.Submit(ctx, signedRequest(t, pairer, device))
	if response.Approved || response.Reason != ReasonRejected {
		t.Errorf("response = %+v, want rejected", response)
	}
	if count, _ := trust.Count(ctx); count != 0 {
		t.Errorf("trust store gained a row after rejection")
	}
}

// TestPairer_ApprovalTimeout fires the deadline while the approver
// hangs; the session stays usable (Submit returns, no store row).
func TestPairer_ApprovalTimeout(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake()
	approver := &blockingApprover{asked: make(chan struct{})}
	pairer, trust, _ := newTestPairer(t, fake, approver)
	device := newTestKeypair(t)

	responses := make(chan Response, 1)
	go func() {
		responses <- pairer.Submit(ctx, signedRequest(t, pairer, device))
	}()

	<-approver.asked
	waitForPendingTimer(t, fake)
	fake.Advance(DefaultApprovalTimeout + time.Second)

	response := <-responses
	if response.Approved || response.Reason != ReasonTimeout {
		t.Errorf("response = %+v, want timeout", response)
	}
	if count, _ := trust.Count(ctx); count != 0 {
		t.Errorf("trust store gained a row after timeout")
	}
}

// TestPairer_RefreshPayload issues a new timestamp.
func TestPairer_RefreshPayload(t *testing.T) {
	fake := clock.Fake()
	pairer, _, host := newTestPairer(t, fake, nil)

	first := pairer.CurrentPayload()
	if first.DesktopPublicKey != host.PublicKey() {
		t.Errorf("payload carries the wrong host key")
	}
	if pairer.CurrentPayload().Timestamp != first.Timestamp {
		t.Errorf("CurrentPayload reissued without refresh")
	}

	fake.Advance(10 * time.Second)
	refreshed := pairer.RefreshPayload()
	if refreshed.Timestamp != first.Timestamp+10 {
		t.Errorf("refreshed timestamp = %d, want %d", refreshed.Timestamp, first.Timestamp+10)
	}
}

// TestRequest_VerifyLaw is the request signature law from the device
// side.
func TestRequest_VerifyLaw(t *testing.T) {
	host := newTestKeypair(t)
	device := newTestKeypair(t)
	payload := NewPayload(host.PublicKey(), time.Unix(1_760_000_000, 0), PayloadAddresses{})

	request := NewRequest(device, payload, "user@example.com", "Pixel 9")
	if !request.Verify(host.PublicKey()) {
		t.Errorf("request did not verify against the host key it signed")
	}
	if request.Verify(newTestKeypair(t).PublicKey()) {
		t.Errorf("request verified against a different host key")
	}
	if request.Timestamp != payload.Timestamp {
		t.Errorf("request timestamp %d does not match payload %d", request.Timestamp, payload.Timestamp)
	}
}
