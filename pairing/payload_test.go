// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"strings"
	"testing"
	"time"
)

// TestPayload_URLRoundTrip is the parse(pairing_url(payload)) law.
func TestPayload_URLRoundTrip(t *testing.T) {
	key := newTestKeypair(t).PublicKey()
	now := time.Unix(1_760_000_000, 0)
	payload := NewPayload(key, now, PayloadAddresses{
		LANAddr:  "192.168.1.20:9797",
		RelayURL: "wss://relay.example.net",
	})

	url, err := payload.URL()
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.HasPrefix(url, "lucidity://pair?data=") {
		t.Fatalf("url = %q", url)
	}

	decoded, err := ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if decoded.DesktopPublicKey != payload.DesktopPublicKey {
		t.Errorf("desktop key changed in round trip")
	}
	if decoded.RelayID != payload.RelayID {
		t.Errorf("relay id changed in round trip")
	}
	if decoded.Timestamp != now.Unix() {
		t.Errorf("timestamp = %d, want %d", decoded.Timestamp, now.Unix())
	}
	if decoded.Version != PayloadVersion {
		t.Errorf("version = %d, want %d", decoded.Version, PayloadVersion)
	}
	if decoded.LANAddr != payload.LANAddr || decoded.RelayURL != payload.RelayURL {
		t.Errorf("addresses changed in round trip")
	}
}

// TestPayload_Capabilities are derived from which addresses are set.
func TestPayload_Capabilities(t *testing.T) {
	key := newTestKeypair(t).PublicKey()
	now := time.Now()

	bare := NewPayload(key, now, PayloadAddresses{})
	if len(bare.Capabilities) != 0 {
		t.Errorf("bare capabilities = %v, want empty", bare.Capabilities)
	}

	full := NewPayload(key, now, PayloadAddresses{
		LANAddr:      "10.0.0.2:9797",
		ExternalAddr: "203.0.113.9:9797",
		RelayURL:     "wss://relay.example.net",
	})
	want := []string{"lan", "upnp", "relay"}
	if len(full.Capabilities) != len(want) {
		t.Fatalf("capabilities = %v, want %v", full.Capabilities, want)
	}
	for i, capability := range want {
		if full.Capabilities[i] != capability {
			t.Errorf("capability %d = %q, want %q", i, full.Capabilities[i], capability)
		}
	}
}

// TestRelayID_StableAndShort pins the derivation properties: stable
// per key, distinct across keys, fixed length, not a key prefix.
func TestRelayID_StableAndShort(t *testing.T) {
	keyA := newTestKeypair(t).PublicKey()
	keyB := newTestKeypair(t).PublicKey()

	idA := RelayID(keyA)
	if idA != RelayID(keyA) {
		t.Errorf("relay id not stable")
	}
	if idA == RelayID(keyB) {
		t.Errorf("distinct keys produced the same relay id")
	}
	if len(idA) != relayIDLength {
		t.Errorf("relay id length = %d, want %d", len(idA), relayIDLength)
	}
	if strings.HasPrefix(keyA.String(), idA) {
		t.Errorf("relay id leaks a key prefix")
	}
}

// TestParseURL_Rejections covers scheme, host, and data failures.
func TestParseURL_Rejections(t *testing.T) {
	cases := []string{
		"http://example.com",
		"lucidity://other?data=AAAA",
		"lucidity://pair",
		"lucidity://pair?data=%%%",
		"lucidity://pair?data=bm90LWpzb24",
	}
	for _, raw := range cases {
		if _, err := ParseURL(raw); err == nil {
			t.Errorf("ParseURL(%q) succeeded, want error", raw)
		}
	}
}
