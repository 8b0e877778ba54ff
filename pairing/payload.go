// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zeebo/blake3"
)

// PayloadVersion is the current pairing payload protocol version.
const PayloadVersion = 2

// URLScheme and URLHost form the pairing URL:
// lucidity://pair?data=<b64u(json payload)>.
const (
	URLScheme = "lucidity"
	URLHost   = "pair"
)

// relayIDLength is the length of the derived relay identifier in b64u
// characters.
const relayIDLength = 16

// Payload is the self-describing advertisement a new device scans,
// usually rendered as a QR code by the graphical shell. It is not
// signed; freshness is enforced by Timestamp and its binding into the
// device's pairing request signature.
type Payload struct {
	// DesktopPublicKey is the host's Ed25519 public key.
	DesktopPublicKey PublicKey `json:"desktop_public_key"`

	// RelayID is a short stable identifier derived from the host key,
	// used to address the host through a relay without exposing the
	// key itself.
	RelayID string `json:"relay_id"`

	// Timestamp is the payload generation time in unix seconds. A
	// pairing request must reference a recent timestamp.
	Timestamp int64 `json:"timestamp"`

	// Version is the payload protocol version.
	Version int `json:"version"`

	// LANAddr is a host:port reachable on the local network.
	LANAddr string `json:"lan_addr,omitempty"`

	// ExternalAddr is a host:port reachable from outside the LAN.
	ExternalAddr string `json:"external_addr,omitempty"`

	// Capabilities names the connection paths this payload advertises:
	// "lan", "upnp", "relay".
	Capabilities []string `json:"capabilities"`

	// RelayURL is the relay endpoint to fall back to when no direct
	// path works. The relay is a transparent byte pipe; it never holds
	// keys.
	RelayURL string `json:"relay_url,omitempty"`

	// RelaySecret authenticates to the relay, not to the host.
	RelaySecret string `json:"relay_secret,omitempty"`
}

// PayloadAddresses is the optional connectivity information stamped
// into a payload.
type PayloadAddresses struct {
	LANAddr      string
	ExternalAddr string
	RelayURL     string
	RelaySecret  string
}

// NewPayload builds a payload for the given host key, stamped at now.
// Capabilities are derived from which addresses are present.
func NewPayload(desktopKey PublicKey, now time.Time, addresses PayloadAddresses) Payload {
	capabilities := []string{}
	if addresses.LANAddr != "" {
		capabilities = append(capabilities, "lan")
	}
	if addresses.ExternalAddr != "" {
		capabilities = append(capabilities, "upnp")
	}
	if addresses.RelayURL != "" {
		capabilities = append(capabilities, "relay")
	}
	return Payload{
		DesktopPublicKey: desktopKey,
		RelayID:          RelayID(desktopKey),
		Timestamp:        now.Unix(),
		Version:          PayloadVersion,
		LANAddr:          addresses.LANAddr,
		ExternalAddr:     addresses.ExternalAddr,
		Capabilities:     capabilities,
		RelayURL:         addresses.RelayURL,
		RelaySecret:      addresses.RelaySecret,
	}
}

// RelayID derives the short relay identifier from a host public key:
// the b64u-encoded BLAKE3 hash of the key, truncated. Hashing keeps
// raw key material out of relay addressing.
func RelayID(key PublicKey) string {
	digest := blake3.Sum256(key[:])
	return b64u.EncodeToString(digest[:])[:relayIDLength]
}

// URL renders the payload as a pairing URL.
func (p Payload) URL() (string, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding pairing payload: %w", err)
	}
	return fmt.Sprintf("%s://%s?data=%s", URLScheme, URLHost, b64u.EncodeToString(encoded)), nil
}

// ParseURL decodes a pairing URL. Failures are fatal for the payload
// only, never for the session handling it.
func ParseURL(raw string) (*Payload, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing pairing URL: %w", err)
	}
	if parsed.Scheme != URLScheme {
		return nil, fmt.Errorf("pairing URL has scheme %q, want %q", parsed.Scheme, URLScheme)
	}
	if parsed.Host != URLHost {
		return nil, fmt.Errorf("pairing URL has host %q, want %q", parsed.Host, URLHost)
	}
	data := parsed.Query().Get("data")
	if data == "" {
		return nil, fmt.Errorf("pairing URL has no data parameter")
	}

	decoded, err := b64u.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding pairing payload: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("parsing pairing payload: %w", err)
	}
	return &payload, nil
}
