// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the device side of the Lucidity wire
// protocol: connect, authenticate, list panes, attach, and relay raw
// terminal bytes. The attach CLI and the pairing CLI are thin wrappers
// over this package; a mobile renderer speaks the same protocol.
package client

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/pane"
	"github.com/lucidity-foundation/lucidity/proto"
)

// b64u matches the host's nonce and signature encoding.
var b64u = base64.RawURLEncoding

// Client is one connection to a Lucidity host. Not safe for concurrent
// use; callers that stream output while sending input serialize writes
// themselves (SendInput is the only concurrent-safe write).
type Client struct {
	conn    net.Conn
	decoder proto.Decoder
	buffer  []byte
}

// Dial connects to a host (or a relay fronting one).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection, typically from Dial or a test
// net.Pipe.
func New(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		buffer: make([]byte, 64*1024),
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ReadFrame blocks until one complete frame arrives.
func (c *Client) ReadFrame() (*proto.Frame, error) {
	for {
		if frame, err := c.decoder.Next(); err != nil {
			return nil, err
		} else if frame != nil {
			return frame, nil
		}
		n, err := c.conn.Read(c.buffer)
		if n > 0 {
			c.decoder.Push(c.buffer[:n])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// readControl blocks until a control frame arrives, skipping pane
// output, and returns its op and raw payload.
func (c *Client) readControl() (string, []byte, error) {
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return "", nil, err
		}
		if frame.Type != proto.TypeControl {
			continue
		}
		op, err := proto.RequestOp(frame.Payload)
		if err != nil {
			return "", nil, err
		}
		return op, frame.Payload, nil
	}
}

// waitFor blocks until the named response op (or an error) arrives.
// Unrelated server-initiated frames — an auth challenge racing a
// pairing exchange, a clipboard push — are skipped, not failures.
func (c *Client) waitFor(wantOp string) ([]byte, error) {
	for {
		op, payload, err := c.readControl()
		if err != nil {
			return nil, err
		}
		switch op {
		case wantOp:
			return payload, nil
		case proto.OpError:
			return nil, fmt.Errorf("host error: %s", errorMessage(payload))
		}
	}
}

// send encodes and writes one control message.
func (c *Client) send(message any) error {
	frame, err := proto.EncodeControl(message)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing control frame: %w", err)
	}
	return nil
}

// request is an op-only control message.
type request struct {
	Op string `json:"op"`
}

// Authenticate completes the mutual handshake: waits for the host's
// challenge, answers it with the device keypair, and verifies the
// host's signature over a fresh client nonce against hostKey. Pass a
// nil hostKey to skip host verification (first contact before pairing
// stored the host key).
func (c *Client) Authenticate(device *pairing.Keypair, hostKey *pairing.PublicKey) error {
	payload, err := c.waitFor(proto.OpAuthChallenge)
	if err != nil {
		return fmt.Errorf("waiting for auth challenge: %w", err)
	}

	var challenge proto.AuthChallengeMessage
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return fmt.Errorf("parsing auth challenge: %w", err)
	}
	nonce, err := b64u.DecodeString(challenge.Nonce)
	if err != nil {
		return fmt.Errorf("decoding server nonce: %w", err)
	}

	clientNonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, clientNonce); err != nil {
		return fmt.Errorf("generating client nonce: %w", err)
	}

	err = c.send(proto.AuthResponseRequest{
		Op:          proto.OpAuthResponse,
		PublicKey:   device.PublicKey().String(),
		Signature:   device.Sign(nonce).String(),
		ClientNonce: b64u.EncodeToString(clientNonce),
	})
	if err != nil {
		return err
	}

	payload, err = c.waitFor(proto.OpAuthSuccess)
	if err != nil {
		return fmt.Errorf("authentication rejected: %w", err)
	}

	if hostKey != nil {
		var success proto.AuthSuccessMessage
		if err := json.Unmarshal(payload, &success); err != nil {
			return fmt.Errorf("parsing auth_success: %w", err)
		}
		if success.Signature == "" {
			return fmt.Errorf("host did not sign the client nonce")
		}
		signature, err := pairing.ParseSignature(success.Signature)
		if err != nil {
			return fmt.Errorf("parsing host signature: %w", err)
		}
		if !hostKey.Verify(clientNonce, signature) {
			return fmt.Errorf("host signature did not verify; refusing to proceed")
		}
	}
	return nil
}

// ListPanes fetches the pane snapshot.
func (c *Client) ListPanes() ([]pane.Info, error) {
	if err := c.send(request{Op: proto.OpListPanes}); err != nil {
		return nil, err
	}
	payload, err := c.waitFor(proto.OpListPanes)
	if err != nil {
		return nil, err
	}
	var response proto.ListPanesResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("parsing list_panes response: %w", err)
	}
	return response.Panes, nil
}

// Attach subscribes to a pane's output. After attach_ok, ReadFrame
// yields TypePaneOutput frames interleaved with control frames.
func (c *Client) Attach(paneID int) error {
	if err := c.send(proto.AttachRequest{Op: proto.OpAttach, PaneID: paneID}); err != nil {
		return err
	}
	if _, err := c.waitFor(proto.OpAttachOk); err != nil {
		return fmt.Errorf("attach failed: %w", err)
	}
	return nil
}

// SendInput writes raw bytes to the attached pane.
func (c *Client) SendInput(data []byte) error {
	frame, err := proto.Encode(proto.TypePaneInput, data)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing input frame: %w", err)
	}
	return nil
}

// Paste sends text for bracketed paste into a pane.
func (c *Client) Paste(paneID int, text string) error {
	return c.send(proto.PasteRequest{Op: proto.OpPaste, PaneID: paneID, Text: text})
}

// Resize requests new pane dimensions.
func (c *Client) Resize(paneID, rows, cols int) error {
	return c.send(proto.ResizeRequest{Op: proto.OpResize, PaneID: paneID, Rows: rows, Cols: cols})
}

// PairingPayload fetches a freshly stamped pairing payload.
func (c *Client) PairingPayload() (*pairing.Payload, error) {
	if err := c.send(request{Op: proto.OpPairingPayload}); err != nil {
		return nil, err
	}
	payload, err := c.waitFor(proto.OpPairingPayload)
	if err != nil {
		return nil, err
	}
	var response proto.PairingPayloadResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("parsing pairing_payload response: %w", err)
	}
	return &response.Payload, nil
}

// SubmitPairing submits a pairing request and waits for the verdict,
// which may take as long as the host's approval timeout.
func (c *Client) SubmitPairing(pairingRequest pairing.Request) (*pairing.Response, error) {
	err := c.send(proto.PairingSubmitRequest{Op: proto.OpPairingSubmit, Request: pairingRequest})
	if err != nil {
		return nil, err
	}
	payload, err := c.waitFor(proto.OpPairingResponse)
	if err != nil {
		return nil, err
	}
	var response proto.PairingResponseMessage
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("parsing pairing_response: %w", err)
	}
	return &response.Response, nil
}

// ListTrustedDevices fetches the trust store contents. Authenticated
// sessions only.
func (c *Client) ListTrustedDevices() ([]pairing.TrustedDevice, error) {
	if err := c.send(request{Op: proto.OpPairingListTrustedDevices}); err != nil {
		return nil, err
	}
	payload, err := c.waitFor(proto.OpPairingTrustedDevices)
	if err != nil {
		return nil, err
	}
	var response proto.PairingTrustedDevicesResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("parsing pairing_trusted_devices: %w", err)
	}
	return response.Devices, nil
}

// RevokeDevice removes a device from the trust store. Authenticated
// sessions only.
func (c *Client) RevokeDevice(key pairing.PublicKey) error {
	err := c.send(proto.RevokeDeviceRequest{Op: proto.OpRevokeDevice, PublicKey: key.String()})
	if err != nil {
		return err
	}
	if _, err := c.waitFor(proto.OpOk); err != nil {
		return fmt.Errorf("revoke failed: %w", err)
	}
	return nil
}

// errorMessage extracts the message from an error control payload.
func errorMessage(payload []byte) string {
	var message proto.ErrorMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return string(payload)
	}
	return message.Message
}
