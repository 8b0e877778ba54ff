// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"encoding/json"
	"fmt"

	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/pane"
)

// Client-originated operations.
const (
	OpListPanes                 = "list_panes"
	OpAttach                    = "attach"
	OpPaste                     = "paste"
	OpResize                    = "resize"
	OpPairingPayload            = "pairing_payload"
	OpPairingSubmit             = "pairing_submit"
	OpPairingListTrustedDevices = "pairing_list_trusted_devices"
	OpRevokeDevice              = "revoke_device"
	OpAuthResponse              = "auth_response"
)

// Host-originated operations.
const (
	OpAttachOk              = "attach_ok"
	OpPairingResponse       = "pairing_response"
	OpPairingTrustedDevices = "pairing_trusted_devices"
	OpAuthChallenge         = "auth_challenge"
	OpAuthSuccess           = "auth_success"
	OpClipboardPush         = "clipboard_push"
	OpOk                    = "ok"
	OpError                 = "error"
)

// RequestOp extracts the "op" discriminator from a control payload.
// A payload that is not a JSON object or lacks a string "op" field is
// malformed; per the error model that fails the connection.
func RequestOp(payload []byte) (string, error) {
	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("malformed control frame: %w", err)
	}
	if envelope.Op == "" {
		return "", fmt.Errorf("control frame has no op field")
	}
	return envelope.Op, nil
}

// AttachRequest requests attachment to a pane, establishing the output
// subscription.
type AttachRequest struct {
	Op     string `json:"op"`
	PaneID int    `json:"pane_id"`
}

// PasteRequest writes text into a pane, typically with bracketed-paste
// framing. Side effect only; no success response.
type PasteRequest struct {
	Op     string `json:"op"`
	PaneID int    `json:"pane_id"`
	Text   string `json:"text"`
}

// ResizeRequest resizes a pane. Side effect only; no success response.
type ResizeRequest struct {
	Op     string `json:"op"`
	PaneID int    `json:"pane_id"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
}

// PairingSubmitRequest carries a pairing request from a new device.
type PairingSubmitRequest struct {
	Op      string          `json:"op"`
	Request pairing.Request `json:"request"`
}

// RevokeDeviceRequest removes a device from the trust store.
type RevokeDeviceRequest struct {
	Op        string `json:"op"`
	PublicKey string `json:"public_key"`
}

// AuthResponseRequest answers an auth_challenge. Signature is the
// client's Ed25519 signature over the challenge nonce bytes. ClientNonce,
// when present, asks the host to prove its own identity by signing it.
type AuthResponseRequest struct {
	Op          string `json:"op"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	ClientNonce string `json:"client_nonce,omitempty"`
}

// ListPanesResponse carries the pane registry snapshot.
type ListPanesResponse struct {
	Op    string      `json:"op"`
	Panes []pane.Info `json:"panes"`
}

// AttachOkResponse confirms attachment. Output frames for the pane
// follow until detach, re-attach, or pane closure.
type AttachOkResponse struct {
	Op     string `json:"op"`
	PaneID int    `json:"pane_id"`
}

// PairingPayloadResponse carries a freshly stamped pairing payload.
type PairingPayloadResponse struct {
	Op      string          `json:"op"`
	Payload pairing.Payload `json:"payload"`
}

// PairingResponseMessage carries the outcome of a pairing submission.
type PairingResponseMessage struct {
	Op       string           `json:"op"`
	Response pairing.Response `json:"response"`
}

// PairingTrustedDevicesResponse lists the trusted device set.
type PairingTrustedDevicesResponse struct {
	Op      string                  `json:"op"`
	Devices []pairing.TrustedDevice `json:"devices"`
}

// AuthChallengeMessage opens the mutual authentication handshake.
// Nonce is base64url-encoded random bytes, fresh per connection.
type AuthChallengeMessage struct {
	Op    string `json:"op"`
	Nonce string `json:"nonce"`
}

// AuthSuccessMessage completes the handshake. Signature, when present,
// is the host's signature over the client's nonce, proving the host
// holds the private key the device stored at pairing time.
type AuthSuccessMessage struct {
	Op        string `json:"op"`
	Signature string `json:"signature,omitempty"`
}

// ClipboardPushMessage pushes host clipboard contents to the client.
type ClipboardPushMessage struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// OkResponse acknowledges an operation with no other result.
type OkResponse struct {
	Op string `json:"op"`
}

// ErrorMessage reports a failure to the peer. Depending on the failure
// class the connection may or may not survive; the message itself never
// implies closure.
type ErrorMessage struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// NewListPanesResponse builds a list_panes response.
func NewListPanesResponse(panes []pane.Info) ListPanesResponse {
	return ListPanesResponse{Op: OpListPanes, Panes: panes}
}

// NewAttachOk builds an attach_ok response.
func NewAttachOk(paneID int) AttachOkResponse {
	return AttachOkResponse{Op: OpAttachOk, PaneID: paneID}
}

// NewPairingPayloadResponse wraps a pairing payload.
func NewPairingPayloadResponse(payload pairing.Payload) PairingPayloadResponse {
	return PairingPayloadResponse{Op: OpPairingPayload, Payload: payload}
}

// NewPairingResponse wraps a pairing outcome.
func NewPairingResponse(response pairing.Response) PairingResponseMessage {
	return PairingResponseMessage{Op: OpPairingResponse, Response: response}
}

// NewPairingTrustedDevices wraps the trusted device listing.
func NewPairingTrustedDevices(devices []pairing.TrustedDevice) PairingTrustedDevicesResponse {
	return PairingTrustedDevicesResponse{Op: OpPairingTrustedDevices, Devices: devices}
}

// NewAuthChallenge builds an auth_challenge message.
func NewAuthChallenge(nonce string) AuthChallengeMessage {
	return AuthChallengeMessage{Op: OpAuthChallenge, Nonce: nonce}
}

// NewAuthSuccess builds an auth_success message.
func NewAuthSuccess(signature string) AuthSuccessMessage {
	return AuthSuccessMessage{Op: OpAuthSuccess, Signature: signature}
}

// NewClipboardPush builds a clipboard_push message.
func NewClipboardPush(text string) ClipboardPushMessage {
	return ClipboardPushMessage{Op: OpClipboardPush, Text: text}
}

// NewOk builds an ok response.
func NewOk() OkResponse {
	return OkResponse{Op: OpOk}
}

// NewError builds an error message.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Op: OpError, Message: message}
}

// EncodeControl marshals a control object and wraps it in a control
// frame ready for the wire.
func EncodeControl(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding control message: %w", err)
	}
	return Encode(TypeControl, payload)
}

// DecodeRequest unmarshals a control payload into the given
// operation-specific struct.
func DecodeRequest(payload []byte, into any) error {
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("malformed control frame: %w", err)
	}
	return nil
}
