// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
)

// TestBridgeConns_CopiesBothWays pipes two connection pairs together
// and verifies bytes cross in both directions.
func TestBridgeConns_CopiesBothWays(t *testing.T) {
	clientSide, bridgeClient := net.Pipe()
	bridgeServer, serverSide := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- BridgeConns(bridgeClient, bridgeServer)
	}()

	go clientSide.Write([]byte("ping"))
	buffer := make([]byte, 4)
	if _, err := io.ReadFull(serverSide, buffer); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !bytes.Equal(buffer, []byte("ping")) {
		t.Errorf("server got %q", buffer)
	}

	go serverSide.Write([]byte("pong"))
	if _, err := io.ReadFull(clientSide, buffer); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(buffer, []byte("pong")) {
		t.Errorf("client got %q", buffer)
	}

	clientSide.Close()
	serverSide.Close()
	if err := <-done; err != nil {
		t.Errorf("bridge returned %v on clean close", err)
	}
}

// TestIsExpectedCloseError classifies teardown errors.
func TestIsExpectedCloseError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{net.ErrClosed, true},
		{syscall.EPIPE, true},
		{syscall.ECONNRESET, true},
		{syscall.ECONNREFUSED, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsExpectedCloseError(tc.err); got != tc.want {
			t.Errorf("IsExpectedCloseError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
