// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// lucidity-pair runs the device side of the pairing protocol: it
// fetches (or parses) a pairing payload, generates a device keypair,
// and submits a signed pairing request for the host's human to
// approve.
//
// Usage:
//
//	lucidity-pair --addr 127.0.0.1:9797 --email you@example.com --name "Pixel 9"
//	lucidity-pair --url 'lucidity://pair?data=...' --email you@example.com --name laptop
//
// On approval the device keypair is saved to --key-out and the host's
// public key is printed for use with lucidity-attach --host-key.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/lucidity-foundation/lucidity/client"
	"github.com/lucidity-foundation/lucidity/lib/version"
	"github.com/lucidity-foundation/lucidity/pairing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("lucidity-pair", pflag.ContinueOnError)
	addr := flags.String("addr", "", "host address to fetch the payload from")
	rawURL := flags.String("url", "", "pairing URL (from the host's QR code)")
	email := flags.String("email", "", "user email shown in the approval prompt")
	deviceName := flags.String("name", "", "device name shown in the approval prompt")
	keyOut := flags.String("key-out", "device_key.json", "where to save the device keypair")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("lucidity-pair %s\n", version.Info())
		return nil
	}
	if *email == "" || *deviceName == "" {
		return fmt.Errorf("--email and --name are required")
	}

	var payload *pairing.Payload
	connectAddr := *addr

	if *rawURL != "" {
		parsed, err := pairing.ParseURL(*rawURL)
		if err != nil {
			return err
		}
		payload = parsed
		if connectAddr == "" {
			connectAddr = payload.LANAddr
		}
		if connectAddr == "" {
			connectAddr = payload.ExternalAddr
		}
	}
	if connectAddr == "" {
		return fmt.Errorf("no host address: pass --addr or a --url with a lan_addr")
	}

	c, err := client.Dial(connectAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	// A scanned URL already carries a stamped payload; otherwise ask
	// the host for a fresh one over the connection.
	if payload == nil {
		payload, err = c.PairingPayload()
		if err != nil {
			return err
		}
	}

	// Load or create the device identity before submitting, so a
	// retried pairing keeps the same key.
	store := pairing.NewKeypairStore(*keyOut)
	keypair, generated, err := store.LoadOrGenerate()
	if err != nil {
		return err
	}
	if generated {
		fmt.Printf("generated device keypair at %s\n", *keyOut)
	}

	request := pairing.NewRequest(keypair, *payload, *email, *deviceName)
	fmt.Printf("submitting pairing request (fingerprint %s); waiting for approval on the host...\n",
		pairing.Fingerprint(keypair.PublicKey()))

	response, err := c.SubmitPairing(request)
	if err != nil {
		return err
	}
	if !response.Approved {
		return fmt.Errorf("pairing rejected: %s", response.Reason)
	}

	fmt.Println("pairing approved")
	fmt.Printf("host public key: %s\n", payload.DesktopPublicKey)
	fmt.Printf("attach with: lucidity-attach --addr %s --key %s --host-key %s --list\n",
		connectAddr, *keyOut, payload.DesktopPublicKey)
	return nil
}
