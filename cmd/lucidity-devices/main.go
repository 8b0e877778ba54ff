// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// lucidity-devices administers the trust store directly on the host
// machine: list paired devices, revoke one.
//
// Usage:
//
//	lucidity-devices list
//	lucidity-devices revoke <public-key-b64u>
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/lucidity-foundation/lucidity/lib/config"
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
	flags := pflag.NewFlagSet("lucidity-devices", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default $LUCIDITY_CONFIG)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("lucidity-devices %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	trust, err := pairing.OpenTrustStore(cfg.Paths.TrustDB, nil)
	if err != nil {
		return err
	}
	defer trust.Close()

	ctx := context.Background()
	args := flags.Args()
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		return listDevices(ctx, trust)
	case "revoke":
		if len(args) != 2 {
			return fmt.Errorf("usage: lucidity-devices revoke <public-key-b64u>")
		}
		return revokeDevice(ctx, trust, args[1])
	default:
		return fmt.Errorf("unknown command %q (want list or revoke)", args[0])
	}
}

func listDevices(ctx context.Context, trust *pairing.TrustStore) error {
	devices, err := trust.List(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no paired devices")
		return nil
	}
	for _, device := range devices {
		lastSeen := "never"
		if device.LastSeen != nil {
			lastSeen = time.Unix(*device.LastSeen, 0).Format(time.RFC3339)
		}
		fmt.Printf("%s  %-20s  %-24s  paired %s  last seen %s\n",
			pairing.Fingerprint(device.PublicKey),
			device.DeviceName,
			device.UserEmail,
			time.Unix(device.PairedAt, 0).Format(time.RFC3339),
			lastSeen,
		)
		fmt.Printf("  key: %s\n", device.PublicKey)
	}
	return nil
}

func revokeDevice(ctx context.Context, trust *pairing.TrustStore, keyText string) error {
	key, err := pairing.ParsePublicKey(keyText)
	if err != nil {
		return err
	}
	removed, err := trust.Remove(ctx, key)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no device with key %s", keyText)
	}
	fmt.Printf("revoked %s\n", pairing.Fingerprint(key))
	return nil
}
