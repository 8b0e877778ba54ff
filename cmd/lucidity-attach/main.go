// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// lucidity-attach is an interactive terminal client for a Lucidity
// host: it connects, authenticates when a device key is given, lists
// panes or attaches to one, and relays raw terminal I/O.
//
// Usage:
//
//	lucidity-attach --addr 127.0.0.1:9797 --list
//	lucidity-attach --addr 127.0.0.1:9797 --pane 1
//	lucidity-attach --addr host:9797 --key device_key.json --host-key <b64u> --pane 1
//
// Detach with Ctrl-Q.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/lucidity-foundation/lucidity/client"
	"github.com/lucidity-foundation/lucidity/lib/version"
	"github.com/lucidity-foundation/lucidity/pairing"
	"github.com/lucidity-foundation/lucidity/proto"
)

// detachKey ends the interactive session (Ctrl-Q).
const detachKey = 0x11

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("lucidity-attach", pflag.ContinueOnError)
	addr := flags.String("addr", "127.0.0.1:9797", "host address")
	keyPath := flags.String("key", "", "device keypair file (required for remote hosts)")
	hostKeyText := flags.String("host-key", "", "expected host public key (b64u)")
	paneID := flags.Int("pane", -1, "pane id to attach")
	list := flags.Bool("list", false, "list panes and exit")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("lucidity-attach %s\n", version.Info())
		return nil
	}

	c, err := client.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if *keyPath != "" {
		keypair, err := loadDeviceKeypair(*keyPath)
		if err != nil {
			return err
		}
		var hostKey *pairing.PublicKey
		if *hostKeyText != "" {
			parsed, err := pairing.ParsePublicKey(*hostKeyText)
			if err != nil {
				return fmt.Errorf("parsing --host-key: %w", err)
			}
			hostKey = &parsed
		}
		if err := c.Authenticate(keypair, hostKey); err != nil {
			return err
		}
	}

	if *list || *paneID < 0 {
		panes, err := c.ListPanes()
		if err != nil {
			return err
		}
		if len(panes) == 0 {
			fmt.Println("no panes")
			return nil
		}
		for _, info := range panes {
			fmt.Printf("%4d  %s\n", info.PaneID, info.Title)
		}
		return nil
	}

	return attach(c, *paneID)
}

// attach runs the interactive relay loop: stdin bytes become input
// frames, output frames become stdout bytes.
func attach(c *client.Client, paneID int) error {
	if err := c.Attach(paneID); err != nil {
		return err
	}

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("entering raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)

		// Drive the pane to the local terminal's size.
		if cols, rows, err := term.GetSize(stdinFd); err == nil {
			c.Resize(paneID, rows, cols)
		}
	}

	// Input pump: stdin to the pane, until the detach key.
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		buffer := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buffer)
			if n > 0 {
				for _, b := range buffer[:n] {
					if b == detachKey {
						return
					}
				}
				if c.SendInput(buffer[:n]) != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Output pump: frames to stdout.
	outputDone := make(chan error, 1)
	go func() {
		for {
			frame, err := c.ReadFrame()
			if err != nil {
				outputDone <- nil
				return
			}
			switch frame.Type {
			case proto.TypePaneOutput:
				os.Stdout.Write(frame.Payload)
			case proto.TypeControl:
				if op, _ := proto.RequestOp(frame.Payload); op == proto.OpError {
					var message proto.ErrorMessage
					json.Unmarshal(frame.Payload, &message)
					outputDone <- fmt.Errorf("host: %s", message.Message)
					return
				}
			}
		}
	}()

	select {
	case <-inputDone:
		return nil
	case err := <-outputDone:
		return err
	}
}

// loadDeviceKeypair reads a device keypair saved by lucidity-pair.
func loadDeviceKeypair(path string) (*pairing.Keypair, error) {
	keypair, err := pairing.NewKeypairStore(path).Load()
	if err != nil {
		return nil, err
	}
	if keypair == nil {
		return nil, fmt.Errorf("no keypair at %s (run lucidity-pair first)", path)
	}
	return keypair, nil
}
