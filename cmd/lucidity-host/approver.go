// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lucidity-foundation/lucidity/pairing"
)

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	promptFieldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	promptWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// terminalApprover answers pairing approval prompts on the host's
// controlling terminal. The graphical shell registers its own dialog
// instead; this one exists so a headless host is still pairable.
type terminalApprover struct {
	input  *bufio.Reader
	output io.Writer
}

func newTerminalApprover(input io.Reader, output io.Writer) *terminalApprover {
	return &terminalApprover{
		input:  bufio.NewReader(input),
		output: output,
	}
}

// Approve prints the request summary and reads a y/n answer. The
// Pairer enforces the deadline through ctx; an unanswered prompt times
// out upstream.
func (a *terminalApprover) Approve(ctx context.Context, request pairing.ApprovalRequest) (pairing.Decision, error) {
	fmt.Fprintln(a.output)
	fmt.Fprintln(a.output, promptTitleStyle.Render("Pairing request"))
	fmt.Fprintf(a.output, "  %s %s\n", promptFieldStyle.Render("device:"), request.DeviceName)
	fmt.Fprintf(a.output, "  %s %s\n", promptFieldStyle.Render("user:"), request.UserEmail)
	fmt.Fprintf(a.output, "  %s %s\n", promptFieldStyle.Render("fingerprint:"), request.Fingerprint)
	fmt.Fprintln(a.output, promptWarnStyle.Render("  approving grants this device full terminal access"))
	fmt.Fprint(a.output, "Approve? [y/N] ")

	answers := make(chan string, 1)
	go func() {
		line, err := a.input.ReadString('\n')
		if err != nil {
			answers <- ""
			return
		}
		answers <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case answer := <-answers:
		if answer == "y" || answer == "yes" {
			return pairing.Approve, nil
		}
		return pairing.Reject, nil
	case <-ctx.Done():
		fmt.Fprintln(a.output, promptWarnStyle.Render("\npairing prompt timed out"))
		return pairing.Reject, ctx.Err()
	}
}
