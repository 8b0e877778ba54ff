// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to tmux servers. Lucidity
// runs its own dedicated tmux server (distinct from the user's personal
// tmux) so the host bridge has a stable pane registry to expose. All
// operations target a specific server socket — there is no default
// server, and the user's ~/.tmux.conf is never loaded unless explicitly
// requested.
//
// The central type is Server, which represents a connection to a tmux
// server identified by its Unix socket path. All tmux commands go
// through Server, which injects the -S flag automatically. This makes
// it structurally impossible to accidentally target the wrong server or
// forget to specify a socket.
package tmux

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Server represents a tmux server identified by its Unix socket path.
// All operations target this specific server — there is no way to run a
// tmux command without specifying which server it applies to.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server that targets the given socket path.
//
// configFile controls which configuration file tmux loads when the
// server starts (which happens on the first new-session call). Pass
// "/dev/null" to prevent loading the user's ~/.tmux.conf — required for
// Lucidity's production servers and all tests. If configFile is empty,
// tmux uses its default config resolution, which is almost never what
// Lucidity wants.
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the Unix socket path that identifies this server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// NewSession creates a detached tmux session on this server. If command
// is non-empty, the session runs that command instead of the default
// shell.
//
// The -f flag (config file) is passed on new-session because this
// command may start the server if it isn't already running. Once the
// server is running, subsequent commands don't re-read the config file.
func (s *Server) NewSession(sessionName string, command ...string) error {
	args := []string{}
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, "-S", s.socketPath, "new-session", "-d", "-s", sessionName)
	args = append(args, command...)
	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether the named session exists on this server.
func (s *Server) HasSession(sessionName string) bool {
	cmd := exec.Command("tmux", "-S", s.socketPath, "has-session", "-t", sessionName)
	return cmd.Run() == nil
}

// KillSession terminates the named session.
func (s *Server) KillSession(sessionName string) error {
	if _, err := s.Run("kill-session", "-t", sessionName); err != nil {
		return fmt.Errorf("tmux kill-session %q: %w", sessionName, err)
	}
	return nil
}

// KillServer terminates the entire tmux server and every session on it.
// A server that is not running is not an error.
func (s *Server) KillServer() error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-server")
	if output, err := cmd.CombinedOutput(); err != nil {
		text := strings.TrimSpace(string(output))
		if strings.Contains(text, "no server running") || strings.Contains(text, "No such file") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, text)
	}
	return nil
}

// Run executes an arbitrary tmux command on this server and returns its
// combined output. The -S flag is injected automatically.
func (s *Server) Run(args ...string) (string, error) {
	full := append([]string{"-S", s.socketPath}, args...)
	cmd := exec.Command("tmux", full...)
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		return text, fmt.Errorf("tmux %s: %w (%s)", args[0], err, text)
	}
	return text, nil
}

// Command returns an exec.Cmd for a tmux command on this server, for
// callers that need to wire stdio themselves (e.g. attach).
func (s *Server) Command(args ...string) *exec.Cmd {
	full := append([]string{"-S", s.socketPath}, args...)
	return exec.Command("tmux", full...)
}

// CommandContext is Command with a context for cancellation.
func (s *Server) CommandContext(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"-S", s.socketPath}, args...)
	return exec.CommandContext(ctx, "tmux", full...)
}

// Pane describes one pane on the server.
type Pane struct {
	// ID is the numeric part of the tmux pane id ("%3" → 3). Unique
	// across the server for the pane's lifetime.
	ID int

	// Title is the pane title (set by the application or tmux).
	Title string
}

// Target returns the tmux target spec for this pane.
func (p Pane) Target() string {
	return PaneTarget(p.ID)
}

// PaneTarget formats a numeric pane id as a tmux target spec.
func PaneTarget(paneID int) string {
	return "%" + strconv.Itoa(paneID)
}

// ListPanes returns every pane on the server, across all sessions and
// windows, in tmux's listing order.
func (s *Server) ListPanes() ([]Pane, error) {
	// tmux rewrites control characters such as a tab in -F output, so
	// the id and title are separated by a space; ids never contain one.
	output, err := s.Run("list-panes", "-a", "-F", "#{pane_id} #{pane_title}")
	if err != nil {
		return nil, fmt.Errorf("listing panes: %w", err)
	}
	var panes []Pane
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idText, title, _ := strings.Cut(line, " ")
		idText = strings.TrimPrefix(idText, "%")
		id, err := strconv.Atoi(idText)
		if err != nil {
			return nil, fmt.Errorf("parsing pane id %q: %w", idText, err)
		}
		panes = append(panes, Pane{ID: id, Title: title})
	}
	return panes, nil
}

// PipePane starts piping the pane's output through the given shell
// command (tmux pipe-pane -o). Only one pipe per pane exists at a time;
// tmux replaces any previous pipe.
func (s *Server) PipePane(paneID int, shellCommand string) error {
	if _, err := s.Run("pipe-pane", "-o", "-t", PaneTarget(paneID), shellCommand); err != nil {
		return fmt.Errorf("piping pane %d: %w", paneID, err)
	}
	return nil
}

// ClosePipePane stops any pipe on the pane.
func (s *Server) ClosePipePane(paneID int) error {
	if _, err := s.Run("pipe-pane", "-t", PaneTarget(paneID)); err != nil {
		return fmt.Errorf("closing pane %d pipe: %w", paneID, err)
	}
	return nil
}

// SendKeysHex injects raw bytes into the pane's input as hex key
// literals. tmux delivers them to the PTY in argument order, so caller
// byte order is preserved.
func (s *Server) SendKeysHex(paneID int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	args := make([]string, 0, 4+len(data))
	args = append(args, "send-keys", "-t", PaneTarget(paneID), "-H")
	for _, b := range data {
		args = append(args, hex.EncodeToString([]byte{b}))
	}
	if _, err := s.Run(args...); err != nil {
		return fmt.Errorf("sending %d bytes to pane %d: %w", len(data), paneID, err)
	}
	return nil
}

// PasteText loads text into a throwaway tmux buffer and pastes it into
// the pane with bracketed-paste framing (-p) when the application has
// requested it. The buffer is deleted after pasting.
func (s *Server) PasteText(paneID int, text string) error {
	loadCmd := s.Command("load-buffer", "-b", "lucidity-paste", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if output, err := loadCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("loading paste buffer: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	if _, err := s.Run("paste-buffer", "-d", "-p", "-b", "lucidity-paste", "-t", PaneTarget(paneID)); err != nil {
		return fmt.Errorf("pasting into pane %d: %w", paneID, err)
	}
	return nil
}

// ResizeWindow resizes the window containing the pane. Remote clients
// drive the pane size this way because they are not real tmux clients
// participating in size negotiation.
func (s *Server) ResizeWindow(paneID, rows, cols int) error {
	_, err := s.Run("resize-window", "-t", PaneTarget(paneID),
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	if err != nil {
		return fmt.Errorf("resizing pane %d window: %w", paneID, err)
	}
	return nil
}

// CapturePane returns the pane's current contents including escape
// sequences (-e), used to seed scrollback for new subscribers.
func (s *Server) CapturePane(paneID int, maxLines int) (string, error) {
	args := []string{"capture-pane", "-p", "-e", "-t", PaneTarget(paneID)}
	if maxLines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(maxLines))
	}
	output, err := s.Run(args...)
	if err != nil {
		return "", fmt.Errorf("capturing pane %d: %w", paneID, err)
	}
	return output, nil
}

// IsPaneNotFound reports whether a tmux error indicates the target pane
// does not exist.
func IsPaneNotFound(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	return strings.Contains(text, "can't find pane") || strings.Contains(text, "can't find window")
}
