// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/lucidity-foundation/lucidity/lib/tmux"
)

// TmuxBridgeConfig holds the tunables for a TmuxBridge. The zero value
// is usable.
type TmuxBridgeConfig struct {
	// QueueCapacity is the per-subscriber queue depth in chunks.
	// Zero uses DefaultQueueCapacity.
	QueueCapacity int

	// Policy is the overflow policy for slow subscribers.
	Policy OverflowPolicy

	// ScrollbackSize is the per-pane scrollback retention in bytes.
	// Zero uses DefaultScrollbackSize.
	ScrollbackSize int

	// Logger receives pipeline lifecycle events. Nil discards.
	Logger *slog.Logger
}

// TmuxBridge is the production Bridge over a dedicated tmux server.
//
// Output capture works through tmux pipe-pane: the first subscription
// to a pane starts a pipe into a named FIFO, and a reader goroutine
// feeds the bytes through a scrollback ring buffer and a Fanout. New
// subscribers get the ring contents replayed before live output, so an
// attaching client reconstructs the screen without a resize dance.
// Input goes through send-keys hex literals, paste through a tmux
// buffer with bracketed-paste framing.
type TmuxBridge struct {
	server *tmux.Server
	config TmuxBridgeConfig
	logger *slog.Logger

	mu        sync.Mutex
	fifoDir   string
	pipelines map[int]*panePipeline
	closed    bool
}

// panePipeline is the capture machinery for one pane: a FIFO fed by
// pipe-pane, a reader goroutine, a scrollback ring, and a fanout.
type panePipeline struct {
	paneID   int
	fifoPath string
	fanout   *Fanout
	ring     *RingBuffer

	// mu orders ring writes and publishes against snapshot-and-subscribe,
	// so a new subscriber never misses or duplicates a chunk around its
	// replay boundary.
	mu sync.Mutex
}

// NewTmuxBridge creates a bridge over the given tmux server.
func NewTmuxBridge(server *tmux.Server, config TmuxBridgeConfig) (*TmuxBridge, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fifoDir, err := os.MkdirTemp("", "lucidity-panes-")
	if err != nil {
		return nil, fmt.Errorf("creating pane FIFO directory: %w", err)
	}
	return &TmuxBridge{
		server:    server,
		config:    config,
		logger:    logger,
		fifoDir:   fifoDir,
		pipelines: make(map[int]*panePipeline),
	}, nil
}

// List returns the server's panes as bridge metadata.
func (b *TmuxBridge) List() ([]Info, error) {
	panes, err := b.server.ListPanes()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(panes))
	for _, p := range panes {
		infos = append(infos, Info{PaneID: p.ID, Title: p.Title})
	}
	return infos, nil
}

// Subscribe starts (or joins) the pane's capture pipeline and returns a
// subscription whose first chunks replay the retained scrollback.
func (b *TmuxBridge) Subscribe(paneID int) (*Subscription, error) {
	pipeline, err := b.pipeline(paneID)
	if err != nil {
		return nil, err
	}

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	subscription, err := pipeline.fanout.Subscribe(pipeline.ring.Snapshot())
	if err != nil {
		// Fanout closed: the pane died after the pipeline was created.
		return nil, ErrPaneNotFound
	}
	return subscription, nil
}

// Write injects raw bytes into the pane's PTY input.
func (b *TmuxBridge) Write(paneID int, data []byte) error {
	if err := b.server.SendKeysHex(paneID, data); err != nil {
		if tmux.IsPaneNotFound(err) {
			return ErrPaneNotFound
		}
		return err
	}
	return nil
}

// Resize sets the pane's dimensions.
func (b *TmuxBridge) Resize(paneID, rows, cols int) error {
	if err := b.server.ResizeWindow(paneID, rows, cols); err != nil {
		if tmux.IsPaneNotFound(err) {
			return ErrPaneNotFound
		}
		return err
	}
	return nil
}

// Paste writes text into the pane with bracketed-paste framing.
func (b *TmuxBridge) Paste(paneID int, text string) error {
	if err := b.server.PasteText(paneID, text); err != nil {
		if tmux.IsPaneNotFound(err) {
			return ErrPaneNotFound
		}
		return err
	}
	return nil
}

// Close tears down every capture pipeline and removes the FIFO
// directory. Subscribers see their channels close.
func (b *TmuxBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pipelines := make([]*panePipeline, 0, len(b.pipelines))
	for _, pipeline := range b.pipelines {
		pipelines = append(pipelines, pipeline)
	}
	b.pipelines = make(map[int]*panePipeline)
	fifoDir := b.fifoDir
	b.mu.Unlock()

	for _, pipeline := range pipelines {
		b.server.ClosePipePane(pipeline.paneID)
		pipeline.fanout.Close()
	}
	return os.RemoveAll(fifoDir)
}

// pipeline returns the pane's capture pipeline, creating it on first
// use.
func (b *TmuxBridge) pipeline(paneID int) (*panePipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrFanoutClosed
	}
	if pipeline, ok := b.pipelines[paneID]; ok {
		return pipeline, nil
	}

	pipeline := &panePipeline{
		paneID:   paneID,
		fifoPath: filepath.Join(b.fifoDir, fmt.Sprintf("pane-%d.fifo", paneID)),
		fanout:   NewFanout(b.config.QueueCapacity, b.config.Policy, b.logger),
		ring:     NewRingBuffer(b.config.ScrollbackSize),
	}

	// Seed scrollback with the pane's current screen so the first
	// subscriber sees context immediately.
	if captured, err := b.server.CapturePane(paneID, 0); err == nil && captured != "" {
		pipeline.ring.Write([]byte(captured + "\r\n"))
	} else if err != nil && tmux.IsPaneNotFound(err) {
		return nil, ErrPaneNotFound
	}

	if err := unix.Mkfifo(pipeline.fifoPath, 0600); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("creating pane FIFO: %w", err)
	}
	if err := b.server.PipePane(paneID, fmt.Sprintf("cat >> '%s'", pipeline.fifoPath)); err != nil {
		os.Remove(pipeline.fifoPath)
		if tmux.IsPaneNotFound(err) {
			return nil, ErrPaneNotFound
		}
		return nil, err
	}

	b.pipelines[paneID] = pipeline
	go b.readLoop(pipeline)

	b.logger.Debug("pane capture pipeline started", "pane_id", paneID)
	return pipeline, nil
}

// readLoop drains the pane's FIFO into the ring buffer and fanout.
// EOF means the pipe command exited — the pane is gone — so the fanout
// closes and every subscriber observes termination.
func (b *TmuxBridge) readLoop(pipeline *panePipeline) {
	// Opening the read end blocks until pipe-pane's cat opens the
	// write end, which is why this runs off the Subscribe path.
	fifo, err := os.OpenFile(pipeline.fifoPath, os.O_RDONLY, 0)
	if err != nil {
		b.logger.Error("opening pane FIFO", "pane_id", pipeline.paneID, "error", err)
		b.retire(pipeline)
		return
	}
	defer fifo.Close()

	buffer := make([]byte, 32*1024)
	for {
		n, err := fifo.Read(buffer)
		if n > 0 {
			pipeline.mu.Lock()
			pipeline.ring.Write(buffer[:n])
			pipeline.fanout.Publish(buffer[:n])
			pipeline.mu.Unlock()
		}
		if err != nil {
			b.logger.Debug("pane capture pipeline ended",
				"pane_id", pipeline.paneID, "error", err)
			b.retire(pipeline)
			return
		}
	}
}

// retire removes a dead pipeline and terminates its subscribers.
func (b *TmuxBridge) retire(pipeline *panePipeline) {
	b.mu.Lock()
	if b.pipelines[pipeline.paneID] == pipeline {
		delete(b.pipelines, pipeline.paneID)
	}
	b.mu.Unlock()
	pipeline.fanout.Close()
	os.Remove(pipeline.fifoPath)
}
