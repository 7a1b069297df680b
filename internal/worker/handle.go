// Package worker hosts both sides of the worker process boundary: the
// coordinator-side Handle that spawns and talks to a worker subprocess, and
// the worker-side Serve loop that answers it.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/evaljobs/internal/eval"
	"github.com/vk/evaljobs/internal/proto"
)

// Requester is what a dispatcher loop needs from its worker: evaluate one
// attribute path, eventually release the worker. The production
// implementation is Handle; tests substitute scripted ones.
type Requester interface {
	Request(ctx context.Context, attrPath string) (eval.Result, error)
	Close() error
}

// conn is one live worker process as the handle sees it: the "to" pipe, the
// "from" pipe, and a reaper. wait is nil for in-process fakes.
type conn struct {
	in   io.WriteCloser
	out  *bufio.Reader
	wait func() error
}

// spawnFunc starts a fresh worker process. Spawn failure is fatal to the run.
type spawnFunc func(ctx context.Context) (*conn, error)

// Handle is the coordinator-side proxy for one worker process. It owns the
// process identity exclusively: it spawns lazily on first use, discards a
// worker that announces restart, and spawns a replacement on the next
// request. A Handle belongs to exactly one dispatcher loop and is not safe
// for concurrent use.
type Handle struct {
	logger *slog.Logger
	spawn  spawnFunc
	cur    *conn
}

var _ Requester = (*Handle)(nil)

func newHandle(logger *slog.Logger, spawn spawnFunc) *Handle {
	return &Handle{logger: logger, spawn: spawn}
}

// Request sends one attribute path to the worker and decodes its reply,
// transparently respawning the worker process when the previous one retired.
func (h *Handle) Request(ctx context.Context, attrPath string) (eval.Result, error) {
	for {
		if h.cur == nil {
			c, err := h.spawn(ctx)
			if err != nil {
				return eval.Result{}, fmt.Errorf("spawning worker: %w", err)
			}
			h.cur = c
		}

		line, err := readLine(h.cur.out)
		if err != nil {
			h.discard()
			return eval.Result{}, fmt.Errorf("worker pipe closed unexpectedly: %w", err)
		}
		ctl, err := proto.ParseControl(line)
		if err != nil {
			h.discard()
			return eval.Result{}, err
		}
		switch ctl.Kind {
		case proto.ControlRestart:
			h.logger.Debug("Worker retired voluntarily; spawning a replacement.")
			h.discard()
			continue
		case proto.ControlFatal:
			h.discard()
			return eval.Result{}, fmt.Errorf("worker error: %s", ctl.Err)
		}

		if err := writeLine(h.cur.in, proto.DoCommand(attrPath)); err != nil {
			h.discard()
			return eval.Result{}, fmt.Errorf("writing to worker: %w", err)
		}
		reply, err := readLine(h.cur.out)
		if err != nil {
			h.discard()
			return eval.Result{}, fmt.Errorf("worker pipe closed awaiting reply: %w", err)
		}
		return proto.DecodeReply(reply)
	}
}

// Close tells a running worker to exit and reaps it. The worker may already
// be idle waiting for a command; the exit command is all it needs.
func (h *Handle) Close() error {
	if h.cur == nil {
		return nil
	}
	// Best effort: a worker that already died cannot read the command.
	_ = writeLine(h.cur.in, proto.ExitCommand())
	h.discard()
	return nil
}

func (h *Handle) discard() {
	if h.cur == nil {
		return
	}
	_ = h.cur.in.Close()
	if h.cur.wait != nil {
		_ = h.cur.wait()
	}
	h.cur = nil
}
