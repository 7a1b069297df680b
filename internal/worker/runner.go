package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vk/evaljobs/internal/ctxlog"
	"github.com/vk/evaljobs/internal/eval"
	"github.com/vk/evaljobs/internal/eval/manifest"
	"github.com/vk/evaljobs/internal/eval/nixeval"
	"github.com/vk/evaljobs/internal/gcroot"
	"github.com/vk/evaljobs/internal/proto"
)

// RunConfig is everything a worker process needs. Every worker of a run gets
// the identical config, so a respawned worker reproduces its predecessor's
// evaluator exactly.
type RunConfig struct {
	Spec         eval.Spec
	MaxMemoryMiB int
	GCRootsDir   string
}

// Serve runs the worker process body over the given pipes: initialize one
// evaluator, announce readiness, answer "do" commands until told to exit or
// until the memory ceiling is hit. An evaluator initialization failure is
// written as the fatal control payload so the coordinator aborts the run.
func Serve(ctx context.Context, cfg RunConfig, in io.Reader, out io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	ev, err := newEvaluator(cfg.Spec)
	if err != nil {
		err = fmt.Errorf("initializing evaluator: %w", err)
		logger.Error("Worker startup failed.", "error", err)
		_ = writeLine(out, proto.EncodeFatal(err.Error()))
		return err
	}

	r := &runner{
		ev:        ev,
		roots:     gcroot.New(cfg.GCRootsDir),
		maxRSSKiB: int64(cfg.MaxMemoryMiB) * 1024,
		peakRSS:   peakRSSKiB,
	}
	return r.serve(ctx, bufio.NewReader(in), out)
}

// newEvaluator picks the collaborator for a spec: HCL manifests are handled
// by the built-in manifest evaluator, everything else goes to Nix.
func newEvaluator(spec eval.Spec) (eval.Evaluator, error) {
	if !spec.Flake && strings.HasSuffix(spec.Target, ".hcl") {
		return manifest.New(spec.Target)
	}
	return nixeval.New(spec)
}

type runner struct {
	ev        eval.Evaluator
	roots     *gcroot.Registrar
	maxRSSKiB int64
	peakRSS   func() (int64, error)
}

func (r *runner) serve(ctx context.Context, in *bufio.Reader, out io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	for {
		if err := writeLine(out, proto.NextLine()); err != nil {
			return err
		}

		line, err := readLine(in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The coordinator went away; nothing left to serve.
				return nil
			}
			return err
		}
		attrPath, exit, err := proto.ParseCommand(line)
		if err != nil {
			return err
		}
		if exit {
			logger.Debug("Worker exiting on command.")
			return nil
		}

		logger.Debug("Worker evaluating path.", "attrPath", attrPath)
		res, err := r.ev.Evaluate(ctx, attrPath)
		if err != nil {
			// The evaluator itself broke; this worker cannot continue and
			// neither can the run.
			logger.Error("Evaluator failure.", "attrPath", attrPath, "error", err)
			_ = writeLine(out, proto.EncodeFatal(err.Error()))
			return err
		}

		if res.Kind == eval.KindFailure {
			// Recorded in the document; also belongs in the stderr log.
			logger.Error("Evaluation failed.", "attrPath", attrPath, "error", res.Message)
		}
		if res.Kind == eval.KindJob && res.Job.DrvPath != "" {
			if err := r.roots.Register(res.Job.DrvPath); err != nil {
				logger.Warn("GC root registration failed.", "drvPath", res.Job.DrvPath, "error", err)
			}
		}

		replyLine, err := proto.EncodeReply(res)
		if err != nil {
			return err
		}
		if err := writeLine(out, replyLine); err != nil {
			return err
		}

		// The reply above is always completed first; restart can only appear
		// where the coordinator expects the next idle announcement.
		kib, err := r.peakRSS()
		if err != nil {
			logger.Warn("Could not read peak RSS.", "error", err)
			continue
		}
		if kib > r.maxRSSKiB {
			logger.Debug("Memory ceiling exceeded; retiring worker.", "peakKiB", kib, "ceilingKiB", r.maxRSSKiB)
			return writeLine(out, proto.RestartLine())
		}
	}
}
