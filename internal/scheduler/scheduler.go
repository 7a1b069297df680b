// Package scheduler drives the enumeration of the job tree: N dispatcher
// loops concurrently pull pending attribute paths from the shared queue,
// send them to their worker, and feed any children the worker discovers back
// into the queue.
//
// The tree is not known in advance; the run terminates exactly when the tree
// rooted at "" is finite under the children relation. A configuration whose
// tree keeps expanding forever never terminates, which is accepted.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/vk/evaljobs/internal/ctxlog"
	"github.com/vk/evaljobs/internal/eval"
	"github.com/vk/evaljobs/internal/queue"
	"github.com/vk/evaljobs/internal/worker"
)

// Coordinator runs a fixed number of dispatcher loops to completion, each
// owning exactly one worker requester for its lifetime.
type Coordinator struct {
	queue        *queue.Queue
	newRequester func(id int) worker.Requester
	workers      int
}

// New builds a Coordinator over q. newRequester is called once per
// dispatcher loop; workers is the loop count.
func New(q *queue.Queue, newRequester func(id int) worker.Requester, workers int) *Coordinator {
	return &Coordinator{queue: q, newRequester: newRequester, workers: workers}
}

// Run enumerates the whole tree and returns the accumulated document. On a
// fatal error nothing is returned: the first latched error wins and every
// loop winds down cooperatively (in-flight requests finish, then each loop
// observes the latch and exits).
func (c *Coordinator) Run(ctx context.Context) (map[string]queue.Record, error) {
	// Not errgroup.WithContext: cancellation would forcibly interrupt
	// in-flight requests, and wind-down here is cooperative via the queue.
	var g errgroup.Group
	for i := 0; i < c.workers; i++ {
		i := i
		g.Go(func() error {
			if err := c.loop(ctx, i); err != nil {
				c.queue.Fail(err)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := c.queue.Err(); err != nil {
		return nil, err
	}
	return c.queue.Results(), nil
}

// loop is one dispatcher: claim, request, apply, repeat until the queue
// reports completion. Any error escaping the request is returned to the
// caller, which latches it as the run's fatal error.
func (c *Coordinator) loop(ctx context.Context, id int) error {
	logger := ctxlog.FromContext(ctx).With("handler", id)
	req := c.newRequester(id)
	defer req.Close()

	for {
		attrPath, ok := c.queue.Claim()
		if !ok {
			logger.Debug("Dispatcher finished.")
			return nil
		}
		logger.Debug("Dispatching path.", "attrPath", attrPath)

		res, err := req.Request(ctx, attrPath)
		if err != nil {
			return err
		}

		rec, children := apply(logger, attrPath, res)
		c.queue.Complete(attrPath, rec, children)
	}
}

// apply translates one evaluation result into its queue effects: at most one
// record, plus the legal child paths staged for the pending set.
func apply(logger *slog.Logger, attrPath string, res eval.Result) (*queue.Record, []string) {
	switch res.Kind {
	case eval.KindJob:
		return &queue.Record{Job: res.Job}, nil
	case eval.KindFailure:
		return &queue.Record{Err: res.Message}, nil
	case eval.KindChildren:
		var children []string
		for _, name := range res.Children {
			if !legalName(name) {
				logger.Warn("Skipping job with illegal name.", "name", name)
				continue
			}
			children = append(children, childPath(attrPath, name))
		}
		return nil, children
	default:
		return nil, nil
	}
}

// childPath concatenates a child name onto its parent's attribute path. At
// the root the child name stands alone.
func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// legalName rejects child names that cannot appear as an attribute path
// segment: dots would alias another path, whitespace breaks the protocol's
// "do" command framing.
func legalName(name string) bool {
	if name == "" || strings.Contains(name, ".") {
		return false
	}
	return !strings.ContainsFunc(name, unicode.IsSpace)
}
