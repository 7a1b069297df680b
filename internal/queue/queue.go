// Package queue holds the shared mutable state of one enumeration run: the
// pending and in-flight attribute path sets, the accumulated result
// document, and the first fatal error.
//
// All state lives behind a single mutex with one condition variable. Claim
// performs the check-completion / take-lowest / wait sequence as one atomic
// step under the guard, so dispatcher loops never observe an intermediate
// state between those decisions.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/vk/evaljobs/internal/eval"
)

// Record is the terminal, persisted outcome for one attribute path: either a
// job descriptor or a per-path error message.
type Record struct {
	Job *eval.Job
	Err string
}

// MarshalJSON emits the document value shape: the job object itself, or
// {"error": "..."} for failed paths.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Err})
	}
	if r.Job == nil {
		return nil, fmt.Errorf("record has neither job nor error")
	}
	return json.Marshal(r.Job)
}

// Queue is the shared run state. The zero value is not usable; construct
// with New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	// pending keys are attribute paths not yet dispatched, kept sorted so a
	// claim always takes the lexicographically lowest path.
	pending *redblacktree.Tree
	active  map[string]struct{}
	results map[string]Record
	fatal   error
}

// New returns a Queue seeded with the root attribute path "".
func New() *Queue {
	q := &Queue{
		pending: redblacktree.NewWithStringComparator(),
		active:  make(map[string]struct{}),
		results: make(map[string]Record),
	}
	q.cond = sync.NewCond(&q.mu)
	q.pending.Put("", nil)
	return q
}

// Claim atomically takes the lowest pending path and marks it active.
//
// It blocks while there is nothing pending but other paths are still in
// flight, since completing those may discover new work. It returns ok=false
// once the run is over: pending and active both empty, or a fatal error
// latched.
func (q *Queue) Claim() (attrPath string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.fatal != nil || (q.pending.Empty() && len(q.active) == 0) {
			return "", false
		}
		if !q.pending.Empty() {
			node := q.pending.Left()
			attrPath = node.Key.(string)
			q.pending.Remove(attrPath)
			q.active[attrPath] = struct{}{}
			return attrPath, true
		}
		q.cond.Wait()
	}
}

// Complete commits the outcome of one claimed path: it leaves the active
// set, newly discovered children enter the pending set, and at most one
// record is written. All waiting claimers are woken.
func (q *Queue) Complete(attrPath string, rec *Record, children []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, attrPath)
	for _, child := range children {
		q.pending.Put(child, nil)
	}
	if rec != nil {
		q.results[attrPath] = *rec
	}
	q.cond.Broadcast()
}

// Fail latches a fatal error. The first one wins; later calls are discarded.
// All waiting claimers are woken so every loop observes completion.
func (q *Queue) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fatal == nil {
		q.fatal = err
	}
	q.cond.Broadcast()
}

// Err returns the latched fatal error, if any.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fatal
}

// Results returns a copy of the accumulated document.
func (q *Queue) Results() map[string]Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]Record, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}
