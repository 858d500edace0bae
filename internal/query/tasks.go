package query

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TaskKind names the deferred work the Indexer's single CST walk defers
// rather than resolves inline (spec §4.3): recognized builtin macros
// (`template`, `format`, `file`, `line`) get ExpandMacroBuiltin, any other
// attribute-shaped invocation gets ExpandMacroCall, and every `const` item
// gets a ConstEval task (a `const fn` does not).
type TaskKind uint8

const (
	TaskExpandMacroBuiltin TaskKind = iota
	TaskExpandMacroCall
	TaskConstEval
)

// Task is one deferred unit of work. Run may enqueue further tasks via the
// Queue it's handed (e.g. a const expression referencing another not-yet-
// evaluated const) — driven to a fixed point by Queue.Drain.
type Task interface {
	Kind() TaskKind
	Run(q *Queue) error
}

// Queue runs deferred tasks to a fixed point using an errgroup per round:
// every task queued before a round starts runs concurrently; newly enqueued
// tasks (via Enqueue, called from a running Task) start in the next round.
// Grounded on the teacher's own indirect errgroup-shaped fan-out idiom
// (golang.org/x/sync/errgroup is carried in this module's go.mod
// specifically to drive this to-fixed-point loop; see DESIGN.md).
type Queue struct {
	mu      sync.Mutex
	pending []Task
	errs    []error
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue schedules a task for the next Drain round. Safe to call
// concurrently: tasks within a round run on an errgroup and may enqueue
// follow-up work for the next one.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
}

// Drain runs rounds of tasks until a round enqueues nothing new, or the
// round limit is hit (a defensive backstop against a task that keeps
// re-enqueueing itself forever — a real cyclic-const bug, not a normal
// fixed point, and reported through the caller's diag.Bag separately).
func (q *Queue) Drain(ctx context.Context) error {
	const maxRounds = 1000
	for round := 0; round < maxRounds && len(q.pending) > 0; round++ {
		batch := q.pending
		q.pending = nil

		g, _ := errgroup.WithContext(ctx)
		for _, t := range batch {
			t := t
			g.Go(func() error {
				return t.Run(q)
			})
		}
		if err := g.Wait(); err != nil {
			q.errs = append(q.errs, err)
		}
	}
	if len(q.errs) > 0 {
		return q.errs[0]
	}
	return nil
}

// Errs returns every error collected across all rounds, not just the first.
func (q *Queue) Errs() []error { return q.errs }
