// Package value implements the tagged runtime Value, its reference-counted
// access discipline (spec §3.3, §5), and the VM's addressable stack
// (spec §3.4). The access model is grounded on the upstream Rust
// implementation's Shared/Access types
// (original_source/crates/rune/src/runtime/shared.rs), since the teacher's
// own Term type (lang/term.go) is a plain immutable value with no borrow
// tracking of its own.
package value

import (
	"fmt"
	"sync"
)

// AccessError reports a violation of the access discipline: borrowing
// exclusively while shared borrows are outstanding, borrowing at all once a
// value has been taken, and so on.
type AccessError struct {
	Op    string
	State string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access error: cannot %s, value is %s", e.Op, e.State)
}

// accessState is the per-value state machine described in spec §3.3/§5.
type accessState int32

const (
	accessNone accessState = 0
	accessTaken accessState = -1
	// accessState > 0 counts outstanding shared borrows.
	// accessExclusive is represented as a distinguished negative sentinel
	// below accessTaken, never reachable via normal counting.
)

const accessExclusive accessState = -2

func (s accessState) String() string {
	switch {
	case s == accessNone:
		return "none"
	case s == accessTaken:
		return "taken"
	case s == accessExclusive:
		return "exclusive"
	case s > 0:
		return fmt.Sprintf("shared(%d)", s)
	default:
		return "invalid"
	}
}

// Access tracks the shared/exclusive/taken state of one value's payload.
// There is no internal locking (spec §5): within a single VM, borrows are
// strictly nested and checked synchronously. A mutex guards the counter
// only so that a Value may be safely inspected for debugging from another
// goroutine (e.g. a concurrently-running VM sharing the same Unit but not
// the same Value) without racing the detector itself.
type Access struct {
	mu    sync.Mutex
	state accessState
}

// BorrowRef acquires a shared borrow, incrementing the shared counter.
// Fails if the value is exclusively borrowed or has been taken.
func (a *Access) BorrowRef() (*RefGuard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.state == accessTaken:
		return nil, &AccessError{Op: "borrow_ref", State: "taken"}
	case a.state == accessExclusive:
		return nil, &AccessError{Op: "borrow_ref", State: "exclusive"}
	default:
		a.state++
		return &RefGuard{a: a}, nil
	}
}

// BorrowMut acquires an exclusive borrow. Fails unless the value has no
// outstanding borrows of any kind.
func (a *Access) BorrowMut() (*MutGuard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case accessNone:
		a.state = accessExclusive
		return &MutGuard{a: a}, nil
	case accessTaken:
		return nil, &AccessError{Op: "borrow_mut", State: "taken"}
	default:
		return nil, &AccessError{Op: "borrow_mut", State: a.state.String()}
	}
}

// Take transitions the value to the taken state. Fails unless there are no
// outstanding borrows. A taken value never yields its contents again.
func (a *Access) Take() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != accessNone {
		return &AccessError{Op: "take", State: a.state.String()}
	}
	a.state = accessTaken
	return nil
}

// IsReadable reports whether a shared borrow would currently succeed.
func (a *Access) IsReadable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state >= accessNone
}

// IsWritable reports whether an exclusive borrow would currently succeed.
func (a *Access) IsWritable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == accessNone
}

// IsTaken reports whether the value has been moved out.
func (a *Access) IsTaken() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == accessTaken
}

func (a *Access) release(mut bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mut {
		a.state = accessNone
	} else if a.state > 0 {
		a.state--
	}
}

// RefGuard holds a shared borrow until Release is called (or the guard is
// garbage collected away, for host code that drops it implicitly).
type RefGuard struct {
	a        *Access
	released bool
}

func (g *RefGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.a.release(false)
}

// MutGuard holds an exclusive borrow until Release is called.
type MutGuard struct {
	a        *Access
	released bool
}

func (g *MutGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.a.release(true)
}
