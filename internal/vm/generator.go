package vm

import (
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
)

// genMsg is one message a generator's driving goroutine sends back to its
// caller: either a yielded value, or the function's final return (done).
type genMsg struct {
	v    value.Value
	done bool
	err  error
}

// goroutineGenerator drives one Generator/Stream function body on its own
// goroutine and its own Stack, communicating with the caller over a pair of
// unbuffered channels — the same goroutine+channel handoff the teacher uses
// to stream tokens out of its lexer (lang/lexer.go's lexState loop feeding a
// channel), adapted here to carry yielded Values instead of Tokens and to
// run to completion rather than forever.
type goroutineGenerator struct {
	resumeCh chan struct{}
	yieldCh  chan genMsg
	started  bool
	done     bool
}

func (g *goroutineGenerator) Next() (value.Value, bool, error) {
	if g.done {
		return value.Value{}, true, nil
	}
	if g.started {
		g.resumeCh <- struct{}{}
	}
	g.started = true
	msg := <-g.yieldCh
	g.done = msg.done
	return msg.v, msg.done, msg.err
}

// goroutineStream adapts a Generator's Next() into the Stream shape (spec
// §3.3/§9): each poll yields an already-resolved Future of Some(v) until
// the underlying generator completes, then None().
type goroutineStream struct {
	g *goroutineGenerator
}

func (s *goroutineStream) Next() (value.Future, error) {
	v, done, err := s.g.Next()
	if err != nil {
		return nil, err
	}
	if done {
		return readyFuture{v: value.None()}, nil
	}
	return readyFuture{v: value.Some(v)}, nil
}

// readyFuture is an already-resolved Future, used both for Stream items and
// for the eager Async call convention (see DESIGN.md "async call
// convention": this interpreter has no preemptive scheduler, so an async
// function simply runs to completion on the calling goroutine and its
// result is wrapped as an immediately-ready Future).
type readyFuture struct {
	v   value.Value
	err error
}

func (f readyFuture) Poll() (value.Value, bool, error) { return f.v, true, f.err }

// startGenerator spawns fn's body on a fresh sub-Vm/goroutine and returns a
// handle (Generator or Stream, per fn.Call) that drives it one yield at a
// time via goroutineGenerator.Next().
func (m *Vm) startGenerator(fn unit.UnitFn, args []value.Value) (value.Value, error) {
	resumeCh := make(chan struct{})
	yieldCh := make(chan genMsg)

	sub := &Vm{unit: m.unit, host: m.host, stack: value.NewStack()}
	sub.yield = func(v value.Value) error {
		yieldCh <- genMsg{v: v}
		<-resumeCh
		return nil
	}

	go func() {
		result, err := sub.runFrame(fn.Offset, args)
		yieldCh <- genMsg{v: result, done: true, err: err}
	}()

	g := &goroutineGenerator{resumeCh: resumeCh, yieldCh: yieldCh}
	if fn.Call == unit.CallStream {
		return value.FromStream(&goroutineStream{g: g}), nil
	}
	return value.FromGenerator(g), nil
}
