package rune

import (
	"fmt"

	"github.com/runelang/rune/internal/assemble"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/vm"
)

// Target names the function a Vm.Call should invoke (spec §6:
// "vm.call(item_or_hash, args)"). A string is a bare top-level name
// ("main"); a []string is a multi-segment path (["shapes", "area"]); an
// item.Hash is used directly, as returned by internal/query's Indexer or
// computed by a host module's own registration.
type Target any

func resolveTarget(t Target) (item.Hash, error) {
	switch v := t.(type) {
	case item.Hash:
		return v, nil
	case string:
		return assemble.FnHash(v), nil
	case []string:
		it := item.Item{{Kind: item.KindCrate, Name: assemble.RootCrate}}
		for _, seg := range v {
			it = it.JoinNamed(seg)
		}
		return item.TypeHash(it), nil
	default:
		return 0, fmt.Errorf("unsupported call target of type %T", t)
	}
}

// Vm wraps internal/vm.Vm with the host-facing call surface of spec §6.
type Vm struct {
	inner *vm.Vm
}

// NewVm builds a Vm ready to execute u against the given RuntimeContext
// (spec §6: "Vm::new(context, unit)"). A nil host is valid for a program
// that calls nothing outside itself.
func NewVm(host *RuntimeContext, u *Unit) *Vm {
	return &Vm{inner: vm.New(u, host)}
}

// Call invokes target with args and runs it to completion for the
// Immediate call convention; Async/Generator/Stream functions instead
// return their handle Value (a Future/Generator/Stream) without blocking
// (spec §4.8).
func (m *Vm) Call(target Target, args ...Value) (Value, error) {
	h, err := resolveTarget(target)
	if err != nil {
		return Value{}, err
	}
	return m.inner.Call(h, args)
}

// AsyncCall is Call under the name spec §6 gives the async-call entry
// point; Vm.Call already returns a handle Value for non-Immediate
// functions, so this exists to let embedding code state calling-convention
// intent explicitly at the call site rather than changing behavior.
func (m *Vm) AsyncCall(target Target, args ...Value) (Value, error) {
	return m.Call(target, args...)
}
