package host

import (
	"github.com/pkg/errors"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// RuntimeContext is the execution-time lookup table derived from a Context
// (spec §6). It implements unit.HostResolver (consulted by the link step
// to verify every RequiredHashes entry) and vm.HostFunctions (consulted by
// the VM itself at OpCall/OpCallInstance dispatch time) — both as
// structural interfaces so this package never needs to import either and
// they never need to import this one (the same pattern the teacher's
// wam package uses to keep codegen and the register machine decoupled).
//
// Immutable once built: spec §5 requires Unit and RuntimeContext be freely
// shared across Vms running in parallel on distinct goroutines.
type RuntimeContext struct {
	functions map[item.Hash]*Function
	types     map[item.Hash]*value.Rtti
	consts    map[item.Hash]value.ConstValue
}

// HasFunction reports whether hash is registered, satisfying both
// unit.HostResolver and vm.HostFunctions.
func (rc *RuntimeContext) HasFunction(hash item.Hash) bool {
	_, ok := rc.functions[hash]
	return ok
}

// CallHost invokes the registered host function for hash, satisfying
// vm.HostFunctions.
func (rc *RuntimeContext) CallHost(hash item.Hash, args []value.Value) (value.Value, error) {
	fn, ok := rc.functions[hash]
	if !ok {
		return value.Value{}, errors.Errorf("no host function registered for hash %#x", uint64(hash))
	}
	return fn.Call(args)
}

// Rtti looks up host-provided RTTI by hash, used when the embedder
// constructs Values of a host-registered type directly (outside any
// script-side struct literal, which instead resolves its Rtti through the
// compiled Unit).
func (rc *RuntimeContext) Rtti(hash item.Hash) (*value.Rtti, bool) {
	r, ok := rc.types[hash]
	return r, ok
}

// Constant looks up a host-registered constant by hash.
func (rc *RuntimeContext) Constant(hash item.Hash) (value.ConstValue, bool) {
	v, ok := rc.consts[hash]
	return v, ok
}
