package host

import (
	"github.com/pkg/errors"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// Function is a host-provided callable handle (spec §6): the Value-facing
// counterpart of a compiled Unit function. A script-side call either
// reaches one through a RuntimeContext lookup (a registered free or
// associated function) or obtains one as a first-class Value via
// value.FromFunction, in which case it satisfies value.Function directly.
type Function struct {
	hash item.Hash
	fn   func(args []value.Value) (value.Value, error)
}

// NewFunction wraps a Go closure as a host Function reachable at hash.
func NewFunction(hash item.Hash, fn func(args []value.Value) (value.Value, error)) *Function {
	return &Function{hash: hash, fn: fn}
}

func (f *Function) Hash() item.Hash { return f.hash }

func (f *Function) Call(args []value.Value) (value.Value, error) { return f.fn(args) }

var _ value.Function = (*Function)(nil)

// SyncFunction is a Function restricted to closing over only
// ConstValue-representable captures (spec §6: "SyncFunction requires all
// captures to be ConstValue-compatible"). The restriction is checked once
// at construction, not trusted: a SyncFunction that could silently capture
// a live Future or another non-sync Function would break the "may run
// without the async runtime" guarantee the kind exists to provide (spec §9
// open question; decided in DESIGN.md — captured Functions must themselves
// be const-representable, which in practice means this package's own
// Function/SyncFunction are never themselves valid captures).
type SyncFunction struct {
	Function
	Captures []value.Value
}

// NewSyncFunction builds a SyncFunction around fn, which receives the
// validated captures alongside the call's own arguments. It fails if any
// capture is not ConstValue-representable.
func NewSyncFunction(hash item.Hash, captures []value.Value, fn func(captures, args []value.Value) (value.Value, error)) (*SyncFunction, error) {
	for i, c := range captures {
		if !isConstRepresentable(c) {
			return nil, errors.Errorf("capture %d (kind %s) is not ConstValue-representable, so it cannot be closed over by a SyncFunction", i, c.Kind())
		}
	}
	sf := &SyncFunction{Captures: captures}
	sf.Function = Function{
		hash: hash,
		fn: func(args []value.Value) (value.Value, error) {
			return fn(captures, args)
		},
	}
	return sf, nil
}

// isConstRepresentable reports whether v could be produced by some
// ConstValue.ToValue() call — i.e. it carries no Function, Future,
// Generator, Stream, or Any payload anywhere in its structure.
func isConstRepresentable(v value.Value) bool {
	switch v.Kind() {
	case value.KindUnit, value.KindBool, value.KindByte, value.KindChar,
		value.KindInteger, value.KindFloat, value.KindString, value.KindBytes:
		return true
	case value.KindVec:
		vs, _ := v.AsVec()
		return allConstRepresentable(vs)
	case value.KindTuple:
		vs, _ := v.AsTuple()
		return allConstRepresentable(vs)
	case value.KindObject:
		o, _ := v.AsObject()
		for _, k := range o.Keys() {
			fv, _ := o.Get(k)
			if !isConstRepresentable(fv) {
				return false
			}
		}
		return true
	case value.KindOption:
		opt, _ := v.AsOption()
		if !opt.Present {
			return true
		}
		return isConstRepresentable(opt.Inner)
	case value.KindResult:
		res, _ := v.AsResult()
		return isConstRepresentable(res.Inner)
	case value.KindStruct, value.KindTupleStruct:
		s, _ := v.AsStruct()
		return allConstRepresentable(s.Fields)
	case value.KindVariant:
		vr, _ := v.AsVariant()
		return allConstRepresentable(vr.Fields)
	default:
		// KindFunction, KindFuture, KindGenerator, KindStream, KindAny.
		return false
	}
}

func allConstRepresentable(vs []value.Value) bool {
	for _, v := range vs {
		if !isConstRepresentable(v) {
			return false
		}
	}
	return true
}
