package vm

import (
	"fmt"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
)

// single reads the lone operand of an instruction whose Args must carry
// exactly one address (OpIndexSet/OpTupleIndexSet/OpObjectIndexSet all
// write a single value, but — like OpVec/OpCall before them — record its
// address explicitly rather than assuming a fixed stack slot).
func (m *Vm) single(addrs []value.Address) (value.Value, error) {
	if len(addrs) != 1 {
		return value.Value{}, fmt.Errorf("expected exactly one operand, got %d", len(addrs))
	}
	return m.must(addrs[0]), nil
}

func (m *Vm) execIndexSet(inst unit.Inst) error {
	val, err := m.single(inst.Args)
	if err != nil {
		return err
	}
	container := m.must(inst.A)
	key := m.must(inst.B)
	switch container.Kind() {
	case value.KindObject:
		o, _ := container.AsObject()
		s, ok := key.AsString()
		if !ok {
			return fmt.Errorf("object index must be a string key")
		}
		o.Set(s, val)
		return nil
	case value.KindVec, value.KindTuple:
		vs, _ := container.AsVec()
		if container.Kind() == value.KindTuple {
			vs, _ = container.AsTuple()
		}
		i, ok := key.AsInteger()
		if !ok || i < 0 || int(i) >= len(vs) {
			return fmt.Errorf("index out of bounds")
		}
		vs[i] = val
		return nil
	default:
		return fmt.Errorf("value of kind %s is not indexable", container.Kind())
	}
}

// execTupleIndexGet is OpTupleIndexGet: a positional read at a
// runtime-computed index, as opposed to OpTupleIndexGetAt's compile-time
// constant N — internal/assemble.compileIndex emits this instead of the
// generic OpIndexGet when the bracketed index is itself written as an
// integer literal (`t[0]`), since that syntax is always positional access
// on a tuple/vec/struct rather than a string-keyed object lookup.
func (m *Vm) execTupleIndexGet(objAddr, idxAddr value.Address) (value.Value, error) {
	idx := m.must(idxAddr)
	i, ok := idx.AsInteger()
	if !ok {
		return value.Value{}, fmt.Errorf("tuple index must be an integer")
	}
	return m.execTupleIndexGetAt(objAddr, int(i))
}

// execTupleIndexSet mutates a positional field in place (Tuple/Vec, or a
// Struct/TupleStruct/Variant's Fields slice) — the write-side counterpart
// of execTupleIndexGetAt.
func (m *Vm) execTupleIndexSet(inst unit.Inst) error {
	val, err := m.single(inst.Args)
	if err != nil {
		return err
	}
	container := m.must(inst.A)
	var vs []value.Value
	switch container.Kind() {
	case value.KindTuple:
		vs, _ = container.AsTuple()
	case value.KindVec:
		vs, _ = container.AsVec()
	case value.KindStruct, value.KindTupleStruct:
		s, _ := container.AsStruct()
		vs = s.Fields
	case value.KindVariant:
		s, _ := container.AsVariant()
		vs = s.Fields
	default:
		return fmt.Errorf("value of kind %s has no positional fields", container.Kind())
	}
	idx := int(inst.N)
	if idx < 0 {
		idx += len(vs)
	}
	if idx < 0 || idx >= len(vs) {
		return fmt.Errorf("index out of bounds")
	}
	vs[idx] = val
	return nil
}

// fieldGet generalizes named-field access across Object (string-keyed map),
// Struct/TupleStruct, and Variant (both field-name-indexed through their
// Rtti) — the shared read-side of OpObjectIndexGet/GetAt.
func fieldGet(v value.Value, name string) (value.Value, error) {
	switch v.Kind() {
	case value.KindObject:
		o, _ := v.AsObject()
		if val, ok := o.Get(name); ok {
			return val, nil
		}
		return value.Value{}, fmt.Errorf("no such field %q", name)
	case value.KindStruct, value.KindTupleStruct:
		s, _ := v.AsStruct()
		idx := s.Rtti.FieldIndex(name)
		if idx < 0 {
			return value.Value{}, fmt.Errorf("no such field %q", name)
		}
		return s.Fields[idx], nil
	case value.KindVariant:
		s, _ := v.AsVariant()
		idx := s.Rtti.FieldIndex(name)
		if idx < 0 {
			return value.Value{}, fmt.Errorf("no such field %q", name)
		}
		return s.Fields[idx], nil
	default:
		return value.Value{}, fmt.Errorf("value of kind %s has no named fields", v.Kind())
	}
}

func fieldSet(v value.Value, name string, val value.Value) error {
	switch v.Kind() {
	case value.KindObject:
		o, _ := v.AsObject()
		o.Set(name, val)
		return nil
	case value.KindStruct, value.KindTupleStruct:
		s, _ := v.AsStruct()
		idx := s.Rtti.FieldIndex(name)
		if idx < 0 {
			return fmt.Errorf("no such field %q", name)
		}
		s.Fields[idx] = val
		return nil
	case value.KindVariant:
		s, _ := v.AsVariant()
		idx := s.Rtti.FieldIndex(name)
		if idx < 0 {
			return fmt.Errorf("no such field %q", name)
		}
		s.Fields[idx] = val
		return nil
	default:
		return fmt.Errorf("value of kind %s has no named fields", v.Kind())
	}
}

// execObjectIndexGet is a by-name field read (`v.field`), the string-keyed
// counterpart of OpTupleIndexGetAt's positional read.
func (m *Vm) execObjectIndexGet(addr value.Address, slot uint32) (value.Value, error) {
	name, ok := m.unit.StaticString(slot)
	if !ok {
		return value.Value{}, fmt.Errorf("bad static string slot %d", slot)
	}
	return fieldGet(m.must(addr), name)
}

// execObjectIndexGetAt reads the N'th key of the interned key-set at
// StaticSlot — how bindObjectPattern destructures an object/struct/variant
// pattern's fields by position within the set it just matched, rather than
// re-interning one string per field.
func (m *Vm) execObjectIndexGetAt(inst unit.Inst) (value.Value, error) {
	keys, ok := m.unit.StaticObjectKeySet(inst.StaticSlot)
	if !ok || int(inst.N) >= len(keys) {
		return value.Value{}, fmt.Errorf("bad object key slot %d", inst.StaticSlot)
	}
	return fieldGet(m.must(inst.A), keys[inst.N])
}

func (m *Vm) execObjectIndexSet(inst unit.Inst) error {
	name, ok := m.unit.StaticString(inst.StaticSlot)
	if !ok {
		return fmt.Errorf("bad static string slot %d", inst.StaticSlot)
	}
	val, err := m.single(inst.Args)
	if err != nil {
		return err
	}
	return fieldSet(m.must(inst.A), name, val)
}

// execTypedObject builds a named-field Struct instance. inst.Args holds the
// field values already ordered to match the Rtti's Fields (internal/assemble
// reorders a `Name { k: v, .. }` literal's written order to the declared
// field order at compile time, so the VM never has to).
func (m *Vm) execTypedObject(inst unit.Inst) error {
	rtti, ok := m.unit.Rtti[inst.Hash]
	if !ok {
		return fmt.Errorf("unknown struct RTTI %#x", uint64(inst.Hash))
	}
	vs, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, value.Struct(rtti, vs))
}

// execTypedTuple builds a tuple-struct instance directly from a call site
// internal/assemble already knows (by hash) names a tuple-struct
// constructor — bypassing the generic OpCall/function-table indirection
// that a FnTupleStruct entry in the Unit also still supports for an
// indirect (function-value) call to the same constructor.
func (m *Vm) execTypedTuple(inst unit.Inst) error {
	rtti, ok := m.unit.Rtti[inst.Hash]
	if !ok {
		return fmt.Errorf("unknown struct RTTI %#x", uint64(inst.Hash))
	}
	vs, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, value.TupleStruct(rtti, vs))
}

func (m *Vm) execVariant(inst unit.Inst) error {
	vr, ok := m.unit.VariantRtti[inst.Hash]
	if !ok {
		return fmt.Errorf("unknown variant RTTI %#x", uint64(inst.Hash))
	}
	vs, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, value.Variant(vr, vs))
}

// execIterNext drives one step of the Iterator protocol (spec §4.7): inst.A
// holds the mutable iterator state, rewritten in place via Stack.Set for
// the two built-in iterable shapes (a (cursor, hi) range tuple, or a
// remaining-elements Vec); a Generator instead tracks its own state and is
// simply polled. The bool result mirrors MatchSequence/MatchObject's
// "matched" convention inverted: true means exhausted, at which point the
// caller (compileFor) jumps to inst.Offset instead of binding inst.Out.
func (m *Vm) execIterNext(inst unit.Inst) (bool, error) {
	state := m.must(inst.A)
	switch state.Kind() {
	case value.KindTuple:
		vs, _ := state.AsTuple()
		if len(vs) != 2 {
			return false, fmt.Errorf("a %d-element tuple is not a range iterator", len(vs))
		}
		lo, ok1 := vs[0].AsInteger()
		hi, ok2 := vs[1].AsInteger()
		if !ok1 || !ok2 {
			return false, fmt.Errorf("range iterator bounds must be integers")
		}
		if lo >= hi {
			return true, nil
		}
		if err := m.stack.Set(inst.A, value.Tuple([]value.Value{value.Integer(lo + 1), vs[1]})); err != nil {
			return false, err
		}
		return false, m.stack.StoreOutput(inst.Out, value.Integer(lo))
	case value.KindVec:
		vs, _ := state.AsVec()
		if len(vs) == 0 {
			return true, nil
		}
		if err := m.stack.Set(inst.A, value.Vec(vs[1:])); err != nil {
			return false, err
		}
		return false, m.stack.StoreOutput(inst.Out, vs[0])
	case value.KindGenerator:
		gen, _ := state.AsGenerator()
		v, done, err := gen.Next()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		return false, m.stack.StoreOutput(inst.Out, v)
	default:
		return false, fmt.Errorf("value of kind %s is not iterable", state.Kind())
	}
}

// vmClosure is a value.Function wrapping a compiler-generated function body
// together with the captured-variable values internal/assemble.compileClosure
// snapshotted at OpLoadFn time — the same "own hash plus a captured-value
// slice" shape generator.go's startGenerator gives a generator body, here
// wired through value.Function instead of value.Generator.
type vmClosure struct {
	vm       *Vm
	hash     item.Hash
	captured []value.Value
}

func (c *vmClosure) Hash() item.Hash { return c.hash }

func (c *vmClosure) Call(args []value.Value) (value.Value, error) {
	all := make([]value.Value, 0, len(c.captured)+len(args))
	all = append(all, c.captured...)
	all = append(all, args...)
	return c.vm.Call(c.hash, all)
}

// execLoadFn constructs a closure value over inst.Hash's generated function,
// closing over the values at inst.Args (resolved now, not at call time, so
// a capture sees the value it had when the closure was created).
func (m *Vm) execLoadFn(inst unit.Inst) error {
	captured, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	cl := &vmClosure{vm: m, hash: inst.Hash, captured: captured}
	return m.stack.StoreOutput(inst.Out, value.FromFunction(cl))
}

// execCallFn calls a first-class function value held at inst.A (a closure,
// or any other value.Function) — the indirect counterpart of OpCall's
// hash-addressed direct call.
func (m *Vm) execCallFn(inst unit.Inst) error {
	callee := m.must(inst.A)
	fn, ok := callee.AsFunction()
	if !ok {
		return fmt.Errorf("call target is not a function value (got %s)", callee.Kind())
	}
	args, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	result, err := fn.Call(args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, result)
}

// execSelect polls each arm's future in source order and commits to the
// first one ready, recording its index in m.branch for the OpJumpIfBranch
// chain compileSelect emits right after. Every future this VM produces
// resolves eagerly (see DESIGN.md "async call convention"), so in practice
// the first arm always wins — select has no preemptive scheduler to race
// arms against, a documented narrowing of spec §4.4's select semantics.
func (m *Vm) execSelect(inst unit.Inst) error {
	for i, addr := range inst.Args {
		v := m.must(addr)
		fut, ok := v.AsFuture()
		if !ok {
			return fmt.Errorf("select arm %d is not a future", i)
		}
		result, ready, err := fut.Poll()
		if err != nil {
			return err
		}
		if ready {
			m.branch = int64(i)
			return m.stack.StoreOutput(inst.Out, result)
		}
	}
	return fmt.Errorf("select found no ready future")
}

// execIs implements OpIs/OpIsNot: whether inst.A's runtime value is an
// instance of the struct/variant named by inst.Hash. Every other kind
// (including a bare Object literal, which carries no RTTI) is never an
// instance of a named type.
func (m *Vm) execIs(inst unit.Inst, negate bool) error {
	v := m.must(inst.A)
	match := matchesTypeHash(v, inst.Hash)
	if negate {
		match = !match
	}
	return m.stack.StoreOutput(inst.Out, value.Bool(match))
}

func matchesTypeHash(v value.Value, hash item.Hash) bool {
	switch v.Kind() {
	case value.KindStruct, value.KindTupleStruct:
		s, _ := v.AsStruct()
		return s.Rtti != nil && s.Rtti.Hash == hash
	case value.KindVariant:
		s, _ := v.AsVariant()
		return s.Rtti != nil && s.Rtti.Hash == hash
	default:
		return false
	}
}

// execMatchSequence implements OpMatchSequence (spec §4.5/§8 scenario 4): a
// shape guard ahead of bindSequencePattern's positional binds. matched is
// false (the caller jumps to inst.Offset instead of falling through to the
// binds) whenever the runtime kind doesn't match, or the element count is
// wrong (exactly inst.N elements if Exact, at least inst.N otherwise, for a
// pattern with a `..` rest marker).
func (m *Vm) execMatchSequence(inst unit.Inst) (bool, error) {
	v := m.must(inst.A)
	var n int
	switch inst.TypeCheck.Kind {
	case unit.TypeCheckVec:
		vs, ok := v.AsVec()
		if !ok {
			return false, nil
		}
		n = len(vs)
	case unit.TypeCheckTuple:
		vs, ok := v.AsTuple()
		if !ok {
			return false, nil
		}
		n = len(vs)
	case unit.TypeCheckTupleStruct, unit.TypeCheckStruct:
		s, ok := v.AsStruct()
		if !ok || s.Rtti == nil || s.Rtti.Hash != inst.TypeCheck.Hash {
			return false, nil
		}
		n = len(s.Fields)
	case unit.TypeCheckVariant:
		s, ok := v.AsVariant()
		if !ok || s.Rtti == nil || s.Rtti.Hash != inst.TypeCheck.Hash {
			return false, nil
		}
		n = len(s.Fields)
	default:
		return false, fmt.Errorf("unsupported MatchSequence shape %d", inst.TypeCheck.Kind)
	}
	if inst.Exact {
		return n == int(inst.N), nil
	}
	return n >= int(inst.N), nil
}

// execMatchObject implements OpMatchObject (spec §4.5): a shape guard
// against an object's (or struct/variant's, once it has one — currently
// only true Objects are supported, matching what bindObjectPattern/
// compileObject actually produce) key-set, exact or subset per inst.Exact.
func (m *Vm) execMatchObject(inst unit.Inst) (bool, error) {
	v := m.must(inst.A)
	o, ok := v.AsObject()
	if !ok {
		return false, nil
	}
	keys, ok := m.unit.StaticObjectKeySet(inst.StaticSlot)
	if !ok {
		return false, fmt.Errorf("bad object key slot %d", inst.StaticSlot)
	}
	if inst.Exact {
		return o.ExactKeys(keys), nil
	}
	return o.HasKeys(keys), nil
}
