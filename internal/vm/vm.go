// Package vm implements the register-based bytecode interpreter that
// executes a linked unit.Unit (spec §4.9). Dispatch is a flat switch over
// unit.Op driven by an instruction pointer and a value.Stack, generalized
// from the teacher's wam register machine (wam/*.go: an instruction slice
// walked by a single dispatch loop over a handful of WAM opcodes) up to
// Rune's full instruction family and four call conventions (spec §4.8).
package vm

import (
	"fmt"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
)

// HostFunctions is the minimal surface the VM needs from a host context to
// resolve calls that aren't present in the Unit's own function table (spec
// §4.6/§6). internal/host's RuntimeContext implements this; vm does not
// import host to avoid a cycle (the same shape as unit.HostResolver).
type HostFunctions interface {
	CallHost(hash item.Hash, args []value.Value) (value.Value, error)
	HasFunction(hash item.Hash) bool
}

// VmError is returned for a dispatch-time fault that is not a scripted
// Panic: a missing function, a bad stack address, a type mismatch on an
// arithmetic operand. Panic instructions instead produce a VmPanic.
type VmError struct {
	IP  int
	Err error
}

func (e *VmError) Error() string { return fmt.Sprintf("vm error at ip=%d: %s", e.IP, e.Err) }
func (e *VmError) Unwrap() error { return e.Err }

// VmPanic is returned when the running program executes an OpPanic
// instruction (spec §4.7): an unmatched pattern, a completed future polled
// again, or an explicit host-raised panic.
type VmPanic struct {
	IP     int
	Reason unit.PanicReason
}

func (e *VmPanic) Error() string { return fmt.Sprintf("panic at ip=%d: %s", e.IP, e.Reason) }

// Vm executes one Unit against a Stack shared by every frame it pushes.
type Vm struct {
	unit  *unit.Unit
	host  HostFunctions
	stack *value.Stack

	// yield is set only on the sub-Vm driving a generator/stream body (see
	// generator.go); it is the hook OpYield/OpYieldUnit call to hand a
	// value back to the caller and block until resumed. A nil yield means
	// this Vm is running an immediate/async frame where yield is invalid.
	yield func(value.Value) error

	// branch records which arm OpSelect last chose, read back by a
	// following chain of OpJumpIfBranch instructions (spec §4.7).
	branch int64
}

func New(u *unit.Unit, host HostFunctions) *Vm {
	return &Vm{unit: u, host: host, stack: value.NewStack()}
}

// Call invokes a function by hash with the given arguments and runs it to
// completion, matching the Immediate call convention (spec §4.8). Async,
// Generator, and Stream functions are also reachable through Call — it
// always runs the callee eagerly to its first suspension point (Future for
// async, a Generator handle for generator/stream) and returns that handle as
// a Value rather than the function's eventual result.
func (m *Vm) Call(hash item.Hash, args []value.Value) (value.Value, error) {
	fn, ok := m.unit.Function(hash)
	if !ok {
		return value.Value{}, fmt.Errorf("no such function: %#x", uint64(hash))
	}
	switch fn.Kind {
	case unit.FnUnitStruct:
		return value.Struct(fn.Rtti, nil), nil
	case unit.FnTupleStruct:
		return value.TupleStruct(fn.Rtti, args), nil
	case unit.FnUnitVariant:
		return value.Variant(fn.VariantRtti, nil), nil
	case unit.FnTupleVariant:
		return value.Variant(fn.VariantRtti, args), nil
	}

	switch fn.Call {
	case unit.CallGenerator, unit.CallStream:
		return m.startGenerator(fn, args)
	default:
		// CallImmediate and CallAsync both execute eagerly on this
		// goroutine; an async call's Future is already resolved by the
		// time Call returns (see DESIGN.md "async call convention").
		result, err := m.runFrame(fn.Offset, args)
		if fn.Call == unit.CallAsync {
			return value.FromFuture(readyFuture{v: result, err: err}), nil
		}
		return result, err
	}
}

// runFrame pushes a new frame with args as its initial locals and executes
// instructions starting at ip until a Return/ReturnUnit/Panic.
func (m *Vm) runFrame(startIP uint32, args []value.Value) (value.Value, error) {
	callerTop := m.stack.PushFrame(args)
	result, err := m.run(int(startIP))
	m.stack.PopFrame(callerTop)
	return result, err
}

func (m *Vm) run(ip int) (value.Value, error) {
	for {
		if ip < 0 || ip >= len(m.unit.Instructions) {
			return value.Value{}, &VmError{IP: ip, Err: fmt.Errorf("instruction pointer out of range")}
		}
		inst := m.unit.Instructions[ip]
		switch inst.Op {
		case unit.OpPush:
			if err := m.stack.StoreOutput(inst.Out, inst.PushValue); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpCopy:
			v, err := m.stack.At(inst.A)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpDrop:
			// no-op on this Stack model: addresses are never reclaimed
			// mid-frame (see internal/assemble's monotonic slot allocator).
		case unit.OpSwap:
			a, err1 := m.stack.At(inst.A)
			b, err2 := m.stack.At(inst.B)
			if err1 != nil || err2 != nil {
				return value.Value{}, &VmError{ip, fmt.Errorf("swap out of range")}
			}
			m.stack.Set(inst.A, b)
			m.stack.Set(inst.B, a)
		case unit.OpClean:
			if err := m.stack.Clean(int(inst.N)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpPopN:
			if err := m.stack.PopN(int(inst.N)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpArith:
			if err := m.execArith(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpCompoundAssign:
			if err := m.execArith(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpJump:
			ip = int(inst.Offset)
			continue
		case unit.OpJumpIf:
			if truthy(m.must(inst.A)) {
				ip = int(inst.Offset)
				continue
			}
		case unit.OpJumpIfNot:
			if !truthy(m.must(inst.A)) {
				ip = int(inst.Offset)
				continue
			}
		case unit.OpJumpIfOrPop:
			v := m.must(inst.A)
			if truthy(v) {
				ip = int(inst.Offset)
				continue
			}
			m.stack.PopN(1)
		case unit.OpJumpIfNotOrPop:
			v := m.must(inst.A)
			if !truthy(v) {
				ip = int(inst.Offset)
				continue
			}
			m.stack.PopN(1)

		case unit.OpCall:
			if err := m.execCall(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpCallInstance:
			if err := m.execCallInstance(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpReturn:
			return m.must(inst.A), nil
		case unit.OpReturnUnit:
			return value.Unit(), nil

		case unit.OpVec:
			vs, err := m.resolveArgs(inst.Args)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, value.Vec(vs)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpTuple:
			vs, err := m.resolveArgs(inst.Args)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, value.Tuple(vs)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpObject:
			vs, err := m.resolveArgs(inst.Args)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			keys, ok := m.unit.StaticObjectKeySet(inst.StaticSlot)
			if !ok {
				return value.Value{}, &VmError{ip, fmt.Errorf("bad object key slot %d", inst.StaticSlot)}
			}
			o := value.NewObject()
			for i, k := range keys {
				if i < len(vs) {
					o.Set(k, vs[i])
				}
			}
			if err := m.stack.StoreOutput(inst.Out, value.FromObject(o)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpIndexGet:
			v, err := m.execIndexGet(inst.A, inst.B)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpIndexSet:
			if err := m.execIndexSet(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpTupleIndexGet:
			v, err := m.execTupleIndexGet(inst.A, inst.B)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpTupleIndexGetAt:
			v, err := m.execTupleIndexGetAt(inst.A, int(inst.N))
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpTupleIndexSet:
			if err := m.execTupleIndexSet(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpObjectIndexGet:
			v, err := m.execObjectIndexGet(inst.A, inst.StaticSlot)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpObjectIndexGetAt:
			v, err := m.execObjectIndexGetAt(inst)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, v); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpObjectIndexSet:
			if err := m.execObjectIndexSet(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpTypedObject:
			if err := m.execTypedObject(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpTypedTuple:
			if err := m.execTypedTuple(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpVariant:
			if err := m.execVariant(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpIterNext:
			done, err := m.execIterNext(inst)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if done {
				ip = int(inst.Offset)
				continue
			}

		case unit.OpLoadFn:
			if err := m.execLoadFn(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpCallFn:
			if err := m.execCallFn(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpSelect:
			if err := m.execSelect(inst); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpJumpIfBranch:
			if m.branch == inst.Branch {
				ip = int(inst.Offset)
				continue
			}

		case unit.OpIs:
			if err := m.execIs(inst, false); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpIsNot:
			if err := m.execIs(inst, true); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpEqInteger, unit.OpEqByte, unit.OpEqCharacter, unit.OpEqStaticString, unit.OpEqBool:
			match := value.Equal(m.must(inst.A), inst.PushValue)
			if err := m.stack.StoreOutput(inst.Out, value.Bool(match)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpMatchSequence:
			matched, err := m.execMatchSequence(inst)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if !matched {
				ip = int(inst.Offset)
				continue
			}
		case unit.OpMatchObject:
			matched, err := m.execMatchObject(inst)
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if !matched {
				ip = int(inst.Offset)
				continue
			}

		case unit.OpIsValue:
			v := m.must(inst.A)
			ok := true
			if opt, isOpt := v.AsOption(); isOpt {
				ok = opt.Present
			} else if res, isRes := v.AsResult(); isRes {
				ok = res.Ok
			}
			if err := m.stack.StoreOutput(inst.Out, value.Bool(ok)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpIsUnit:
			v := m.must(inst.A)
			if err := m.stack.StoreOutput(inst.Out, value.Bool(v.Kind() == value.KindUnit)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpAwait:
			v := m.must(inst.A)
			fut, ok := v.AsFuture()
			if !ok {
				return value.Value{}, &VmError{ip, fmt.Errorf("await on a non-future value")}
			}
			result, _, err := fut.Poll()
			if err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, result); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpYield:
			if m.yield == nil {
				return value.Value{}, &VmError{ip, fmt.Errorf("yield outside of a generator body")}
			}
			if err := m.yield(m.must(inst.A)); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, value.Unit()); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
		case unit.OpYieldUnit:
			if m.yield == nil {
				return value.Value{}, &VmError{ip, fmt.Errorf("yield outside of a generator body")}
			}
			if err := m.yield(value.Unit()); err != nil {
				return value.Value{}, &VmError{ip, err}
			}
			if err := m.stack.StoreOutput(inst.Out, value.Unit()); err != nil {
				return value.Value{}, &VmError{ip, err}
			}

		case unit.OpPanic:
			return value.Value{}, &VmPanic{IP: ip, Reason: inst.Panic}

		default:
			return value.Value{}, &VmError{ip, fmt.Errorf("unimplemented opcode %v", inst.Op)}
		}
		ip++
	}
}

func (m *Vm) must(addr value.Address) value.Value {
	v, _ := m.stack.At(addr)
	return v
}

// resolveArgs reads the operands of a variadic-arity instruction (spec
// §4.7 OpVec/OpTuple/OpObject/OpCall) from their recorded addresses, rather
// than assuming they sit contiguously at the top of the frame: an operand
// may be an existing bound variable's slot, not a freshly allocated one.
func (m *Vm) resolveArgs(addrs []value.Address) ([]value.Value, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	out := make([]value.Value, len(addrs))
	for i, addr := range addrs {
		v, err := m.stack.At(addr)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func truthy(v value.Value) bool {
	b, ok := v.AsBool()
	return ok && b
}

func (m *Vm) execCall(inst unit.Inst) error {
	args, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	result, err := m.callHashOrHost(inst.Hash, args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, result)
}

// execCallInstance resolves an instance method call (spec §3.1 Associated).
// inst.Args[0] is always the receiver, per internal/assemble's
// compileMethodCall; the placeholder Associated(0, name) hash is not
// resolvable against the Unit's function table for any real type, so an
// instance call is always satisfied by the host's (kind, name) dispatch.
func (m *Vm) execCallInstance(inst unit.Inst) error {
	args, err := m.resolveArgs(inst.Args)
	if err != nil {
		return err
	}
	result, err := m.callHashOrHost(inst.Hash, args)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, result)
}

func (m *Vm) callHashOrHost(hash item.Hash, args []value.Value) (value.Value, error) {
	if _, ok := m.unit.Function(hash); ok {
		return m.Call(hash, args)
	}
	if m.host != nil && m.host.HasFunction(hash) {
		return m.host.CallHost(hash, args)
	}
	return value.Value{}, fmt.Errorf("unresolved call target %#x", uint64(hash))
}

// execArith implements both OpArith and OpCompoundAssign (the latter simply
// also targets A as its own Out, per internal/assemble's compileAssign).
func (m *Vm) execArith(inst unit.Inst) error {
	a := m.must(inst.A)
	b := m.must(inst.B)
	result, err := arithEval(inst.Arith, a, b)
	if err != nil {
		return err
	}
	return m.stack.StoreOutput(inst.Out, result)
}

func arithEval(op unit.ArithOp, a, b value.Value) (value.Value, error) {
	switch op {
	case unit.ArithEq:
		return value.Bool(value.Equal(a, b)), nil
	case unit.ArithNeq:
		return value.Bool(!value.Equal(a, b)), nil
	case unit.ArithAnd:
		av, aok := a.AsBool()
		bv, bok := b.AsBool()
		if !aok || !bok {
			return value.Value{}, fmt.Errorf("&& requires bool operands, got %s and %s", a.Kind(), b.Kind())
		}
		return value.Bool(av && bv), nil
	case unit.ArithOr:
		av, aok := a.AsBool()
		bv, bok := b.AsBool()
		if !aok || !bok {
			return value.Value{}, fmt.Errorf("|| requires bool operands, got %s and %s", a.Kind(), b.Kind())
		}
		return value.Bool(av || bv), nil
	}

	if ai, aok := a.AsInteger(); aok {
		if bi, bok := b.AsInteger(); bok {
			return intArith(op, ai, bi)
		}
	}
	if af, aok := a.AsFloat(); aok {
		if bf, bok := b.AsFloat(); bok {
			return floatArith(op, af, bf)
		}
	}
	if as, aok := a.AsString(); aok && op == unit.ArithAdd {
		if bs, bok := b.AsString(); bok {
			return value.String(as + bs), nil
		}
	}
	return value.Value{}, fmt.Errorf("arithmetic op %d not supported between %s and %s", op, a.Kind(), b.Kind())
}

func intArith(op unit.ArithOp, a, b int64) (value.Value, error) {
	switch op {
	case unit.ArithAdd:
		return value.Integer(a + b), nil
	case unit.ArithSub:
		return value.Integer(a - b), nil
	case unit.ArithMul:
		return value.Integer(a * b), nil
	case unit.ArithDiv:
		if b == 0 {
			return value.Value{}, fmt.Errorf("integer division by zero")
		}
		return value.Integer(a / b), nil
	case unit.ArithRem:
		if b == 0 {
			return value.Value{}, fmt.Errorf("integer division by zero")
		}
		return value.Integer(a % b), nil
	case unit.ArithBitAnd:
		return value.Integer(a & b), nil
	case unit.ArithBitOr:
		return value.Integer(a | b), nil
	case unit.ArithBitXor:
		return value.Integer(a ^ b), nil
	case unit.ArithShl:
		return value.Integer(a << uint(b)), nil
	case unit.ArithShr:
		return value.Integer(a >> uint(b)), nil
	case unit.ArithLt:
		return value.Bool(a < b), nil
	case unit.ArithLte:
		return value.Bool(a <= b), nil
	case unit.ArithGt:
		return value.Bool(a > b), nil
	case unit.ArithGte:
		return value.Bool(a >= b), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported integer arithmetic op %d", op)
	}
}

func floatArith(op unit.ArithOp, a, b float64) (value.Value, error) {
	switch op {
	case unit.ArithAdd:
		return value.Float(a + b), nil
	case unit.ArithSub:
		return value.Float(a - b), nil
	case unit.ArithMul:
		return value.Float(a * b), nil
	case unit.ArithDiv:
		return value.Float(a / b), nil
	case unit.ArithLt:
		return value.Bool(a < b), nil
	case unit.ArithLte:
		return value.Bool(a <= b), nil
	case unit.ArithGt:
		return value.Bool(a > b), nil
	case unit.ArithGte:
		return value.Bool(a >= b), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported float arithmetic op %d", op)
	}
}

func (m *Vm) execIndexGet(objAddr, keyAddr value.Address) (value.Value, error) {
	obj := m.must(objAddr)
	key := m.must(keyAddr)
	switch obj.Kind() {
	case value.KindObject:
		o, _ := obj.AsObject()
		if s, ok := key.AsString(); ok {
			if v, ok := o.Get(s); ok {
				return v, nil
			}
			return value.Value{}, fmt.Errorf("no such field %q", s)
		}
		return value.Value{}, fmt.Errorf("object index must be a string key")
	case value.KindVec, value.KindTuple:
		vs, _ := obj.AsVec()
		if obj.Kind() == value.KindTuple {
			vs, _ = obj.AsTuple()
		}
		i, ok := key.AsInteger()
		if !ok || i < 0 || int(i) >= len(vs) {
			return value.Value{}, fmt.Errorf("index out of bounds")
		}
		return vs[i], nil
	default:
		return value.Value{}, fmt.Errorf("value of kind %s is not indexable", obj.Kind())
	}
}

// execTupleIndexGetAt reads the element/field at idx, resolving a negative
// idx against the container's runtime length (idx = -1 is the last
// element) — how internal/assemble.bindSequencePattern binds the elements
// trailing a `..` rest marker in an array/tuple pattern without knowing the
// container's length at compile time.
func (m *Vm) execTupleIndexGetAt(addr value.Address, idx int) (value.Value, error) {
	obj := m.must(addr)
	switch obj.Kind() {
	case value.KindTuple:
		vs, _ := obj.AsTuple()
		return indexAt(vs, idx, "tuple")
	case value.KindVec:
		vs, _ := obj.AsVec()
		return indexAt(vs, idx, "vec")
	case value.KindStruct, value.KindTupleStruct:
		s, _ := obj.AsStruct()
		return indexAt(s.Fields, idx, "struct field")
	default:
		return value.Value{}, fmt.Errorf("value of kind %s has no positional fields", obj.Kind())
	}
}

func indexAt(vs []value.Value, idx int, what string) (value.Value, error) {
	if idx < 0 {
		idx += len(vs)
	}
	if idx < 0 || idx >= len(vs) {
		return value.Value{}, fmt.Errorf("%s index out of bounds", what)
	}
	return vs[idx], nil
}
