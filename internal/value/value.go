package value

import (
	"fmt"
	"math"

	"github.com/runelang/rune/internal/item"
)

// Kind discriminates the Value sum type of spec §3.3. A tagged struct
// switched on Kind is used instead of an interface-typed sum (design note
// §9: "prefer a tagged-union discriminant ... over trait-object vtables in
// the hot path"), so primitive kinds never allocate.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindByte
	KindChar
	KindInteger
	KindFloat
	KindString
	KindBytes
	KindVec
	KindTuple
	KindObject
	KindOption
	KindResult
	KindStruct
	KindTupleStruct
	KindVariant
	KindFunction
	KindFuture
	KindGenerator
	KindStream
	KindAny
)

func (k Kind) String() string {
	names := [...]string{
		"unit", "bool", "byte", "char", "integer", "float", "string", "bytes",
		"vec", "tuple", "object", "option", "result", "struct", "tuple-struct",
		"variant", "function", "future", "generator", "stream", "any",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// shared is the reference-counted heap box backing every non-trivial
// Value: an Access flag plus an opaque payload. Values of trivial kinds
// (unit, bool, byte, char, integer, float) carry no shared box at all,
// matching the "every non-trivial value" wording of spec §3.3 precisely —
// an invariant IsTrivial below enforces structurally.
type shared struct {
	Access
	payload any
}

// Value is the tagged runtime value. The zero Value is Kind: unit.
type Value struct {
	kind Kind
	num  uint64 // bit pattern for bool/byte/char/integer/float
	box  *shared
}

func IsTrivial(k Kind) bool {
	switch k {
	case KindUnit, KindBool, KindByte, KindChar, KindInteger, KindFloat:
		return true
	default:
		return false
	}
}

func (v Value) Kind() Kind { return v.kind }

// Unit / Bool / Byte / Char / Integer / Float constructors and accessors.

func Unit() Value { return Value{kind: KindUnit} }

func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.num != 0, true
}

func Byte(b byte) Value { return Value{kind: KindByte, num: uint64(b)} }

func (v Value) AsByte() (byte, bool) {
	if v.kind != KindByte {
		return 0, false
	}
	return byte(v.num), true
}

func Char(r rune) Value { return Value{kind: KindChar, num: uint64(r)} }

func (v Value) AsChar() (rune, bool) {
	if v.kind != KindChar {
		return 0, false
	}
	return rune(v.num), true
}

func Integer(i int64) Value { return Value{kind: KindInteger, num: uint64(i)} }

func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return int64(v.num), true
}

func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return math.Float64frombits(v.num), true
}

// newShared wraps a payload in a fresh reference-counted box.
func newShared(kind Kind, payload any) Value {
	return Value{kind: kind, box: &shared{payload: payload}}
}

func String(s string) Value { return newShared(KindString, s) }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString || v.box == nil {
		return "", false
	}
	s, ok := v.box.payload.(string)
	return s, ok
}

func Bytes(b []byte) Value { return newShared(KindBytes, b) }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes || v.box == nil {
		return nil, false
	}
	b, ok := v.box.payload.([]byte)
	return b, ok
}

func Vec(vs []Value) Value { return newShared(KindVec, vs) }

func (v Value) AsVec() ([]Value, bool) {
	if v.kind != KindVec || v.box == nil {
		return nil, false
	}
	vs, ok := v.box.payload.([]Value)
	return vs, ok
}

func Tuple(vs []Value) Value { return newShared(KindTuple, vs) }

func (v Value) AsTuple() ([]Value, bool) {
	if v.kind != KindTuple || v.box == nil {
		return nil, false
	}
	vs, ok := v.box.payload.([]Value)
	return vs, ok
}

func FromObject(o *Object) Value { return newShared(KindObject, o) }

func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject || v.box == nil {
		return nil, false
	}
	o, ok := v.box.payload.(*Object)
	return o, ok
}

// Option represents Some(v) when present is true, None otherwise.
type OptionPayload struct {
	Present bool
	Inner   Value
}

func Some(v Value) Value { return newShared(KindOption, OptionPayload{Present: true, Inner: v}) }
func None() Value        { return newShared(KindOption, OptionPayload{}) }

func (v Value) AsOption() (OptionPayload, bool) {
	if v.kind != KindOption || v.box == nil {
		return OptionPayload{}, false
	}
	o, ok := v.box.payload.(OptionPayload)
	return o, ok
}

// Result represents Ok(v) when Ok is true, Err(v) otherwise.
type ResultPayload struct {
	Ok    bool
	Inner Value
}

func Ok(v Value) Value  { return newShared(KindResult, ResultPayload{Ok: true, Inner: v}) }
func Err(v Value) Value { return newShared(KindResult, ResultPayload{Inner: v}) }

func (v Value) AsResult() (ResultPayload, bool) {
	if v.kind != KindResult || v.box == nil {
		return ResultPayload{}, false
	}
	r, ok := v.box.payload.(ResultPayload)
	return r, ok
}

// StructPayload backs struct / tuple-struct / variant instances. Named
// carries field names via rtti.Fields; Fields holds positional values for
// both named and tuple layouts (named lookups go through rtti.FieldIndex).
type StructPayload struct {
	Rtti   *Rtti
	Fields []Value
}

func Struct(rtti *Rtti, fields []Value) Value {
	return newShared(KindStruct, StructPayload{Rtti: rtti, Fields: fields})
}

func TupleStruct(rtti *Rtti, fields []Value) Value {
	return newShared(KindTupleStruct, StructPayload{Rtti: rtti, Fields: fields})
}

// VariantPayload additionally carries the variant's own RTTI (which in turn
// points back at the owning enum hash).
type VariantPayload struct {
	Rtti   *VariantRtti
	Fields []Value
}

func Variant(rtti *VariantRtti, fields []Value) Value {
	return newShared(KindVariant, VariantPayload{Rtti: rtti, Fields: fields})
}

func (v Value) AsStruct() (StructPayload, bool) {
	if (v.kind != KindStruct && v.kind != KindTupleStruct) || v.box == nil {
		return StructPayload{}, false
	}
	s, ok := v.box.payload.(StructPayload)
	return s, ok
}

func (v Value) AsVariant() (VariantPayload, bool) {
	if v.kind != KindVariant || v.box == nil {
		return VariantPayload{}, false
	}
	s, ok := v.box.payload.(VariantPayload)
	return s, ok
}

// Function is implemented by callable handles (free function pointers,
// closures, and host SyncFunctions). Defined as an interface here so the VM
// and host packages can each provide their own concrete type without a
// dependency cycle back into value.
type Function interface {
	Hash() item.Hash
	Call(args []Value) (Value, error)
}

func FromFunction(f Function) Value { return newShared(KindFunction, f) }

func (v Value) AsFunction() (Function, bool) {
	if v.kind != KindFunction || v.box == nil {
		return nil, false
	}
	f, ok := v.box.payload.(Function)
	return f, ok
}

// Future/Generator/Stream are minimal coroutine-driving interfaces; the VM
// package provides the concrete suspended-VM-state implementation (spec
// §4.8, §9 "Coroutines").
type Future interface {
	Poll() (result Value, ready bool, err error)
}

type Generator interface {
	Next() (result Value, done bool, err error)
}

type Stream interface {
	Next() (result Future, err error) // yields a Future of Option<Value>
}

func FromFuture(f Future) Value       { return newShared(KindFuture, f) }
func FromGenerator(g Generator) Value { return newShared(KindGenerator, g) }
func FromStream(s Stream) Value       { return newShared(KindStream, s) }

func (v Value) AsFuture() (Future, bool) {
	if v.kind != KindFuture || v.box == nil {
		return nil, false
	}
	f, ok := v.box.payload.(Future)
	return f, ok
}

func (v Value) AsGenerator() (Generator, bool) {
	if v.kind != KindGenerator || v.box == nil {
		return nil, false
	}
	g, ok := v.box.payload.(Generator)
	return g, ok
}

func (v Value) AsStream() (Stream, bool) {
	if v.kind != KindStream || v.box == nil {
		return nil, false
	}
	s, ok := v.box.payload.(Stream)
	return s, ok
}

// Any wraps a host-registered type keyed by its type Hash (spec §3.3).
type AnyPayload struct {
	TypeHash item.Hash
	Inner    any
}

func Any(typeHash item.Hash, inner any) Value {
	return newShared(KindAny, AnyPayload{TypeHash: typeHash, Inner: inner})
}

func (v Value) AsAny() (AnyPayload, bool) {
	if v.kind != KindAny || v.box == nil {
		return AnyPayload{}, false
	}
	a, ok := v.box.payload.(AnyPayload)
	return a, ok
}

// BorrowRef/BorrowMut/Take expose the access discipline (spec §5) for
// non-trivial values. Trivial values are always freely copyable and these
// always succeed with a no-op guard for them, since there is no shared
// state to protect.
func (v Value) BorrowRef() (*RefGuard, error) {
	if v.box == nil {
		return nil, nil
	}
	return v.box.BorrowRef()
}

func (v Value) BorrowMut() (*MutGuard, error) {
	if v.box == nil {
		return nil, nil
	}
	return v.box.BorrowMut()
}

func (v Value) Take() error {
	if v.box == nil {
		return nil
	}
	return v.box.Take()
}

func (v Value) IsTaken() bool {
	if v.box == nil {
		return false
	}
	return v.box.IsTaken()
}

// Equal implements the value-level equality used by the Eq/Neq
// instructions and Is/IsNot pattern checks. It does not itself take a
// borrow; callers in the VM are responsible for the access discipline.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Integers and floats never compare equal cross-kind in Rune,
		// matching a dynamically-typed-but-not-type-coercing language.
		return false
	}
	switch a.kind {
	case KindUnit:
		return true
	case KindBool, KindByte, KindChar, KindInteger:
		return a.num == b.num
	case KindFloat:
		return math.Float64frombits(a.num) == math.Float64frombits(b.num)
	case KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return as == bs
	case KindBytes:
		ab, _ := a.AsBytes()
		bb, _ := b.AsBytes()
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	case KindVec, KindTuple:
		av, _ := a.AsVec()
		if a.kind == KindTuple {
			av, _ = a.AsTuple()
		}
		bv, _ := b.AsVec()
		if b.kind == KindTuple {
			bv, _ = b.AsTuple()
		}
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case KindOption:
		ao, _ := a.AsOption()
		bo, _ := b.AsOption()
		if ao.Present != bo.Present {
			return false
		}
		return !ao.Present || Equal(ao.Inner, bo.Inner)
	default:
		return a.box != nil && b.box != nil && a.box == b.box
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "()"
	case KindBool:
		b, _ := v.AsBool()
		return fmt.Sprint(b)
	case KindByte:
		b, _ := v.AsByte()
		return fmt.Sprintf("b'%d'", b)
	case KindChar:
		c, _ := v.AsChar()
		return fmt.Sprintf("%q", c)
	case KindInteger:
		i, _ := v.AsInteger()
		return fmt.Sprint(i)
	case KindFloat:
		f, _ := v.AsFloat()
		return fmt.Sprint(f)
	case KindString:
		s, _ := v.AsString()
		return fmt.Sprintf("%q", s)
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}
