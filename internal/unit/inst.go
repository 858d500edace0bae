// Package unit implements the Unit bytecode artifact (spec §3.6): the
// immutable, linked output of compilation that the VM executes. It is
// modeled on the teacher's wam.Program (wam/program.go: a flat instruction
// slice plus a deduped constant pool keyed by content), scaled from WAM's
// six unify opcodes up to the full instruction family of spec §4.7.
package unit

import (
	"fmt"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// Op is the opcode of one instruction (spec §4.7). Instructions are fixed
// shape, carrying only the fields relevant to their Op — the same "fit in
// a word" discipline the teacher's wam.instruct applied to WAM's narrower
// opcode set.
type Op uint8

const (
	OpPush Op = iota
	OpCopy
	OpDrop
	OpSwap
	OpClean
	OpPopN

	OpArith // Op{ArithOp, A, B, Out}
	OpCompoundAssign

	OpJump
	OpJumpIf
	OpJumpIfNot
	OpJumpIfOrPop
	OpJumpIfNotOrPop
	OpJumpIfBranch
	OpPopAndJumpIfNot
	OpIterNext

	OpCall
	OpCallInstance
	OpCallFn
	OpLoadFn
	OpReturn
	OpReturnUnit

	OpVec
	OpTuple
	OpObject
	OpTypedObject
	OpTypedTuple
	OpVariant

	OpIndexGet
	OpIndexSet
	OpTupleIndexGet
	OpTupleIndexGetAt
	OpTupleIndexSet
	OpObjectIndexGet
	OpObjectIndexGetAt
	OpObjectIndexSet

	OpMatchSequence
	OpMatchObject
	OpIsUnit
	OpIsValue
	OpEqInteger
	OpEqByte
	OpEqCharacter
	OpEqStaticString
	OpEqBool
	OpIs
	OpIsNot

	OpAwait
	OpSelect
	OpYield
	OpYieldUnit

	OpPanic
)

// ArithOp is the sub-opcode of OpArith/OpCompoundAssign (spec §4.7).
type ArithOp uint8

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithRem
	ArithBitAnd
	ArithBitOr
	ArithBitXor
	ArithShl
	ArithShr
	ArithEq
	ArithNeq
	ArithLt
	ArithLte
	ArithGt
	ArithGte
	ArithAnd
	ArithOr
)

// TypeCheckKind names the shape MatchSequence/MatchObject/TypedTuple check
// against before destructuring (spec §4.5).
type TypeCheckKind uint8

const (
	TypeCheckVec TypeCheckKind = iota
	TypeCheckTuple
	TypeCheckObject
	TypeCheckTupleStruct
	TypeCheckStruct
	TypeCheckVariant
)

// TypeCheck pairs a shape with the RTTI hash to validate against, when the
// shape is a user-defined struct/variant.
type TypeCheck struct {
	Kind TypeCheckKind
	Hash item.Hash
}

// PanicKind is the reason carried by a Panic instruction (spec §4.7).
type PanicKind uint8

const (
	PanicNotImplemented PanicKind = iota
	PanicUnmatchedPattern
	PanicFutureCompleted
	PanicCustom
)

type PanicReason struct {
	Kind   PanicKind
	Custom string // valid when Kind == PanicCustom
}

func (r PanicReason) String() string {
	switch r.Kind {
	case PanicNotImplemented:
		return "not implemented"
	case PanicUnmatchedPattern:
		return "unmatched pattern"
	case PanicFutureCompleted:
		return "future already completed"
	case PanicCustom:
		return r.Custom
	default:
		return "panic"
	}
}

// Inst is one fixed-shape bytecode instruction. Not every field is
// meaningful for every Op; see the field comments below and the VM
// dispatch switch in internal/vm for which fields each Op reads.
type Inst struct {
	Op Op

	Arith ArithOp // OpArith, OpCompoundAssign

	A, B value.Address // operand addresses (lhs/rhs, swap a/b, copy from, iter slot, await/yield input)
	Out  value.Output  // destination for instructions that produce a value

	// Args holds the operand addresses for variadic-arity instructions
	// (OpVec/OpTuple/OpObject elements, OpCall/OpCallInstance arguments).
	// Addresses are recorded explicitly rather than assumed contiguous on
	// the stack, since a variable reference used as an element/argument
	// reuses its existing slot instead of occupying a fresh one.
	Args []value.Address

	N      int32    // generic count: len(Args), pop count, clean count, tuple index, object slot, select len
	Offset int32     // absolute instruction-index jump target, resolved at link time
	Branch int64     // JumpIfBranch comparand against the VM's branch register

	// LabelRef is the pre-link jump target: valid only inside a
	// FuncAssembly, where it names a Label allocated by the assembler.
	// Builder.AddAssembly resolves every LabelRef to an absolute Offset and
	// never leaves one unresolved in a finished Unit (spec §4.5 "Labels
	// must resolve to an offset at link time; an unresolved label is a
	// fatal compile error.").
	LabelRef Label

	Hash item.Hash // call target / struct-or-variant hash / enum-parent hash

	TypeCheck TypeCheck
	Exact     bool // MatchSequence/MatchObject: false iff a trailing `..` rest-pattern was present

	StaticSlot uint32 // static_strings/static_bytes/static_object_keys index
	PushValue  value.Value // literal operand for Push

	Panic PanicReason
}

func (i Inst) String() string {
	return fmt.Sprintf("%s", opName(i.Op))
}

func opName(op Op) string {
	names := [...]string{
		"push", "copy", "drop", "swap", "clean", "pop-n",
		"arith", "compound-assign",
		"jump", "jump-if", "jump-if-not", "jump-if-or-pop", "jump-if-not-or-pop",
		"jump-if-branch", "pop-and-jump-if-not", "iter-next",
		"call", "call-instance", "call-fn", "load-fn", "return", "return-unit",
		"vec", "tuple", "object", "typed-object", "typed-tuple", "variant",
		"index-get", "index-set", "tuple-index-get", "tuple-index-get-at",
		"tuple-index-set", "object-index-get", "object-index-get-at", "object-index-set",
		"match-sequence", "match-object", "is-unit", "is-value",
		"eq-integer", "eq-byte", "eq-character", "eq-static-string", "eq-bool",
		"is", "is-not",
		"await", "select", "yield", "yield-unit",
		"panic",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "unknown"
}
