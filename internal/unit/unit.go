package unit

import (
	"github.com/maloquacious/semver"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// CallConv is one of the four call conventions of spec §4.8.
type CallConv uint8

const (
	CallImmediate CallConv = iota
	CallAsync
	CallGenerator
	CallStream
)

func (c CallConv) String() string {
	switch c {
	case CallAsync:
		return "async"
	case CallGenerator:
		return "generator"
	case CallStream:
		return "stream"
	default:
		return "immediate"
	}
}

// UnitFnKind discriminates the function-table entry shapes of spec §3.6.
type UnitFnKind uint8

const (
	FnOffset UnitFnKind = iota
	FnUnitStruct
	FnTupleStruct
	FnUnitVariant
	FnTupleVariant
)

// UnitFn is one entry of the Unit's function table, keyed by Hash.
type UnitFn struct {
	Kind   UnitFnKind
	Offset uint32 // valid for FnOffset: instruction index of the function body
	Call   CallConv
	Args   uint32

	Rtti        *value.Rtti        // FnUnitStruct / FnTupleStruct
	VariantRtti *value.VariantRtti // FnUnitVariant / FnTupleVariant
}

// DebugInfo carries optional span/signature information not needed for
// execution but used for backtraces and tooling (spec §3.6).
type DebugInfo struct {
	// CompilerVersion stamps the Rune build that produced the Unit. The
	// artifact's wire format itself is intentionally left unversioned
	// (spec §6); this is informational only, recovered from
	// original_source's DebugInfo::functions. Stored as a semver.Version
	// (github.com/maloquacious/semver, grounded on playbymail-ottomap's
	// main.go) rather than a bare string so callers get a real Major/Minor/
	// Patch/Build-structured type instead of parsing one back out.
	CompilerVersion semver.Version

	// FunctionSignatures gives a human-readable signature per function
	// hash (spec §12 of SPEC_FULL.md); the module records it but formats
	// no backtraces from it.
	FunctionSignatures map[item.Hash]string

	// Spans maps an instruction index to the source span that produced
	// it. Sparse: not every instruction need be present.
	Spans map[int]diag.Span

	// Labels names label ids for pretty-printing backpatched jumps.
	Labels map[int32]string
}

func NewDebugInfo() *DebugInfo {
	return &DebugInfo{
		FunctionSignatures: make(map[item.Hash]string),
		Spans:              make(map[int]diag.Span),
		Labels:             make(map[int32]string),
	}
}

// Unit is the immutable output of compilation (spec §3.6). Every hash
// referenced from Instructions must exist either in Functions/Constants or
// be satisfied by the host context at link time (checked by Link).
type Unit struct {
	Instructions []Inst

	Functions map[item.Hash]UnitFn

	StaticStrings    []string
	StaticBytes      [][]byte
	StaticObjectKeys [][]string

	Rtti        map[item.Hash]*value.Rtti
	VariantRtti map[item.Hash]*value.VariantRtti

	Constants map[item.Hash]value.ConstValue

	// RequiredHashes are call targets not resolved locally; Link verifies
	// each exists in Functions or the supplied host context (spec §4.6
	// step 5, §6 end-to-end scenario 6).
	RequiredHashes map[item.Hash][]diag.Span

	Debug *DebugInfo
}

func New() *Unit {
	return &Unit{
		Functions:        make(map[item.Hash]UnitFn),
		Rtti:             make(map[item.Hash]*value.Rtti),
		VariantRtti:      make(map[item.Hash]*value.VariantRtti),
		Constants:        make(map[item.Hash]value.ConstValue),
		RequiredHashes:   make(map[item.Hash][]diag.Span),
		StaticObjectKeys: nil,
	}
}

// Function looks up a function-table entry by hash.
func (u *Unit) Function(h item.Hash) (UnitFn, bool) {
	f, ok := u.Functions[h]
	return f, ok
}

// StaticString returns the static string interned at slot.
func (u *Unit) StaticString(slot uint32) (string, bool) {
	if int(slot) >= len(u.StaticStrings) {
		return "", false
	}
	return u.StaticStrings[slot], true
}

// StaticObjectKeySet returns the key-set interned at slot.
func (u *Unit) StaticObjectKeySet(slot uint32) ([]string, bool) {
	if int(slot) >= len(u.StaticObjectKeys) {
		return nil, false
	}
	return u.StaticObjectKeys[slot], true
}
