package unit

import (
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// Label identifies an unresolved jump target within one FuncAssembly.
// Labels are allocated per-assembly with an incrementing id (spec §4.5)
// and backpatched to an absolute instruction offset by Builder.AddAssembly.
type Label int32

// FuncAssembly is the Assembler's output for a single function (spec
// §4.5/§4.6): an ordered list of pseudo-instructions (jumps reference
// Labels, not yet resolved offsets) plus the label count needed to size the
// backpatch table.
type FuncAssembly struct {
	Hash   item.Hash
	Call   CallConv
	Args   uint32

	// Kind/Rtti/VariantRtti let a FuncAssembly also describe a
	// constructor function (unit/tuple struct or variant) that has no
	// instruction body of its own — the Builder registers these directly
	// without walking Insts.
	Kind        UnitFnKind
	Rtti        *value.Rtti
	VariantRtti *value.VariantRtti

	Insts     []Inst
	NumLabels int32

	Signature string // for DebugInfo.FunctionSignatures
}

// NewLabel allocates the next label id for a FuncAssembly under
// construction (mirrors the builder-side counter the assembler drives).
func NewLabel(n *int32) Label {
	l := Label(*n)
	*n++
	return l
}
