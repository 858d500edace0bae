package unit

import (
	"fmt"

	"github.com/maloquacious/semver"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// Builder linearizes per-function Assemblies into a finished Unit (spec
// §4.6), deduplicating static pools by content hash, registering functions
// and RTTI, and resolving every jump Label to an absolute instruction
// offset. It is the "Unit builder (Linker-internal)" component; Link (in
// linker.go) performs the separate host-context verification pass.
type Builder struct {
	u    *Unit
	bag  *diag.Bag
	strs map[string]uint32
	byts map[string]uint32
	keys map[string]uint32
}

func NewBuilder(bag *diag.Bag) *Builder {
	return &Builder{
		u:    New(),
		bag:  bag,
		strs: make(map[string]uint32),
		byts: make(map[string]uint32),
		keys: make(map[string]uint32),
	}
}

// InternString dedupes a static string by content, returning a stable slot
// (spec §4.6 step 1).
func (b *Builder) InternString(s string) uint32 {
	if slot, ok := b.strs[s]; ok {
		return slot
	}
	slot := uint32(len(b.u.StaticStrings))
	b.u.StaticStrings = append(b.u.StaticStrings, s)
	b.strs[s] = slot
	return slot
}

// InternBytes dedupes static byte data by content.
func (b *Builder) InternBytes(v []byte) uint32 {
	key := string(v)
	if slot, ok := b.byts[key]; ok {
		return slot
	}
	slot := uint32(len(b.u.StaticBytes))
	b.u.StaticBytes = append(b.u.StaticBytes, v)
	b.byts[key] = slot
	return slot
}

// InternObjectKeys dedupes an object pattern's key-set by its joined
// content (order-sensitive: {x,y} and {y,x} are distinct sets here because
// ObjectIndexGetAt addresses fields by position within the interned set).
func (b *Builder) InternObjectKeys(keys []string) uint32 {
	key := fmt.Sprint(keys)
	if slot, ok := b.keys[key]; ok {
		return slot
	}
	slot := uint32(len(b.u.StaticObjectKeys))
	b.u.StaticObjectKeys = append(b.u.StaticObjectKeys, keys)
	b.keys[key] = slot
	return slot
}

// AddFunction registers a non-offset function-table entry directly (unit
// struct/tuple-struct/variant constructors have no instruction body).
func (b *Builder) AddFunction(hash item.Hash, fn UnitFn) error {
	if _, exists := b.u.Functions[hash]; exists {
		return fmt.Errorf("conflicting hash for function %#x", uint64(hash))
	}
	b.u.Functions[hash] = fn
	return nil
}

// AddAlias registers a re-export: an alias hash mapped to an existing
// function-table entry. Missing targets are fatal (spec §4.6 step 2).
func (b *Builder) AddAlias(alias, target item.Hash) error {
	fn, ok := b.u.Functions[target]
	if !ok {
		return fmt.Errorf("re-export target %#x is not registered", uint64(target))
	}
	return b.AddFunction(alias, fn)
}

// AddAssembly walks one function's pseudo-instructions, resolves its
// labels to absolute offsets, appends the result to the Unit's flat
// instruction vector, and registers the function-table entry (spec §4.6
// steps 2 and 4).
func (b *Builder) AddAssembly(fa FuncAssembly) error {
	if fa.Kind != FnOffset {
		return b.AddFunction(fa.Hash, UnitFn{
			Kind:        fa.Kind,
			Call:        fa.Call,
			Args:        fa.Args,
			Rtti:        fa.Rtti,
			VariantRtti: fa.VariantRtti,
		})
	}

	// Label -> absolute instruction index, scanning this function's own
	// instruction stream first (labels never cross function boundaries,
	// spec §4.6 step 4: "signed when forward/backward jumps straddle
	// function boundaries are forbidden").
	labelOffsets := make(map[Label]int32, fa.NumLabels)
	base := int32(len(b.u.Instructions))
	markers := int32(0)
	for i, inst := range fa.Insts {
		if inst.Op == opLabelMarker {
			labelOffsets[Label(inst.N)] = base + int32(i) - markers
			markers++
		}
	}

	offset := uint32(len(b.u.Instructions))
	for _, inst := range fa.Insts {
		if inst.Op == opLabelMarker {
			continue // markers are not real instructions
		}
		if isJump(inst.Op) {
			target, ok := labelOffsets[inst.LabelRef]
			if !ok {
				return fmt.Errorf("function %#x: unresolved label %d", uint64(fa.Hash), inst.LabelRef)
			}
			inst.Offset = target
		}
		b.u.Instructions = append(b.u.Instructions, inst)
	}

	if err := b.AddFunction(fa.Hash, UnitFn{
		Kind:   FnOffset,
		Offset: offset,
		Call:   fa.Call,
		Args:   fa.Args,
	}); err != nil {
		return err
	}

	if fa.Signature != "" {
		if b.u.Debug == nil {
			b.u.Debug = NewDebugInfo()
		}
		b.u.Debug.FunctionSignatures[fa.Hash] = fa.Signature
	}
	return nil
}

// opLabelMarker is a pseudo-opcode used only within a FuncAssembly's Insts
// slice to mark "a label is defined here"; it never appears in a finished
// Unit. N carries the Label id.
const opLabelMarker Op = 255

// LabelMarker returns the pseudo-instruction the assembler emits when it
// places a label.
func LabelMarker(l Label) Inst {
	return Inst{Op: opLabelMarker, N: int32(l)}
}

func isJump(op Op) bool {
	switch op {
	case OpJump, OpJumpIf, OpJumpIfNot, OpJumpIfOrPop, OpJumpIfNotOrPop,
		OpJumpIfBranch, OpPopAndJumpIfNot, OpIterNext:
		return true
	default:
		return false
	}
}

// AddRtti registers RTTI for a struct/enum; a hash conflict is fatal (spec
// §4.6 step 3).
func (b *Builder) AddRtti(hash item.Hash, rtti *value.Rtti) error {
	if _, exists := b.u.Rtti[hash]; exists {
		return fmt.Errorf("conflicting RTTI hash %#x", uint64(hash))
	}
	b.u.Rtti[hash] = rtti
	return nil
}

// AddVariantRtti registers RTTI for an enum variant.
func (b *Builder) AddVariantRtti(hash item.Hash, rtti *value.VariantRtti) error {
	if _, exists := b.u.VariantRtti[hash]; exists {
		return fmt.Errorf("conflicting variant RTTI hash %#x", uint64(hash))
	}
	b.u.VariantRtti[hash] = rtti
	return nil
}

// AddConstant registers a const item's evaluated value.
func (b *Builder) AddConstant(hash item.Hash, v value.ConstValue) {
	b.u.Constants[hash] = v
}

// RequireHash records a call target not resolved locally, with the span of
// the call site that required it (spec §4.6 step 5).
func (b *Builder) RequireHash(hash item.Hash, span diag.Span) {
	if _, ok := b.u.Functions[hash]; ok {
		return
	}
	if _, ok := b.u.Constants[hash]; ok {
		return
	}
	b.u.RequiredHashes[hash] = append(b.u.RequiredHashes[hash], span)
}

// SetDebugVersion stamps the Unit's DebugInfo.CompilerVersion.
func (b *Builder) SetDebugVersion(v semver.Version) {
	if b.u.Debug == nil {
		b.u.Debug = NewDebugInfo()
	}
	b.u.Debug.CompilerVersion = v
}

// Build returns the finished (but not yet link-checked) Unit.
func (b *Builder) Build() *Unit {
	return b.u
}
