package assemble_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/assemble"
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/unit"
)

func build(t *testing.T, src string) (*unit.Unit, *diag.Bag) {
	t.Helper()
	toks := lexer.Lex("test", src)
	var bag diag.Bag
	tree := syntax.Parse("test", toks, &bag)
	require.False(t, bag.HasErrors(), "parse errors: %v", bag.All())

	b := unit.NewBuilder(&bag)
	asm := assemble.NewAssembler(b, &bag, "test")
	require.NoError(t, asm.AssembleFile(tree))
	return b.Build(), &bag
}

func countOp(u *unit.Unit, op unit.Op) int {
	n := 0
	for _, inst := range u.Instructions {
		if inst.Op == op {
			n++
		}
	}
	return n
}

func mainFn(t *testing.T, u *unit.Unit) unit.UnitFn {
	t.Helper()
	fn, ok := u.Function(assemble.FnHash("main"))
	require.True(t, ok, "no main function registered")
	return fn
}

func TestArithmeticFnCompilesToArithSequence(t *testing.T) {
	u, _ := build(t, "fn main() { 1 + 2 * 3 }")
	fn := mainFn(t, u)
	assert.Equal(t, unit.CallImmediate, fn.Call)
	assert.Equal(t, 2, countOp(u, unit.OpArith))
	assert.Equal(t, 1, countOp(u, unit.OpReturn))
}

func TestStructLiteralAndFieldAccessCompileToObjectOps(t *testing.T) {
	u, _ := build(t, `
		struct Point { x, y }
		fn main() { let p = Point { x: 1, y: 2 }; p.x }
	`)
	assert.Equal(t, 1, countOp(u, unit.OpTypedObject))
	assert.Equal(t, 1, countOp(u, unit.OpObjectIndexGet))
}

func TestIfElseResolvesJumpLabels(t *testing.T) {
	u, _ := build(t, "fn main() { if 1 < 2 { 10 } else { 20 } }")
	fn := mainFn(t, u)
	foundJumpIfNot, foundJump := false, false
	for i := int(fn.Offset); i < len(u.Instructions); i++ {
		inst := u.Instructions[i]
		switch inst.Op {
		case unit.OpJumpIfNot:
			foundJumpIfNot = true
			assert.Greater(t, inst.Offset, int32(i), "jump-if-not must target a later instruction")
		case unit.OpJump:
			foundJump = true
			assert.GreaterOrEqual(t, inst.Offset, int32(0))
		}
		if inst.Op == unit.OpReturn || inst.Op == unit.OpReturnUnit {
			break
		}
	}
	assert.True(t, foundJumpIfNot)
	assert.True(t, foundJump)
}

func TestWhileLoopCompilesToBackwardJump(t *testing.T) {
	u, _ := build(t, "fn main() { let i = 0; while i < 3 { i = i + 1 } }")
	backward := false
	for i, inst := range u.Instructions {
		if inst.Op == unit.OpJump && int(inst.Offset) <= i {
			backward = true
		}
	}
	assert.True(t, backward, "while loop must emit a backward jump to its condition")
	assert.GreaterOrEqual(t, countOp(u, unit.OpArith), 2) // the `<` test and the `+ 1` step
}

func TestForRangeCompilesToIterNextLoop(t *testing.T) {
	u, _ := build(t, "fn main() { for i in 0..5 { i } }")
	assert.Equal(t, 1, countOp(u, unit.OpIterNext)) // one IterNext per pass, exits when exhausted
	backward := false
	for i, inst := range u.Instructions {
		if inst.Op == unit.OpJump && int(inst.Offset) <= i {
			backward = true
		}
	}
	assert.True(t, backward)
}

func TestBreakWithValueStoresIntoLoopResultSlot(t *testing.T) {
	u, _ := build(t, "fn main() { loop { break 42 } }")
	fn := mainFn(t, u)
	_ = fn
	foundPush42 := false
	for _, inst := range u.Instructions {
		if inst.Op == unit.OpPush {
			if i, ok := inst.PushValue.AsInteger(); ok && i == 42 {
				foundPush42 = true
			}
		}
	}
	assert.True(t, foundPush42, "break value must be pushed as a literal")
}

func TestTryOperatorPropagatesErr(t *testing.T) {
	u, _ := build(t, "fn risky(x) { x? }")
	assert.Equal(t, 1, countOp(u, unit.OpIsValue))
	assert.GreaterOrEqual(t, countOp(u, unit.OpReturn), 1)
}

func TestCallArgumentsAreRecordedExplicitly(t *testing.T) {
	u, _ := build(t, "fn add(a, b) { a + b } fn main() { add(1, 2) }")
	foundCall := false
	for _, inst := range u.Instructions {
		if inst.Op == unit.OpCall && inst.Hash == assemble.FnHash("add") {
			foundCall = true
			require.Len(t, inst.Args, 2)
		}
	}
	assert.True(t, foundCall)
}

func TestMatchWithWildcardProducesNoPanicForExhaustiveArms(t *testing.T) {
	u, _ := build(t, `
		fn classify(n) {
			match n {
				0 => "zero",
				_ => "other",
			}
		}
	`)
	assert.Equal(t, 0, countOp(u, unit.OpPanic))
}

func TestMatchWithoutWildcardEmitsUnmatchedPanicGuard(t *testing.T) {
	u, _ := build(t, `
		fn classify(n) {
			match n {
				0 => "zero",
			}
		}
	`)
	assert.Equal(t, 1, countOp(u, unit.OpPanic))
}
