package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/assemble"
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/vm"
)

func build(t *testing.T, src string) *unit.Unit {
	t.Helper()
	toks := lexer.Lex("test", src)
	var bag diag.Bag
	tree := syntax.Parse("test", toks, &bag)
	require.False(t, bag.HasErrors(), "parse errors: %v", bag.All())

	b := unit.NewBuilder(&bag)
	asm := assemble.NewAssembler(b, &bag, "test")
	require.NoError(t, asm.AssembleFile(tree))
	require.False(t, bag.HasErrors(), "assemble errors: %v", bag.All())
	return b.Build()
}

func TestArithmeticEndToEnd(t *testing.T) {
	u := build(t, "fn main() { 1 + 2 * 3 }")
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(7), n)
}

func TestStructLiteralFieldAccessEndToEnd(t *testing.T) {
	u := build(t, `
		struct Point { x, y }
		fn main() { let p = Point { x: 1, y: 2 }; p.x }
	`)
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
}

func TestIfElseTakesTrueBranch(t *testing.T) {
	u := build(t, "fn main() { if 1 < 2 { 10 } else { 20 } }")
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)
}

func TestIfElseTakesFalseBranch(t *testing.T) {
	u := build(t, "fn main() { if 2 < 1 { 10 } else { 20 } }")
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(20), n)
}

func TestWhileLoopAccumulatesToFinalValue(t *testing.T) {
	u := build(t, `
		fn main() {
			let i = 0
			let sum = 0
			while i < 5 {
				sum = sum + i
				i = i + 1
			}
			sum
		}
	`)
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(0+1+2+3+4), n)
}

func TestBreakWithValueEndsLoop(t *testing.T) {
	u := build(t, `
		fn main() {
			let i = 0
			loop {
				if i == 3 { break i * 10 }
				i = i + 1
			}
		}
	`)
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(30), n)
}

func TestTryOperatorPropagatesOkValue(t *testing.T) {
	u := build(t, `
		fn inner() { 5 }
		fn main() {
			let x = inner()?
			x
		}
	`)
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(5), n)
}

func TestCallWithArgumentsThatAreVariables(t *testing.T) {
	// regression guard for the Inst.Args explicit-addressing fix: `b` is an
	// existing bound variable, not a fresh stack slot, when passed to add().
	u := build(t, `
		fn add(a, b) { a + b }
		fn main() {
			let x = 4
			let b = 9
			add(x, b)
		}
	`)
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(13), n)
}

func TestGeneratorYieldsThenCompletes(t *testing.T) {
	u := build(t, `
		fn counter() {
			yield 1
			yield 2
			3
		}
	`)
	// counter's body contains yield sites, so classifyCallConv (spec §4.8's
	// Layer classification) assigns it CallGenerator without any keyword.
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("counter"), nil)
	require.NoError(t, err)
	gen, ok := result.AsGenerator()
	require.True(t, ok, "counter() must return a Generator value")

	v1, done1, err := gen.Next()
	require.NoError(t, err)
	require.False(t, done1)
	n1, _ := v1.AsInteger()
	assert.Equal(t, int64(1), n1)

	v2, done2, err := gen.Next()
	require.NoError(t, err)
	require.False(t, done2)
	n2, _ := v2.AsInteger()
	assert.Equal(t, int64(2), n2)

	v3, done3, err := gen.Next()
	require.NoError(t, err)
	require.True(t, done3)
	n3, _ := v3.AsInteger()
	assert.Equal(t, int64(3), n3)
}

func TestAsyncBlockAwaitResolvesImmediately(t *testing.T) {
	// main's own body awaits an inner async block, so classifyCallConv
	// assigns main itself CallAsync (spec §4.8's Layer classification is
	// purely structural, not keyword-driven — see spec.md's example 3).
	u := build(t, "fn main() { let v = async { 2 + 2 }.await; v + 1 }")
	m := vm.New(u, nil)
	result, err := m.Call(assemble.FnHash("main"), nil)
	require.NoError(t, err)
	fut, ok := result.AsFuture()
	require.True(t, ok, "a function whose body awaits must itself return a Future")
	v, ready, err := fut.Poll()
	require.NoError(t, err)
	assert.True(t, ready)
	n, _ := v.AsInteger()
	assert.Equal(t, int64(5), n)
}

func TestIndexOutOfBoundsIsAVmError(t *testing.T) {
	u := build(t, "fn main() { let v = [1, 2, 3]; v[10] }")
	m := vm.New(u, nil)
	_, err := m.Call(assemble.FnHash("main"), nil)
	require.Error(t, err)
}
