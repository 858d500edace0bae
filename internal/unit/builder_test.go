package unit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/unit"
)

func TestStaticPoolDedup(t *testing.T) {
	b := unit.NewBuilder(&diag.Bag{})
	a := b.InternString("hello")
	c := b.InternString("world")
	d := b.InternString("hello")
	assert.Equal(t, a, d)
	assert.NotEqual(t, a, c)

	u := b.Build()
	s, ok := u.StaticString(a)
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestAddAssemblyResolvesLabels(t *testing.T) {
	b := unit.NewBuilder(&diag.Bag{})
	fnHash := item.Hash(1)

	var numLabels int32
	done := unit.NewLabel(&numLabels)

	fa := unit.FuncAssembly{
		Hash: fnHash,
		Call: unit.CallImmediate,
		Args: 0,
		Insts: []unit.Inst{
			{Op: unit.OpJump, LabelRef: done},
			{Op: unit.OpPanic, Panic: unit.PanicReason{Kind: unit.PanicNotImplemented}},
			unit.LabelMarker(done),
			{Op: unit.OpReturnUnit},
		},
		NumLabels: numLabels,
	}

	require.NoError(t, b.AddAssembly(fa))
	u := b.Build()

	fn, ok := u.Function(fnHash)
	require.True(t, ok)
	require.Equal(t, unit.FnOffset, fn.Kind)

	jump := u.Instructions[fn.Offset]
	assert.Equal(t, unit.OpJump, jump.Op)
	// The jump must resolve past the Panic instruction straight to
	// ReturnUnit, skipping the label marker which was elided.
	assert.Equal(t, int32(fn.Offset)+2, jump.Offset)
	assert.Equal(t, unit.OpReturnUnit, u.Instructions[jump.Offset].Op)
}

func TestAddFunctionConflictIsFatal(t *testing.T) {
	b := unit.NewBuilder(&diag.Bag{})
	h := item.Hash(42)
	require.NoError(t, b.AddFunction(h, unit.UnitFn{Kind: unit.FnOffset}))
	assert.Error(t, b.AddFunction(h, unit.UnitFn{Kind: unit.FnOffset}))
}

func TestLinkReportsMissingFunctionWithAllSpans(t *testing.T) {
	u := unit.New()
	span1 := diag.Span{Source: "a", Start: 1, End: 2}
	span2 := diag.Span{Source: "a", Start: 5, End: 6}
	missing := item.Hash(7)
	u.RequiredHashes[missing] = []diag.Span{span1, span2}

	var bag diag.Bag
	unit.Link(u, nil, &bag)

	require.True(t, bag.HasErrors())
	all := bag.All()
	require.Len(t, all, 1)
	assert.Equal(t, diag.KindMissingFunction, all[0].Kind)
	assert.Equal(t, span1, all[0].Span)
	assert.Equal(t, []diag.Span{span2}, all[0].Related)
}

type fakeHost struct{ known map[item.Hash]bool }

func (f fakeHost) HasFunction(h item.Hash) bool { return f.known[h] }

func TestLinkSucceedsWhenHostProvidesHash(t *testing.T) {
	u := unit.New()
	h := item.Hash(9)
	u.RequiredHashes[h] = []diag.Span{{Source: "a"}}

	var bag diag.Bag
	unit.Link(u, fakeHost{known: map[item.Hash]bool{h: true}}, &bag)
	assert.False(t, bag.HasErrors())
}
