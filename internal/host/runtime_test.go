package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/host"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
	"github.com/runelang/rune/internal/vm"
)

// unitCallingHost builds a minimal Unit whose single function `main` does
// nothing but call a host function by hash and return its result — enough
// to exercise unit.Link and vm.Call against a RuntimeContext without going
// through the full compiler pipeline.
func unitCallingHost(t *testing.T, hostHash item.Hash) *unit.Unit {
	t.Helper()
	b := unit.NewBuilder(&diag.Bag{})
	b.RequireHash(hostHash, diag.Span{Source: "test"})

	require.NoError(t, b.AddAssembly(unit.FuncAssembly{
		Hash: item.Hash(1),
		Kind: unit.FnOffset,
		Call: unit.CallImmediate,
		Args: 0,
		Insts: []unit.Inst{
			{Op: unit.OpCall, Hash: hostHash, Args: nil, Out: value.OutputTo(0)},
			{Op: unit.OpReturn, A: 0},
		},
	}))
	return b.Build()
}

func TestVmCallReachesARegisteredHostFunction(t *testing.T) {
	m := host.NewModule(item.Item{{Kind: item.KindCrate, Name: "env"}})
	m.Function("answer", func(args []value.Value) (value.Value, error) {
		return value.Integer(42), nil
	})
	rc, err := host.NewContext().Register(m).Build()
	require.NoError(t, err)

	hostHash := item.TypeHash(item.Item{{Kind: item.KindCrate, Name: "env"}}.JoinNamed("answer"))
	u := unitCallingHost(t, hostHash)

	var bag diag.Bag
	unit.Link(u, rc, &bag)
	require.False(t, bag.HasErrors())

	m2 := vm.New(u, rc)
	result, err := m2.Call(item.Hash(1), nil)
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
}

func TestLinkReportsMissingFunctionForAnUnregisteredHostCall(t *testing.T) {
	rc, err := host.NewContext().Build()
	require.NoError(t, err)

	u := unitCallingHost(t, item.Hash(0xdeadbeef))

	var bag diag.Bag
	unit.Link(u, rc, &bag)
	require.True(t, bag.HasErrors())

	found := false
	for _, d := range bag.All() {
		if d.Kind == diag.KindMissingFunction {
			found = true
		}
	}
	assert.True(t, found, "expected a MissingFunction diagnostic")
}
