package rune_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rune "github.com/runelang/rune"
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// rootItem matches internal/assemble.RootCrate so a host-registered free
// function's path hash agrees with the hash an unqualified call site
// computes for the same name.
func rootItem() item.Item {
	return item.Item{{Kind: item.KindCrate, Name: "root"}}
}

func TestCompileAndRunReturnsTheTailExpression(t *testing.T) {
	u, err := rune.Compile("main.rune", `pub fn main() { 1 + 2 }`, nil)
	require.NoError(t, err)

	m := rune.NewVm(nil, u)
	result, err := m.Call("main")
	require.NoError(t, err)

	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestCallingAnUnregisteredHostFunctionFailsToLink(t *testing.T) {
	rc, err := rune.NewContext().Build()
	require.NoError(t, err)

	_, err = rune.Compile("main.rune", `pub fn main() { missing(1) }`, rc)
	require.Error(t, err)

	var compileErr *rune.CompileError
	require.ErrorAs(t, err, &compileErr)

	found := false
	for _, d := range compileErr.Diagnostics {
		if d.Kind == diag.KindMissingFunction {
			found = true
		}
	}
	assert.True(t, found, "expected a MissingFunction diagnostic")
}

func TestVmCallReachesAHostRegisteredFunction(t *testing.T) {
	mod := rune.NewModule(rootItem())
	mod.Function("double", func(args []value.Value) (value.Value, error) {
		n, _ := args[0].AsInteger()
		return value.Integer(n * 2), nil
	})
	rc, err := rune.NewContext().Register(mod).Build()
	require.NoError(t, err)

	u, err := rune.Compile("main.rune", `pub fn main() { double(21) }`, rc)
	require.NoError(t, err)

	m := rune.NewVm(rc, u)
	result, err := m.Call("main")
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
}
