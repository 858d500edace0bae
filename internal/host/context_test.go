package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/host"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

func crate(name string) item.Item {
	return item.Item{{Kind: item.KindCrate, Name: name}}
}

func TestModuleFunctionIsReachableThroughRuntimeContext(t *testing.T) {
	m := host.NewModule(crate("mathx"))
	m.Function("double", func(args []value.Value) (value.Value, error) {
		n, _ := args[0].AsInteger()
		return value.Integer(n * 2), nil
	})

	rc, err := host.NewContext().Register(m).Build()
	require.NoError(t, err)

	h := item.TypeHash(crate("mathx").JoinNamed("double"))
	require.True(t, rc.HasFunction(h))

	result, err := rc.CallHost(h, []value.Value{value.Integer(21)})
	require.NoError(t, err)
	n, ok := result.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
}

func TestAssociatedFunctionIsKeyedByReceiverTypeHash(t *testing.T) {
	m := host.NewModule(crate("geo"))
	rtti := m.Type("Point", []string{"x", "y"})
	m.AssociatedFunction(rtti.Hash, "sum", func(args []value.Value) (value.Value, error) {
		self, _ := args[0].AsStruct()
		x, _ := self.Fields[0].AsInteger()
		y, _ := self.Fields[1].AsInteger()
		return value.Integer(x + y), nil
	})

	rc, err := host.NewContext().Register(m).Build()
	require.NoError(t, err)

	methodHash := item.Associated(rtti.Hash, "sum")
	require.True(t, rc.HasFunction(methodHash))

	self := value.Struct(rtti, []value.Value{value.Integer(3), value.Integer(4)})
	result, err := rc.CallHost(methodHash, []value.Value{self})
	require.NoError(t, err)
	n, _ := result.AsInteger()
	assert.Equal(t, int64(7), n)
}

func TestConstantIsRegisteredAndLookedUpByHash(t *testing.T) {
	m := host.NewModule(crate("limits"))
	m.Constant("MAX", value.ConstInteger(100))

	rc, err := host.NewContext().Register(m).Build()
	require.NoError(t, err)

	h := item.TypeHash(crate("limits").JoinNamed("MAX"))
	c, ok := rc.Constant(h)
	require.True(t, ok)
	n, ok := c.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(100), n)
}

func TestBuildRejectsDuplicateRegistrationAcrossModules(t *testing.T) {
	a := host.NewModule(crate("dup"))
	a.Function("f", func(args []value.Value) (value.Value, error) { return value.Unit(), nil })
	b := host.NewModule(crate("dup"))
	b.Function("f", func(args []value.Value) (value.Value, error) { return value.Unit(), nil })

	_, err := host.NewContext().Register(a).Register(b).Build()
	require.Error(t, err)
}

func TestMissingHostFunctionReportsAnError(t *testing.T) {
	rc, err := host.NewContext().Build()
	require.NoError(t, err)

	_, err = rc.CallHost(item.Hash(12345), nil)
	require.Error(t, err)
}
