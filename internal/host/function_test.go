package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/host"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

func TestFunctionSatisfiesTheValueFunctionInterface(t *testing.T) {
	h := item.Hash(7)
	fn := host.NewFunction(h, func(args []value.Value) (value.Value, error) {
		return value.Integer(int64(len(args))), nil
	})

	v := value.FromFunction(fn)
	asFn, ok := v.AsFunction()
	require.True(t, ok)
	assert.Equal(t, h, asFn.Hash())

	result, err := asFn.Call([]value.Value{value.Unit(), value.Unit()})
	require.NoError(t, err)
	n, _ := result.AsInteger()
	assert.Equal(t, int64(2), n)
}

func TestSyncFunctionAcceptsConstRepresentableCaptures(t *testing.T) {
	captures := []value.Value{value.Integer(10), value.String("suffix")}
	sf, err := host.NewSyncFunction(item.Hash(1), captures, func(captures, args []value.Value) (value.Value, error) {
		base, _ := captures[0].AsInteger()
		return value.Integer(base), nil
	})
	require.NoError(t, err)

	result, err := sf.Call(nil)
	require.NoError(t, err)
	n, _ := result.AsInteger()
	assert.Equal(t, int64(10), n)
}

func TestSyncFunctionRejectsAFunctionValuedCapture(t *testing.T) {
	inner := host.NewFunction(item.Hash(2), func(args []value.Value) (value.Value, error) { return value.Unit(), nil })
	captures := []value.Value{value.FromFunction(inner)}

	_, err := host.NewSyncFunction(item.Hash(3), captures, func(captures, args []value.Value) (value.Value, error) {
		return value.Unit(), nil
	})
	require.Error(t, err)
}

func TestSyncFunctionRejectsANonSyncCaptureNestedInsideAVec(t *testing.T) {
	inner := host.NewFunction(item.Hash(4), func(args []value.Value) (value.Value, error) { return value.Unit(), nil })
	captures := []value.Value{value.Vec([]value.Value{value.Integer(1), value.FromFunction(inner)})}

	_, err := host.NewSyncFunction(item.Hash(5), captures, func(captures, args []value.Value) (value.Value, error) {
		return value.Unit(), nil
	})
	require.Error(t, err)
}
