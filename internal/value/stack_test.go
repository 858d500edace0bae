package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/value"
)

func TestStackPushAndAddressing(t *testing.T) {
	s := value.NewStack()
	a0 := s.Push(value.Integer(1))
	a1 := s.Push(value.Integer(2))
	assert.Equal(t, value.Address(0), a0)
	assert.Equal(t, value.Address(1), a1)

	v, err := s.At(a1)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(2), i)
}

func TestStackFrameIsolation(t *testing.T) {
	s := value.NewStack()
	s.Push(value.Integer(100)) // caller-level value

	callerTop := s.PushFrame([]value.Value{value.Integer(1), value.Integer(2)})
	assert.Equal(t, 2, s.Len())

	v, err := s.At(0)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(1), i)

	s.PopFrame(callerTop)
	assert.Equal(t, 1, s.Len())
}

func TestStackCleanPreservesTop(t *testing.T) {
	s := value.NewStack()
	s.Push(value.Integer(1))
	s.Push(value.Integer(2))
	s.Push(value.Integer(3)) // the value to preserve

	require.NoError(t, s.Clean(2))
	assert.Equal(t, 1, s.Len())
	v, err := s.At(0)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(3), i)
}

func TestStackSwapTop(t *testing.T) {
	s := value.NewStack()
	s.Push(value.Integer(9)) // caller value, address 0 relative to caller top
	callerTop := s.PushFrame(nil)
	s.Push(value.Integer(42)) // callee's return value

	require.NoError(t, s.SwapTop(callerTop, value.OutputTo(0), 1))
	v, err := s.At(0)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(42), i)
	assert.Equal(t, 1, s.Len())
}
