package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/value"
)

func TestAccessDiscipline(t *testing.T) {
	v := value.String("hello")

	g1, err := v.BorrowRef()
	require.NoError(t, err)
	g2, err := v.BorrowRef()
	require.NoError(t, err)

	_, err = v.BorrowMut()
	assert.Error(t, err)

	g1.Release()
	g2.Release()

	m, err := v.BorrowMut()
	require.NoError(t, err)
	_, err = v.BorrowRef()
	assert.Error(t, err)
	m.Release()

	require.NoError(t, v.Take())
	_, err = v.BorrowRef()
	assert.Error(t, err)
	_, err = v.BorrowMut()
	assert.Error(t, err)
}

func TestTrivialValuesHaveNoSharedState(t *testing.T) {
	for _, v := range []value.Value{
		value.Unit(), value.Bool(true), value.Byte(1), value.Char('a'), value.Integer(1), value.Float(1),
	} {
		g, err := v.BorrowRef()
		require.NoError(t, err)
		g.Release()
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, value.Equal(value.Integer(3), value.Integer(3)))
	assert.False(t, value.Equal(value.Integer(3), value.Integer(4)))
	assert.False(t, value.Equal(value.Integer(3), value.Float(3)))
	assert.True(t, value.Equal(
		value.Vec([]value.Value{value.Integer(1), value.Integer(2)}),
		value.Vec([]value.Value{value.Integer(1), value.Integer(2)}),
	))
	assert.True(t, value.Equal(value.Some(value.Integer(1)), value.Some(value.Integer(1))))
	assert.False(t, value.Equal(value.Some(value.Integer(1)), value.None()))
}

func TestObjectOrderPreserved(t *testing.T) {
	o := value.NewObject()
	o.Set("y", value.Integer(2))
	o.Set("x", value.Integer(1))
	assert.Equal(t, []string{"y", "x"}, o.Keys())
	assert.True(t, o.ExactKeys([]string{"y", "x"}))
	assert.False(t, o.ExactKeys([]string{"y"}))
	assert.True(t, o.HasKeys([]string{"x"}))
}
