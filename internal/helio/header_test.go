package helio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_OrderAndReplace(t *testing.T) {
	h := NewHeader()
	h.Set("B", 1, "first")
	h.Set("A", "x", "second")
	h.Set("B", 2, "replaced")

	require.Equal(t, 2, h.Len())
	entries := h.Entries()
	assert.Equal(t, HeaderEntry{Key: "B", Value: 2, Comment: "replaced"}, entries[0])
	assert.Equal(t, "A", entries[1].Key)

	entries[0].Value = 99
	got, ok := h.Get("B")
	require.True(t, ok)
	assert.Equal(t, 2, got.Value, "Entries returns a copy")

	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestDatacube_SetSlice(t *testing.T) {
	c := NewDatacube(2, Shape{Rows: 2, Cols: 3})
	g := NewGrid(2, 3)
	for k := range g.Data {
		g.Data[k] = float64(k)
	}
	require.NoError(t, c.SetSlice(1, g))
	assert.Equal(t, 5.0, c.At(1, 1, 2))
	assert.Equal(t, make([]float64, 6), c.Slice(0))

	assert.Error(t, c.SetSlice(2, g))
	assert.Error(t, c.SetSlice(0, NewGrid(3, 2)))
}
