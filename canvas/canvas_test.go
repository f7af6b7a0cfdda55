package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pubky-canvas/indexer/store"
)

func TestDeltaNewCell(t *testing.T) {
	d := Delta(nil, "u1", 5, 1000, 7, 3)
	assert.True(t, d.Materialize)
	assert.False(t, d.CellExisted)
	assert.Equal(t, 5, d.Color)
}

func TestDeltaOverwriteByOther(t *testing.T) {
	existing := &store.CanvasCell{
		X: 0, Y: 0, Color: 5, FirstUserPK: "u1", LastUserPK: "u1", LastPlacedAt: 1000,
	}
	d := Delta(existing, "u2", 7, 1001, 0, 0)
	assert.True(t, d.Materialize)
	assert.True(t, d.IncrementOverwrittenDistinct)
	assert.Equal(t, 1, d.OverwrittenByOtherCount)

	existing.OverwrittenByOtherCount = 1
	existing.LastPlacedAt = 1001
	d2 := Delta(existing, "u2", 8, 1002, 0, 0)
	assert.True(t, d2.Materialize)
	assert.False(t, d2.IncrementOverwrittenDistinct)
	assert.Equal(t, 2, d2.OverwrittenByOtherCount)
}

func TestDeltaHistoricalEventNotMaterialized(t *testing.T) {
	existing := &store.CanvasCell{
		X: 0, Y: 0, Color: 5, FirstUserPK: "u1", LastUserPK: "u1", LastPlacedAt: 1000,
	}
	d := Delta(existing, "u2", 9, 500, 0, 0)
	assert.False(t, d.Materialize)
}

func TestShouldResize(t *testing.T) {
	meta := store.CanvasMeta{Size: 16, TotalPixels: 256, FilledCount: 256, OverwrittenDistinctCount: 128}
	assert.True(t, ShouldResize(meta))

	meta.OverwrittenDistinctCount = 127
	assert.False(t, ShouldResize(meta))

	meta.FilledCount = 255
	meta.OverwrittenDistinctCount = 200
	assert.False(t, ShouldResize(meta))
}
