// Package canvas implements the materialized-state update rules for an
// accepted pixel event: how a cell changes, and when the whole grid should
// resize. The functions here are pure; the store applies their result inside
// a transaction.
package canvas

import "github.com/pubky-canvas/indexer/store"

// Delta computes how accepting an event at (x, y) should change the
// materialized cell, given the cell's current state (nil if the cell does
// not yet exist).
func Delta(existing *store.CanvasCell, userPK string, color int, placedAt int64, x, y int) store.CanvasDelta {
	if existing == nil {
		return store.CanvasDelta{
			X:           x,
			Y:           y,
			Materialize: true,
			Color:       color,
			UserPK:      userPK,
			PlacedAt:    placedAt,
			CellExisted: false,
		}
	}

	if placedAt <= existing.LastPlacedAt {
		// Historical event: logged, but the materialized cell is untouched.
		return store.CanvasDelta{
			X:           x,
			Y:           y,
			Materialize: false,
			CellExisted: true,
			FirstUserPK: existing.FirstUserPK,
		}
	}

	newCount := existing.OverwrittenByOtherCount
	incrementDistinct := false
	if userPK != existing.FirstUserPK {
		if newCount == 0 {
			incrementDistinct = true
		}
		newCount++
	}

	return store.CanvasDelta{
		X:                            x,
		Y:                            y,
		Materialize:                  true,
		Color:                        color,
		UserPK:                       userPK,
		PlacedAt:                     placedAt,
		CellExisted:                  true,
		FirstUserPK:                  existing.FirstUserPK,
		OverwrittenByOtherCount:      newCount,
		IncrementOverwrittenDistinct: incrementDistinct,
	}
}

// ShouldResize reports whether the end-of-tick resize trigger fires: the
// canvas is completely filled and at least half its cells have been
// overwritten by someone other than their first painter.
func ShouldResize(meta store.CanvasMeta) bool {
	if meta.TotalPixels == 0 {
		return false
	}
	return meta.FilledCount == meta.TotalPixels && meta.OverwrittenDistinctCount >= meta.TotalPixels/2
}
