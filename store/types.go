package store

import "time"

// User is a registered homeserver to watch.
type User struct {
	PublicKey  string
	Homeserver string
	Cursor     string
	CreatedAt  time.Time
}

// PixelEvent is one accepted, append-only placement.
type PixelEvent struct {
	ID        string
	UserPK    string
	X         int
	Y         int
	Color     int
	PlacedAt  int64 // microseconds since Unix epoch
}

// CanvasCell is the materialized state of one grid position.
type CanvasCell struct {
	X                       int
	Y                       int
	Color                   int
	LastUserPK              string
	LastPlacedAt            int64
	FirstUserPK             string
	OverwrittenByOtherCount int
}

// CanvasMeta is the canvas-wide singleton metadata row.
type CanvasMeta struct {
	Size                     int
	TotalPixels              int
	FilledCount              int
	OverwrittenDistinctCount int
}

// CanvasDelta describes how accepting an event changes (or does not change)
// the materialized cell at (X, Y). It is computed by the canvas engine and
// applied atomically by AcceptEvent.
type CanvasDelta struct {
	X, Y int

	// Materialize is false when the event is historical (placed_at does not
	// exceed the cell's current last_placed_at): the event is still logged
	// but the cell is left untouched.
	Materialize bool

	Color      int
	UserPK     string
	PlacedAt   int64

	// CellExisted reports whether a cell already existed at (X, Y) prior to
	// this event, so AcceptEvent knows whether to insert or update.
	CellExisted bool

	// FirstUserPK is the existing cell's first painter (used to decide the
	// overwritten-by-other increment); empty when CellExisted is false.
	FirstUserPK string

	// OverwrittenByOtherCount is the value the cell's counter should hold
	// after this event is applied (only meaningful when Materialize is
	// true and CellExisted is true).
	OverwrittenByOtherCount int

	// IncrementOverwrittenDistinct is true when this acceptance is the first
	// time the cell is painted by someone other than its first painter;
	// canvas_meta.overwritten_distinct_count should be bumped once.
	IncrementOverwrittenDistinct bool
}

// AcceptOutcome is the result of an AcceptEvent call.
type AcceptOutcome int

const (
	Accepted AcceptOutcome = iota
	Duplicate
)
