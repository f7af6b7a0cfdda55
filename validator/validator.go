// Package validator implements the stateless per-event checks applied to
// every candidate pixel placement before it reaches the credit engine.
package validator

import (
	"time"

	"github.com/pubky-canvas/indexer/palette"
)

// Result classifies the outcome of validating one candidate event.
type Result int

const (
	Valid Result = iota
	BadPayload
	OutOfBounds
	BadColor
	Future
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case BadPayload:
		return "bad_payload"
	case OutOfBounds:
		return "out_of_bounds"
	case BadColor:
		return "bad_color"
	case Future:
		return "future"
	default:
		return "unknown"
	}
}

// FutureTolerance is the clock-skew allowance for placed_at (spec I7).
const FutureTolerance = 120 * time.Second

// Candidate is the parsed event to validate.
type Candidate struct {
	X, Y, Color int
	PlacedAt    int64 // microseconds since epoch, decoded from the id
}

// Validate applies the bounds, palette, and future-timestamp checks.
// canvasSize is the CanvasMeta size in effect at validation time; nowMicros
// is the current wall-clock time in microseconds since epoch.
func Validate(c Candidate, canvasSize int, nowMicros int64) Result {
	if !palette.Valid(c.Color) {
		return BadColor
	}
	if c.X < 0 || c.Y < 0 || c.X >= canvasSize || c.Y >= canvasSize {
		return OutOfBounds
	}
	if c.PlacedAt > nowMicros+FutureTolerance.Microseconds() {
		return Future
	}
	return Valid
}
