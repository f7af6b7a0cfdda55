// Package credit implements the continuous-regeneration, bucket-free credit
// rate limiter: given a user's recent accepted placements, how many credits
// are available at a candidate timestamp.
package credit

import (
	"github.com/pubky-canvas/indexer/logger"
	"github.com/pubky-canvas/indexer/store"
)

// Params are the two tunables named in the spec: max credits and the
// regeneration interval, in seconds.
type Params struct {
	MaxCredits     int
	RegenInterval  int64 // seconds
}

// regenIntervalMicros converts RegenInterval to microseconds, the unit
// PlacedAt is stored in.
func (p Params) regenIntervalMicros() int64 {
	return p.RegenInterval * 1_000_000
}

// Available computes the credits available at time T (microseconds since
// epoch), given a user's most recent placements ordered newest-first
// (recent[0] is the most recent). Placements with PlacedAt >= t are ignored,
// so only placements strictly before t count; of those, at most MaxCredits
// of the most recent are used.
//
// Algorithm: start at MaxCredits far in the past, walk forward through the
// placements oldest-to-newest regenerating floor(dt/R) credits capped at
// MaxCredits between events and subtracting one per placement, then
// regenerate once more from the last placement up to t.
func Available(p Params, recentNewestFirst []store.PixelEvent, t int64) int {
	if p.MaxCredits <= 0 {
		return 0
	}
	r := p.regenIntervalMicros()
	if r <= 0 {
		return p.MaxCredits
	}

	prior := make([]store.PixelEvent, 0, len(recentNewestFirst))
	for _, ev := range recentNewestFirst {
		if ev.PlacedAt < t {
			prior = append(prior, ev)
		}
	}
	recentNewestFirst = prior

	k := len(recentNewestFirst)
	if k == 0 {
		return p.MaxCredits
	}
	if k > p.MaxCredits {
		recentNewestFirst = recentNewestFirst[:p.MaxCredits]
		k = p.MaxCredits
	}

	// oldest-to-newest view without reallocating: iterate indices k-1..0
	credits := p.MaxCredits
	prevTime := recentNewestFirst[k-1].PlacedAt - int64(p.MaxCredits)*r

	for i := k - 1; i >= 0; i-- {
		ev := recentNewestFirst[i]
		delta := ev.PlacedAt - prevTime
		if delta > 0 {
			credits += int(delta / r)
			if credits > p.MaxCredits {
				credits = p.MaxCredits
			}
		}
		if credits <= 0 {
			// Historical state is corrupt (more placements than credits
			// should have allowed); treat as exhausted for this decision
			// rather than going negative.
			logger.Warnw("credit history inconsistent: placement recorded with no credit available",
				logger.FieldUser, ev.UserPK,
				"placed_at", ev.PlacedAt,
			)
			credits = 0
		} else {
			credits--
		}
		prevTime = ev.PlacedAt
	}

	delta := t - prevTime
	if delta > 0 {
		credits += int(delta / r)
		if credits > p.MaxCredits {
			credits = p.MaxCredits
		}
	}

	return credits
}

// Accept reports whether a placement at time t should be accepted, given the
// same recent-history slice Available takes.
func Accept(p Params, recentNewestFirst []store.PixelEvent, t int64) bool {
	return Available(p, recentNewestFirst, t) >= 1
}

// Now computes the credits currently available for a user and the seconds
// until the next regeneration (nil-equivalent via hasNext=false when already at
// MaxCredits). recentNewestFirst must be the user's most recent placements,
// newest first, and nowMicros the current wall-clock time in microseconds.
func Now(p Params, recentNewestFirst []store.PixelEvent, nowMicros int64) (available int, secondsUntilNext int64, hasNext bool) {
	available = Available(p, recentNewestFirst, nowMicros)
	if available >= p.MaxCredits || len(recentNewestFirst) == 0 {
		return available, 0, false
	}
	r := p.regenIntervalMicros()
	if r <= 0 {
		return available, 0, false
	}
	last := recentNewestFirst[0].PlacedAt
	elapsed := nowMicros - last
	mod := elapsed % r
	remaining := r - mod
	return available, remaining / 1_000_000, true
}
