package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHappyPath(t *testing.T) {
	c := Candidate{X: 7, Y: 3, Color: 5, PlacedAt: 1000}
	assert.Equal(t, Valid, Validate(c, 16, 2000))
}

func TestValidateBadColor(t *testing.T) {
	c := Candidate{X: 0, Y: 0, Color: 16, PlacedAt: 1000}
	assert.Equal(t, BadColor, Validate(c, 16, 2000))
}

func TestValidateOutOfBounds(t *testing.T) {
	c := Candidate{X: 16, Y: 0, Color: 0, PlacedAt: 1000}
	assert.Equal(t, OutOfBounds, Validate(c, 16, 2000))
}

func TestValidateFuture(t *testing.T) {
	now := int64(1_000_000)
	c := Candidate{X: 0, Y: 0, Color: 0, PlacedAt: now + 5*60*1_000_000}
	assert.Equal(t, Future, Validate(c, 16, now))
}

func TestParsePayload(t *testing.T) {
	x, y, color, ok := ParsePayload([]byte(`{"x":7,"y":3,"color":5,"ignored":"field"}`))
	assert.True(t, ok)
	assert.Equal(t, 7, x)
	assert.Equal(t, 3, y)
	assert.Equal(t, 5, color)
}

func TestParsePayloadMissingField(t *testing.T) {
	_, _, _, ok := ParsePayload([]byte(`{"x":7,"y":3}`))
	assert.False(t, ok)
}

func TestParsePayloadMalformed(t *testing.T) {
	_, _, _, ok := ParsePayload([]byte(`not json`))
	assert.False(t, ok)
}
