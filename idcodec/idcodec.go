// Package idcodec encodes the monotonic event identifier used throughout the
// indexer: a microsecond Unix timestamp packed into exactly 13 characters of
// Crockford Base32, chosen so that string order equals numeric order.
package idcodec

import (
	"github.com/pubky-canvas/indexer/errors"
)

// alphabet is the Crockford Base32 alphabet. It omits I, L, O, U to avoid
// transcription ambiguity.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Length is the fixed encoded width in characters.
const Length = 13

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// ErrBadLength is returned when a string is not exactly Length characters.
var ErrBadLength = errors.New("idcodec: encoded id must be 13 characters")

// ErrBadChar is returned when a string contains a character outside the
// Crockford Base32 alphabet.
var ErrBadChar = errors.New("idcodec: encoded id contains a non-alphabet character")

// ErrOverflow is returned when the decoded value does not fit in 64 bits.
var ErrOverflow = errors.New("idcodec: encoded id overflows 64 bits")

// ErrNonPositive is returned when the decoded microsecond value is <= 0.
var ErrNonPositive = errors.New("idcodec: decoded timestamp must be positive")

// Encode packs micros (a microsecond Unix timestamp) into 13 Crockford
// Base32 characters, most-significant 5-bit group first. 13*5 = 65 bits are
// produced; the extra leading bit is always zero since micros fits in 64
// bits, which keeps lexicographic order equal to numeric order.
func Encode(micros uint64) string {
	buf := make([]byte, Length)
	for i := 0; i < Length; i++ {
		shift := uint(60 - 5*i)
		buf[i] = alphabet[(micros>>shift)&0x1F]
	}
	return string(buf)
}

// Decode parses a 13-character Crockford Base32 id back into its microsecond
// value. It rejects wrong-length strings, non-alphabet characters, values
// that would overflow 64 bits, and non-positive results.
func Decode(id string) (uint64, error) {
	if len(id) != Length {
		return 0, ErrBadLength
	}

	var value uint64
	for i := 0; i < Length; i++ {
		d := decodeTable[id[i]]
		if d < 0 {
			return 0, ErrBadChar
		}
		if i == 0 && d >= 16 {
			// The first group may only use its low 4 bits: the encoded
			// value is 65 bits wide but must fit in a uint64.
			return 0, ErrOverflow
		}
		value = (value << 5) | uint64(d)
	}

	if value == 0 {
		return 0, ErrNonPositive
	}

	return value, nil
}
