package shipper

import (
	"math/rand/v2"
)

const (
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// ReferenceIDLength is the length of generated reference ids.
	ReferenceIDLength = 7
)

// NewReferenceID returns a random reference id of ReferenceIDLength symbols drawn
// uniformly from A-Z0-9. It is not cryptographically secure; collisions are
// improbable (36^7 combinations) but possible.
func NewReferenceID() string {
	b := make([]byte, ReferenceIDLength)
	for i := range b {
		b[i] = referenceAlphabet[rand.IntN(len(referenceAlphabet))]
	}
	return string(b)
}

// ValidReferenceID reports whether s has the shape of a generated reference id.
func ValidReferenceID(s string) bool {
	if len(s) != ReferenceIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
