// Package packet implements allocation-free protocol codecs (component A)
// and the zero-copy packet view over a UMEM frame (component B).
package packet

import "errors"

var (
	// ErrPacketTooShort is returned when a byte slice cannot hold the
	// header being parsed.
	ErrPacketTooShort = errors.New("packet: too short for header")
	// ErrModificationOutOfBounds is returned when Modify would write past
	// the end of the frame.
	ErrModificationOutOfBounds = errors.New("packet: modification out of bounds")
)
