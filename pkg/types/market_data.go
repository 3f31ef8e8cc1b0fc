package types

import (
	"fmt"
	"time"
)

// OHLCV is one price bar. Bar slices handed to the engine are treated as read-only.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Side of a simulated position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sides lists both sides in a stable order
var Sides = []Side{SideLong, SideShort}

// Sign returns +1 for long and -1 for short
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// ParseSide validates a side name
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLong, SideShort:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Purpose of a signal definition
type Purpose string

const (
	PurposeEntry Purpose = "entry"
	PurposeExit  Purpose = "exit"
)

// Purposes lists both purposes in a stable order
var Purposes = []Purpose{PurposeEntry, PurposeExit}

// ParsePurpose validates a purpose name
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case PurposeEntry, PurposeExit:
		return Purpose(s), nil
	}
	return "", fmt.Errorf("unknown purpose %q", s)
}
