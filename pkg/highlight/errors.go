package highlight

import (
	"errors"
	"fmt"
)

// Sentinel errors for the interval store. Typed errors below unwrap to these.
var (
	ErrOverlap      = errors.New("highlight overlaps an existing highlight")
	ErrNotFound     = errors.New("highlight not found")
	ErrInvalidRange = errors.New("invalid highlight range")
)

// OverlapError is returned by Set.Add when the candidate intersects an existing highlight.
type OverlapError struct {
	Start, End int
	Existing   Highlight
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("range [%d,%d) overlaps highlight %s [%d,%d)",
		e.Start, e.End, e.Existing.ID, e.Existing.Start, e.Existing.End)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// NotFoundError names the id that was not in the set.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("highlight %q not found", e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RangeError describes a candidate that does not fit the document.
type RangeError struct {
	Start, End int
	Length     int
	Reason     string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range [%d,%d) in document of length %d: %s", e.Start, e.End, e.Length, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }
