package carto

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateInput is returned when the anchors or the bounding
	// rectangle cannot support a grid (no anchors, zero-area extent).
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvalidPrecision is returned for a precision that is not a finite
	// positive number.
	ErrInvalidPrecision = errors.New("precision must be a finite number > 0")

	// ErrOutOfDomain is returned when a point outside the padded lattice is
	// interpolated.
	ErrOutOfDomain = errors.New("point outside grid domain")

	// ErrInvalidMeshKind is returned when a mesh other than source or interp
	// is requested.
	ErrInvalidMeshKind = errors.New("invalid mesh kind")

	// ErrLengthMismatch is returned when source and target anchor sequences
	// are not index-aligned.
	ErrLengthMismatch = errors.New("source and target anchors differ in length")
)

// Side names the anchor collection an identifier was found in.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// MissingCorrespondenceError reports an anchor identifier present in one
// collection and absent from the other.
type MissingCorrespondenceError struct {
	ID string
	// Side is the collection that is missing the identifier.
	Side Side
}

func (e *MissingCorrespondenceError) Error() string {
	return fmt.Sprintf("anchor %q has no match in %s collection", e.ID, e.Side)
}
