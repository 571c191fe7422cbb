// Package candidates reads directive scripts and their measured synthesis
// results from the design-space database.
package candidates

import (
	"context"

	"github.com/vk/qorgraph/internal/labels"
)

// Candidate is one explored design point of a kernel.
type Candidate struct {
	Script       string
	Measurements labels.Measurements
	// Complete is false when any resource or timing measurement is missing.
	Complete bool
}

// Source is the query side of the design-space database.
type Source interface {
	// Maxima returns the maximum of each measurement over every eligible
	// design point of every kernel.
	Maxima(ctx context.Context) (labels.Maxima, error)
	// Candidates returns the eligible design points of one configuration
	// space, in a stable order. A point is eligible when its measured
	// latency is positive.
	Candidates(ctx context.Context, spaceID int64) ([]Candidate, error)
	// Count returns how many design points a configuration space holds,
	// eligible or not.
	Count(ctx context.Context, spaceID int64) (int, error)
}
