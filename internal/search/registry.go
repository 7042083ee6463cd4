package search

import (
	"math"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// Tolerance is the absolute difference below which two optimum distances
// count as the same optimum. Different move sequences reaching the same
// tour shape produce lengths differing in the last float bits.
const Tolerance = 1e-6

// Registry tracks the distinct local-optimum distances found in one run
type Registry struct {
	entries []float64
}

// Record inserts d unless an entry within Tolerance of it already exists.
// It reports whether a new entry was added.
func (r *Registry) Record(d float64) bool {
	for _, e := range r.entries {
		if math.Abs(e-d) < Tolerance {
			return false
		}
	}
	r.entries = append(r.entries, d)
	return true
}

// Min returns the smallest recorded distance, and false when empty
func (r *Registry) Min() (float64, bool) {
	if len(r.entries) == 0 {
		return 0, false
	}

	min := r.entries[0]
	for _, e := range r.entries[1:] {
		min = utils.MinFloat64(min, e)
	}
	return min, true
}

// Len returns the number of distinct optima recorded
func (r *Registry) Len() int {
	return len(r.entries)
}

// Reset clears all recorded optima
func (r *Registry) Reset() {
	r.entries = r.entries[:0]
}
