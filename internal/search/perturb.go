package search

import (
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tour"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// TwoOptSwap returns a copy of t with one closed sub-range reversed.
// Two distinct positions i < j are drawn uniformly from rng and the
// cities between them flip order, exchanging exactly two edges of the
// cycle. The input tour is never modified, so the result is always a
// permutation of the same cities.
func TwoOptSwap(t tour.Tour, rng *utils.RandSource) tour.Tour {
	i, j := rng.DistinctPair(len(t))
	next := t.Copy()
	for i < j {
		next[i], next[j] = next[j], next[i]
		i++
		j--
	}
	return next
}
