package tour

import (
	"errors"
	"fmt"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// ErrInvalidTour is returned when a tour is not a permutation of its city set.
var ErrInvalidTour = errors.New("invalid tour")

// Tour is a visiting order over all cities, interpreted as a closed cycle:
// the last city connects back to the first.
type Tour []int

// Random returns a uniformly random tour over n cities drawn from rng
func Random(n int, rng *utils.RandSource) Tour {
	return Tour(rng.Perm(n))
}

// Length returns the total length of the closed cycle over the given cities
func (t Tour) Length(cities *CitySet) float64 {
	if len(t) < 2 {
		return 0
	}

	var sum float64
	for i := range t {
		next := (i + 1) % len(t)
		sum += cities.Distance(t[i], t[next])
	}
	return sum
}

// Validate checks that the tour visits every city in [0,n) exactly once
func (t Tour) Validate(n int) error {
	if len(t) != n {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidTour, len(t), n)
	}

	seen := make([]bool, n)
	for _, city := range t {
		if city < 0 || city >= n {
			return fmt.Errorf("%w: city %d out of range [0,%d)", ErrInvalidTour, city, n)
		}
		if seen[city] {
			return fmt.Errorf("%w: city %d visited more than once", ErrInvalidTour, city)
		}
		seen[city] = true
	}
	return nil
}

// Copy returns an independent copy of the tour
func (t Tour) Copy() Tour {
	out := make(Tour, len(t))
	copy(out, t)
	return out
}
