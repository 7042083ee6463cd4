package tour

import (
	"errors"
	"fmt"
	"math"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// ErrTooFewCities is returned when a city set would contain fewer than two cities.
var ErrTooFewCities = errors.New("city set requires at least 2 cities")

// Point is a city position in the unit square
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CitySet is an immutable collection of city positions
type CitySet struct {
	points []Point
}

// Generate creates n cities at positions drawn uniformly from [0,1)x[0,1).
// The layout is deterministic for a given (n, seed) pair.
func Generate(n int, seed int64) (*CitySet, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCities, n)
	}

	rng := utils.NewRandSource(seed)
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{X: rng.Float64(), Y: rng.Float64()}
	}
	return &CitySet{points: points}, nil
}

// NewCitySet builds a city set from explicit positions
func NewCitySet(points []Point) (*CitySet, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCities, len(points))
	}

	pts := make([]Point, len(points))
	copy(pts, points)
	return &CitySet{points: pts}, nil
}

// Len returns the number of cities
func (c *CitySet) Len() int {
	return len(c.points)
}

// At returns the position of city i
func (c *CitySet) At(i int) Point {
	return c.points[i]
}

// Points returns a copy of all city positions
func (c *CitySet) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Distance returns the Euclidean distance between cities a and b
func (c *CitySet) Distance(a, b int) float64 {
	dx := c.points[a].X - c.points[b].X
	dy := c.points[a].Y - c.points[b].Y
	return math.Sqrt(dx*dx + dy*dy)
}
