package search

import (
	"fmt"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tour"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// Params configures a search run
type Params struct {
	Cities         int   `json:"cities"`              // number of cities (N)
	Candidates     int   `json:"candidates_per_step"` // candidate evaluations per step (K)
	StuckThreshold int   `json:"stuck_threshold"`     // rejections before declaring an optimum (T)
	Seed           int64 `json:"seed"`
}

// DefaultParams returns the standard run configuration
func DefaultParams() Params {
	return Params{
		Cities:         50,
		Candidates:     10,
		StuckThreshold: 50,
		Seed:           42,
	}
}

// Validate checks that all parameters are inside their valid ranges.
// Zero candidates is allowed: such a run advances its iteration counter
// without ever evaluating a move.
func (p Params) Validate() error {
	if p.Cities < 2 {
		return &InvalidParamError{Param: "cities", Value: int64(p.Cities), Reason: "need at least 2"}
	}
	if p.Candidates < 0 {
		return &InvalidParamError{Param: "candidates_per_step", Value: int64(p.Candidates), Reason: "cannot be negative"}
	}
	if p.StuckThreshold < 0 {
		return &InvalidParamError{Param: "stuck_threshold", Value: int64(p.StuckThreshold), Reason: "cannot be negative"}
	}
	return nil
}

// Snapshot is a read-only view of the run state after a step
type Snapshot struct {
	Tour            tour.Tour `json:"tour"`
	CurrentDistance float64   `json:"current_distance"`
	BestDistance    float64   `json:"best_distance"`
	StuckCounter    int       `json:"stuck_counter"`
	Iteration       int64     `json:"iteration"`
	Status          Status    `json:"status"`
	History         []float64 `json:"history"`
	OptimaFound     int       `json:"optima_found"`
	ImprovementPct  float64   `json:"improvement_pct"`
}

// Controller owns the mutable state of one hill-climbing run. It is not
// safe for concurrent use; callers driving it from multiple goroutines
// must serialize Step and Restart externally.
type Controller struct {
	params Params
	cities *tour.CitySet
	rng    *utils.RandSource

	current     tour.Tour
	currentDist float64
	bestDist    float64
	stuck       int
	iteration   int64
	history     []float64
	globalSoFar bool
	registry    Registry
}

// New creates a controller over a generated city layout and randomizes
// the initial tour, equivalent to an implicit restart.
func New(params Params) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cities, err := tour.Generate(params.Cities, params.Seed)
	if err != nil {
		return nil, err
	}
	return newController(cities, params), nil
}

// NewWithCities creates a controller over an explicit city layout.
// The layout fixes the city count; params.Cities is overridden.
func NewWithCities(cities *tour.CitySet, params Params) (*Controller, error) {
	if cities == nil {
		return nil, fmt.Errorf("city set is required")
	}
	params.Cities = cities.Len()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newController(cities, params), nil
}

func newController(cities *tour.CitySet, params Params) *Controller {
	c := &Controller{
		params: params,
		cities: cities,
		// Moves draw from a derived stream so they stay independent of
		// the stream that placed the cities.
		rng: utils.NewRandSource(params.Seed).Derive(1),
	}
	c.Restart()
	return c
}

// Restart re-randomizes the tour and clears all run state: distances,
// counters, history, and the optima registry. Safe to call between any
// two steps, any number of times.
func (c *Controller) Restart() {
	c.current = tour.Random(c.cities.Len(), c.rng)
	c.currentDist = c.current.Length(c.cities)
	c.bestDist = c.currentDist
	c.stuck = 0
	c.iteration = 0
	c.history = append(c.history[:0], c.currentDist)
	c.globalSoFar = false
	c.registry.Reset()
}

// Step advances the search by one batch of candidate evaluations and
// returns the resulting run state.
//
// Each of the K candidates is compared against the baseline accumulated
// so far within the batch: an accepted candidate immediately becomes the
// baseline for the remaining ones.
func (c *Controller) Step() Snapshot {
	for k := 0; k < c.params.Candidates; k++ {
		candidate := TwoOptSwap(c.current, c.rng)
		candidateDist := candidate.Length(c.cities)
		if candidateDist < c.currentDist {
			// Strict improvement only, ties are rejected.
			c.current, c.currentDist = candidate, candidateDist
			c.stuck = 0
			if c.currentDist < c.bestDist {
				c.bestDist = c.currentDist
				c.globalSoFar = false
			}
		} else {
			c.stuck++
		}
	}

	c.iteration++
	c.history = append(c.history, c.currentDist)

	// Once stuck, decide whether this optimum is the best seen this run,
	// then record it. The comparison runs before the insert, so an
	// optimum already recorded on an earlier step no longer counts as
	// global: first discovery wins.
	if c.stuck >= c.params.StuckThreshold {
		min, ok := c.registry.Min()
		c.globalSoFar = !ok || c.currentDist < min
		c.registry.Record(c.currentDist)
	}

	return c.snapshot()
}

// Snapshot returns the current run state without advancing the search
func (c *Controller) Snapshot() Snapshot {
	return c.snapshot()
}

// Cities returns the city layout the run explores
func (c *Controller) Cities() *tour.CitySet {
	return c.cities
}

// Params returns the configuration the controller was built with
func (c *Controller) Params() Params {
	return c.params
}

func (c *Controller) snapshot() Snapshot {
	history := make([]float64, len(c.history))
	copy(history, c.history)

	return Snapshot{
		Tour:            c.current.Copy(),
		CurrentDistance: c.currentDist,
		BestDistance:    c.bestDist,
		StuckCounter:    c.stuck,
		Iteration:       c.iteration,
		Status:          classify(c.stuck, c.params.StuckThreshold, c.globalSoFar),
		History:         history,
		OptimaFound:     c.registry.Len(),
		ImprovementPct:  c.improvementPct(),
	}
}

// improvementPct reports how far bestDist has dropped below the run's
// initial distance, as a percentage of that initial distance.
func (c *Controller) improvementPct() float64 {
	initial := c.history[0]
	if initial <= 0 {
		return 0
	}
	return utils.Round((initial-c.bestDist)/initial*100, 2)
}

// InvalidParamError indicates a search parameter outside its valid range
type InvalidParamError struct {
	Param  string
	Value  int64
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%d: %s", e.Param, e.Value, e.Reason)
}
