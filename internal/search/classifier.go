package search

// Status labels the progress of a search run
type Status string

const (
	// StatusImproving means the last candidate batch found a shorter tour.
	StatusImproving Status = "improving"
	// StatusSearching means recent candidates failed but the run is not yet stuck.
	StatusSearching Status = "searching"
	// StatusLocalOptimum means the run is stuck on an optimum that a shorter
	// one discovered earlier in the run already beats.
	StatusLocalOptimum Status = "local_optimum"
	// StatusGlobalOptimum means the run is stuck on the best optimum it has
	// discovered so far.
	StatusGlobalOptimum Status = "global_optimum"
)

// classify maps the stuck counter and the global-so-far flag to a status.
// A zero counter always means improving. Below the threshold the run is
// still searching; at or beyond it the flag decides between the two
// optimum labels.
func classify(stuckCounter, stuckThreshold int, globalSoFar bool) Status {
	switch {
	case stuckCounter == 0:
		return StatusImproving
	case stuckCounter < stuckThreshold:
		return StatusSearching
	case globalSoFar:
		return StatusGlobalOptimum
	default:
		return StatusLocalOptimum
	}
}
