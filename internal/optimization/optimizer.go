package optimization

import (
	"context"
)

// Minimizer is the common capability shared by all black-box optimizers in
// this module: run a full minimization of an objective function and report
// the best point found.
type Minimizer interface {
	// Minimize runs the optimizer to completion. x0 is an initial point hint;
	// individual optimizers may ignore it. bounds are per-dimension
	// [min, max] box constraints; individual optimizers may ignore them too.
	Minimize(ctx context.Context, objective ObjectiveFunc, x0 []float64, bounds [][2]float64) (*Result, error)
}

// ObjectiveFunc is the function being minimized. It maps a candidate point to
// a scalar cost and may be arbitrarily expensive. It must be deterministic
// for a fixed input vector; runtime cost may vary between calls.
type ObjectiveFunc func(x []float64) (float64, error)

// Solution is a candidate point together with its objective value.
type Solution struct {
	Parameters []float64
	Value      float64
}

// Result is what a completed minimization run reports back.
type Result struct {
	// BestSolution is the best point seen across the whole run.
	BestSolution *Solution

	// Evaluations is the number of objective function evaluations charged to
	// the run.
	Evaluations int
}

// CloneSolution returns a deep copy so callers can hold on to a solution
// while the optimizer keeps mutating its internal buffers.
func CloneSolution(s *Solution) *Solution {
	if s == nil {
		return nil
	}
	return &Solution{
		Parameters: append([]float64(nil), s.Parameters...),
		Value:      s.Value,
	}
}
