// Package umda implements the continuous Univariate Marginal Distribution
// Algorithm, an estimation-of-distribution optimizer. The probabilistic model
// is a set of independent per-dimension normal distributions which is
// re-estimated every iteration from the elite fraction of the population.
package umda

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/stochago/umda/internal/optimization"
)

const (
	// eliteFactor is the fraction of the truncated population carried over
	// verbatim into the next generation.
	eliteFactor = 0.4

	// stdBound is the floor applied to every fitted standard deviation. It
	// keeps the search distribution from collapsing to a point mass when the
	// elite set becomes homogeneous in a dimension.
	stdBound = 0.3
)

// Config holds the construction parameters for a UMDA optimizer.
type Config struct {
	// MaxIter is the iteration budget.
	MaxIter int

	// SizeGen is the number of fresh individuals sampled per generation.
	SizeGen int

	// NVariables is the dimensionality of the search space.
	NVariables int

	// Alpha is the elite selection fraction in (0, 1]. Zero means the 0.5
	// default.
	Alpha float64

	// Verbose logs the final evaluation count and best solution after each
	// Minimize call.
	Verbose bool

	// Workers bounds concurrent objective evaluations within one generation.
	// Values below 2 evaluate sequentially.
	Workers int

	// ExactPopulation trims the generation after elite carryover back to
	// exactly SizeGen individuals. The default (false) reproduces the
	// reference behavior, where carryover is additive and the population
	// grows by floor(0.4*truncationLength) after the first iteration.
	ExactPopulation bool

	// Seed seeds the default sampler. Ignored when Sampler is set.
	Seed uint64

	// Sampler overrides the default seeded Gaussian sampler.
	Sampler optimization.Sampler

	// Logger receives verbose progress output. Nil means no logging.
	Logger *zap.Logger
}

// UMDA is a univariate estimation-of-distribution minimizer.
//
// A UMDA instance is not safe for concurrent use: Minimize mutates the model,
// population and best-ever record without synchronization.
type UMDA struct {
	maxIter         int
	sizeGen         int
	nVariables      int
	alpha           float64
	verbose         bool
	workers         int
	exactPopulation bool

	deadIter         float64
	truncationLength int

	// Per-dimension model. lower/upper record the canonical initial range
	// and are never enforced after initialization.
	mean   []float64
	stddev []float64
	lower  []float64
	upper  []float64

	generation  [][]float64
	evaluations []float64

	bestFitness float64
	bestPoint   []float64
	history     []float64

	sampler optimization.Sampler
	logger  *zap.Logger
}

var _ optimization.Minimizer = (*UMDA)(nil)

// New validates cfg and returns an optimizer with its model set to the
// canonical prior (mean pi, stddev 0.5, range [0, 2pi] per dimension) and a
// first generation already sampled from it.
func New(cfg Config) (*UMDA, error) {
	const op = "umda.New"

	if cfg.MaxIter <= 0 {
		return nil, optimization.NewConfigError(op, "max iterations must be positive, got %d", cfg.MaxIter)
	}
	if cfg.SizeGen <= 0 {
		return nil, optimization.NewConfigError(op, "population size must be positive, got %d", cfg.SizeGen)
	}
	if cfg.NVariables <= 0 {
		return nil, optimization.NewConfigError(op, "number of variables must be positive, got %d", cfg.NVariables)
	}

	alpha := cfg.Alpha
	if alpha == 0 {
		alpha = 0.5
	}
	if alpha < 0 || alpha > 1 {
		return nil, optimization.NewConfigError(op, "alpha must be in (0, 1], got %g", alpha)
	}

	truncationLength := int(float64(cfg.SizeGen) * alpha)
	if truncationLength == 0 {
		return nil, optimization.NewConfigError(op, "alpha %g selects an empty elite set for population size %d", alpha, cfg.SizeGen)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	sampler := cfg.Sampler
	if sampler == nil {
		sampler = optimization.NewGaussianSampler(cfg.Seed)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &UMDA{
		maxIter:          cfg.MaxIter,
		sizeGen:          cfg.SizeGen,
		nVariables:       cfg.NVariables,
		alpha:            alpha,
		verbose:          cfg.Verbose,
		workers:          workers,
		exactPopulation:  cfg.ExactPopulation,
		deadIter:         float64(cfg.MaxIter) / 5,
		truncationLength: truncationLength,
		bestFitness:      math.Inf(1),
		sampler:          sampler,
		logger:           logger,
	}
	u.initModel()
	u.generation = u.sampler.Sample(u.mean, u.stddev, u.sizeGen)

	return u, nil
}

// initModel resets the model to the canonical prior. The prior is a fixed
// constant, independent of any externally supplied starting point.
func (u *UMDA) initModel() {
	u.mean = make([]float64, u.nVariables)
	u.stddev = make([]float64, u.nVariables)
	u.lower = make([]float64, u.nVariables)
	u.upper = make([]float64, u.nVariables)
	for j := 0; j < u.nVariables; j++ {
		u.mean[j] = math.Pi
		u.stddev[j] = 0.5
		u.lower[j] = 0
		u.upper[j] = 2 * math.Pi
	}
}

// Minimize runs the generation/selection/re-fit loop to completion.
//
// x0 is accepted for interface uniformity with other minimizers and is never
// used to seed the model; bounds are likewise accepted but not enforced. The
// context is checked between iterations only: a running objective call is
// never interrupted. After an objective failure the internal state is not
// usable; retry on a fresh instance.
func (u *UMDA) Minimize(ctx context.Context, objective optimization.ObjectiveFunc, x0 []float64, bounds [][2]float64) (*optimization.Result, error) {
	const op = "umda.Minimize"

	if objective == nil {
		return nil, optimization.NewConfigError(op, "objective function is nil")
	}

	u.history = nil
	notBetter := 0

	for it := 0; it < u.maxIter; it++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := u.evaluate(objective); err != nil {
			return nil, optimization.WrapObjectiveError(op, err)
		}
		u.truncate()
		u.refit()

		// The elite set is sorted best-first, so its head is this
		// iteration's winner.
		bestLocal := u.evaluations[0]
		u.history = append(u.history, bestLocal)

		if bestLocal < u.bestFitness {
			u.bestFitness = bestLocal
			u.bestPoint = append([]float64(nil), u.generation[0]...)
			notBetter = 0
		} else {
			notBetter++
			if notBetter == int(u.deadIter) {
				break
			}
		}

		u.newGeneration()
	}

	result := &optimization.Result{
		BestSolution: &optimization.Solution{
			Parameters: append([]float64(nil), u.bestPoint...),
			Value:      u.bestFitness,
		},
		Evaluations: len(u.history) * u.sizeGen,
	}

	if u.verbose {
		u.logger.Info("minimization finished",
			zap.Int("nfev", result.Evaluations),
			zap.Float64("fun", result.BestSolution.Value),
			zap.Float64s("x", result.BestSolution.Parameters),
		)
	}

	return result, nil
}

// evaluate computes one fitness value per individual, index-aligned with the
// current generation. With more than one worker the population is evaluated
// concurrently and results are written back by index before selection runs;
// the first error encountered is returned.
func (u *UMDA) evaluate(objective optimization.ObjectiveFunc) error {
	evals := make([]float64, len(u.generation))

	if u.workers < 2 {
		for i, individual := range u.generation {
			value, err := objective(individual)
			if err != nil {
				return err
			}
			evals[i] = value
		}
		u.evaluations = evals
		return nil
	}

	errs := make([]error, len(u.generation))
	sem := make(chan struct{}, u.workers)
	var wg sync.WaitGroup
	for i, individual := range u.generation {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, x []float64) {
			defer wg.Done()
			defer func() { <-sem }()
			evals[i], errs[i] = objective(x)
		}(i, individual)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	u.evaluations = evals
	return nil
}

// truncate keeps the truncationLength best individuals, sorted ascending by
// fitness with ties broken by original index.
func (u *UMDA) truncate() {
	keep := u.truncationLength
	if keep > len(u.generation) {
		keep = len(u.generation)
	}

	order := make([]int, len(u.evaluations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return u.evaluations[order[a]] < u.evaluations[order[b]]
	})

	generation := make([][]float64, keep)
	evaluations := make([]float64, keep)
	for i := 0; i < keep; i++ {
		generation[i] = u.generation[order[i]]
		evaluations[i] = u.evaluations[order[i]]
	}
	u.generation = generation
	u.evaluations = evaluations
}

// refit re-estimates the per-dimension normal model from the elite set using
// the maximum-likelihood fit (population mean and stddev), clamping each
// stddev at stdBound.
func (u *UMDA) refit() {
	column := make([]float64, len(u.generation))
	for j := 0; j < u.nVariables; j++ {
		for i, individual := range u.generation {
			column[i] = individual[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std < stdBound {
			std = stdBound
		}
		u.mean[j] = mean
		u.stddev[j] = std
	}
}

// newGeneration builds the next population: an elite-carryover prefix taken
// verbatim from the truncated generation, followed by sizeGen fresh samples
// from the refreshed model. The carryover is additive, so the population
// settles at carryover+sizeGen individuals unless ExactPopulation trims the
// concatenation back to sizeGen.
func (u *UMDA) newGeneration() {
	fresh := u.sampler.Sample(u.mean, u.stddev, u.sizeGen)
	carry := int(eliteFactor * float64(len(u.generation)))

	next := make([][]float64, 0, carry+len(fresh))
	next = append(next, u.generation[:carry]...)
	next = append(next, fresh...)
	if u.exactPopulation && len(next) > u.sizeGen {
		next = next[:u.sizeGen]
	}
	u.generation = next
}

// SizeGen returns the per-generation sample count.
func (u *UMDA) SizeGen() int { return u.sizeGen }

// SetSizeGen updates the per-generation sample count.
func (u *UMDA) SetSizeGen(n int) { u.sizeGen = n }

// MaxIter returns the iteration budget.
func (u *UMDA) MaxIter() int { return u.maxIter }

// SetMaxIter updates the iteration budget.
func (u *UMDA) SetMaxIter(n int) { u.maxIter = n }

// Alpha returns the elite selection fraction.
func (u *UMDA) Alpha() float64 { return u.alpha }

// SetAlpha updates the elite selection fraction.
func (u *UMDA) SetAlpha(a float64) { u.alpha = a }

// NVariables returns the search-space dimensionality.
func (u *UMDA) NVariables() int { return u.nVariables }

// SetNVariables updates the search-space dimensionality.
func (u *UMDA) SetNVariables(n int) { u.nVariables = n }

// DeadIter returns the stagnation threshold.
func (u *UMDA) DeadIter() float64 { return u.deadIter }

// SetDeadIter updates the stagnation threshold.
func (u *UMDA) SetDeadIter(d float64) { u.deadIter = d }

// BestFitness returns the best objective value seen so far.
func (u *UMDA) BestFitness() float64 { return u.bestFitness }

// SetBestFitness overrides the best objective value seen so far.
func (u *UMDA) SetBestFitness(v float64) { u.bestFitness = v }

// Verbose reports whether progress logging is enabled.
func (u *UMDA) Verbose() bool { return u.verbose }

// SetVerbose toggles progress logging.
func (u *UMDA) SetVerbose(v bool) { u.verbose = v }

// BestIndividual returns a copy of the best point seen so far, or nil when no
// iteration has produced one yet.
func (u *UMDA) BestIndividual() []float64 {
	if u.bestPoint == nil {
		return nil
	}
	return append([]float64(nil), u.bestPoint...)
}

// Generation returns the current population.
func (u *UMDA) Generation() [][]float64 { return u.generation }

// History returns the best fitness observed within each completed iteration
// of the most recent Minimize call.
func (u *UMDA) History() []float64 { return u.history }
