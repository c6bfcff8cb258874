package umda

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stochago/umda/internal/optimization"
)

// quadratic is f(x) = (x[0] - 1)^2, minimum 0 at x = 1.
func quadratic(x []float64) (float64, error) {
	d := x[0] - 1.0
	return d * d, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{
			name: "valid configuration",
			cfg:  Config{MaxIter: 50, SizeGen: 20, NVariables: 2, Alpha: 0.5},
		},
		{
			name: "alpha defaults to 0.5",
			cfg:  Config{MaxIter: 50, SizeGen: 20, NVariables: 2},
		},
		{
			name:      "non-positive max iterations",
			cfg:       Config{MaxIter: 0, SizeGen: 20, NVariables: 2},
			wantError: true,
		},
		{
			name:      "non-positive population size",
			cfg:       Config{MaxIter: 50, SizeGen: 0, NVariables: 2},
			wantError: true,
		},
		{
			name:      "non-positive variable count",
			cfg:       Config{MaxIter: 50, SizeGen: 20, NVariables: -1},
			wantError: true,
		},
		{
			name:      "alpha above one",
			cfg:       Config{MaxIter: 50, SizeGen: 20, NVariables: 2, Alpha: 1.5},
			wantError: true,
		},
		{
			name:      "alpha selects empty elite set",
			cfg:       Config{MaxIter: 50, SizeGen: 1, NVariables: 2, Alpha: 0.1},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := New(tt.cfg)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, optimization.IsConfigError(err), "expected a config error, got %v", err)
				assert.Nil(t, opt, "no partial state on construction failure")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, opt)

			assert.Equal(t, 0.5, opt.Alpha())
			assert.Equal(t, float64(tt.cfg.MaxIter)/5, opt.DeadIter())
			assert.Len(t, opt.Generation(), tt.cfg.SizeGen)
			for _, individual := range opt.Generation() {
				assert.Len(t, individual, tt.cfg.NVariables)
			}

			// Canonical prior, independent of any starting point.
			for j := 0; j < tt.cfg.NVariables; j++ {
				assert.Equal(t, math.Pi, opt.mean[j])
				assert.Equal(t, 0.5, opt.stddev[j])
				assert.Equal(t, 0.0, opt.lower[j])
				assert.Equal(t, 2*math.Pi, opt.upper[j])
			}
			assert.True(t, math.IsInf(opt.BestFitness(), 1))
		})
	}
}

func TestEvaluateAlignsWithGeneration(t *testing.T) {
	opt, err := New(Config{MaxIter: 20, SizeGen: 15, NVariables: 3, Seed: 7})
	require.NoError(t, err)

	objective := func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			sum += v * v
		}
		return sum, nil
	}

	// Drive a few iterations by hand and check the alignment invariant
	// immediately before every truncation.
	for it := 0; it < 5; it++ {
		require.NoError(t, opt.evaluate(objective))
		assert.Equal(t, len(opt.generation), len(opt.evaluations), "iteration %d", it)

		for i, individual := range opt.generation {
			want, _ := objective(individual)
			assert.Equal(t, want, opt.evaluations[i], "evaluations must be index-aligned")
		}

		opt.truncate()
		opt.refit()
		opt.newGeneration()
	}
}

func TestTruncationIsStableAndAscending(t *testing.T) {
	opt := &UMDA{
		nVariables:       1,
		truncationLength: 3,
		generation:       [][]float64{{10}, {20}, {30}, {40}, {50}},
		evaluations:      []float64{2.0, 1.0, 2.0, 0.5, 3.0},
	}

	opt.truncate()

	require.Len(t, opt.generation, 3)
	require.Len(t, opt.evaluations, 3)
	assert.Equal(t, []float64{0.5, 1.0, 2.0}, opt.evaluations)
	// The tie at 2.0 resolves to the lower original index.
	assert.Equal(t, [][]float64{{40}, {20}, {10}}, opt.generation)
}

func TestTruncationNeverSelectsMoreThanPresent(t *testing.T) {
	opt := &UMDA{
		nVariables:       1,
		truncationLength: 10,
		generation:       [][]float64{{1}, {2}},
		evaluations:      []float64{2.0, 1.0},
	}

	opt.truncate()

	assert.Len(t, opt.generation, 2)
	assert.Equal(t, []float64{1.0, 2.0}, opt.evaluations)
}

func TestRefitClampsStdDev(t *testing.T) {
	opt := &UMDA{
		nVariables: 2,
		mean:       make([]float64, 2),
		stddev:     make([]float64, 2),
		// First column is degenerate (all equal), second has wide spread.
		generation: [][]float64{{1.5, -10}, {1.5, 0}, {1.5, 10}},
	}

	opt.refit()

	assert.Equal(t, 1.5, opt.mean[0])
	assert.Equal(t, stdBound, opt.stddev[0], "degenerate column must clamp to the floor")
	assert.GreaterOrEqual(t, opt.stddev[1], stdBound)
	assert.Greater(t, opt.stddev[1], 1.0, "spread column keeps its fitted stddev")
}

func TestNewGenerationCarryover(t *testing.T) {
	opt, err := New(Config{MaxIter: 20, SizeGen: 20, NVariables: 1, Alpha: 0.5, Seed: 3})
	require.NoError(t, err)

	require.NoError(t, opt.evaluate(quadratic))
	opt.truncate()
	opt.refit()

	elite := make([][]float64, len(opt.generation))
	copy(elite, opt.generation)

	opt.newGeneration()

	// truncationLength is 10, so the carryover prefix is floor(0.4*10) = 4
	// individuals on top of the 20 fresh samples.
	carry := int(eliteFactor * float64(len(elite)))
	assert.Equal(t, 4, carry)
	require.Len(t, opt.generation, carry+opt.sizeGen)
	for i := 0; i < carry; i++ {
		assert.Equal(t, elite[i], opt.generation[i], "carryover must be preserved verbatim")
	}
}

func TestNewGenerationExactPopulation(t *testing.T) {
	opt, err := New(Config{MaxIter: 20, SizeGen: 20, NVariables: 1, Alpha: 0.5, Seed: 3, ExactPopulation: true})
	require.NoError(t, err)

	require.NoError(t, opt.evaluate(quadratic))
	opt.truncate()
	opt.refit()
	opt.newGeneration()

	assert.Len(t, opt.Generation(), 20, "corrected mode holds the population at SizeGen")
}

func TestMinimizeQuadraticConverges(t *testing.T) {
	opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 1, Alpha: 0.5, Seed: 42})
	require.NoError(t, err)

	result, err := opt.Minimize(context.Background(), quadratic, []float64{5.0}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.BestSolution)

	assert.LessOrEqual(t, result.BestSolution.Value, 1e-2, "should converge near f(1) = 0")
	assert.InDelta(t, 1.0, result.BestSolution.Parameters[0], 0.15)

	history := opt.History()
	require.NotEmpty(t, history)
	for i := 1; i < len(history); i++ {
		assert.LessOrEqual(t, history[i], history[i-1],
			"per-iteration best must not regress under elitist carryover (index %d)", i)
	}

	assert.Equal(t, len(history)*20, result.Evaluations)
	assert.Equal(t, result.BestSolution.Value, opt.BestFitness())
	assert.Equal(t, result.BestSolution.Parameters, opt.BestIndividual())
}

func TestMinimizeBestEverMonotonic(t *testing.T) {
	opt, err := New(Config{MaxIter: 30, SizeGen: 10, NVariables: 2, Seed: 11})
	require.NoError(t, err)

	var bests []float64
	objective := func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			sum += v * v
		}
		return sum, nil
	}

	// Record the running best after every evaluation batch through the
	// history: the running minimum of history must equal the final best.
	result, err := opt.Minimize(context.Background(), objective, nil, nil)
	require.NoError(t, err)

	running := math.Inf(1)
	for _, h := range opt.History() {
		if h < running {
			running = h
		}
		bests = append(bests, running)
	}
	for i := 1; i < len(bests); i++ {
		assert.LessOrEqual(t, bests[i], bests[i-1])
	}
	assert.Equal(t, running, result.BestSolution.Value)
}

func TestMinimizeStagnationTerminatesExactly(t *testing.T) {
	opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 1, Seed: 1})
	require.NoError(t, err)

	// A constant objective improves once (against the sentinel) and then
	// stalls: the run must stop after exactly 1 + deadIter iterations.
	constant := func(x []float64) (float64, error) { return 1.0, nil }

	result, err := opt.Minimize(context.Background(), constant, nil, nil)
	require.NoError(t, err)

	deadIter := int(opt.DeadIter())
	assert.Equal(t, 10, deadIter)
	assert.Len(t, opt.History(), 1+deadIter)
	assert.Equal(t, (1+deadIter)*20, result.Evaluations)
	assert.Equal(t, 1.0, result.BestSolution.Value)
}

func TestMinimizePropagatesObjectiveError(t *testing.T) {
	opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 1, Seed: 5})
	require.NoError(t, err)

	boom := errors.New("evaluator exploded")
	calls := 0
	objective := func(x []float64) (float64, error) {
		calls++
		if calls == 3 {
			return 0, boom
		}
		return quadratic(x)
	}

	result, err := opt.Minimize(context.Background(), objective, nil, nil)
	require.Error(t, err)
	assert.Nil(t, result, "no result record on objective failure")
	assert.True(t, optimization.IsObjectiveError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestMinimizeDeterministicWithSeed(t *testing.T) {
	run := func() *optimization.Result {
		opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 2, Alpha: 0.5, Seed: 1234})
		require.NoError(t, err)
		result, err := opt.Minimize(context.Background(), func(x []float64) (float64, error) {
			return (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2), nil
		}, nil, nil)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.BestSolution.Value, second.BestSolution.Value)
	assert.Equal(t, first.BestSolution.Parameters, second.BestSolution.Parameters)
	assert.Equal(t, first.Evaluations, second.Evaluations)
}

func TestMinimizeIgnoresInitialPointAndBounds(t *testing.T) {
	makeOpt := func() *UMDA {
		opt, err := New(Config{MaxIter: 10, SizeGen: 10, NVariables: 1, Seed: 99})
		require.NoError(t, err)
		return opt
	}

	withHint, err := makeOpt().Minimize(context.Background(), quadratic, []float64{-100}, [][2]float64{{-1, 0}})
	require.NoError(t, err)
	withoutHint, err := makeOpt().Minimize(context.Background(), quadratic, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, withoutHint.BestSolution.Value, withHint.BestSolution.Value)
	assert.Equal(t, withoutHint.BestSolution.Parameters, withHint.BestSolution.Parameters)
}

func TestMinimizeNilObjective(t *testing.T) {
	opt, err := New(Config{MaxIter: 10, SizeGen: 10, NVariables: 1})
	require.NoError(t, err)

	result, err := opt.Minimize(context.Background(), nil, nil, nil)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestMinimizeContextCancelled(t *testing.T) {
	opt, err := New(Config{MaxIter: 1000, SizeGen: 10, NVariables: 1, Seed: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := opt.Minimize(ctx, quadratic, nil, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinimizeStdDevFloorHolds(t *testing.T) {
	opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 3, Seed: 17})
	require.NoError(t, err)

	_, err = opt.Minimize(context.Background(), func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			sum += v * v
		}
		return sum, nil
	}, nil, nil)
	require.NoError(t, err)

	for j, sigma := range opt.stddev {
		assert.GreaterOrEqual(t, sigma, stdBound, "dimension %d", j)
	}
}

func TestParallelEvaluationMatchesSequential(t *testing.T) {
	sequential, err := New(Config{MaxIter: 20, SizeGen: 20, NVariables: 2, Seed: 8, Workers: 1})
	require.NoError(t, err)
	parallel, err := New(Config{MaxIter: 20, SizeGen: 20, NVariables: 2, Seed: 8, Workers: 4})
	require.NoError(t, err)

	objective := func(x []float64) (float64, error) {
		return x[0]*x[0] + x[1]*x[1], nil
	}

	seqResult, err := sequential.Minimize(context.Background(), objective, nil, nil)
	require.NoError(t, err)
	parResult, err := parallel.Minimize(context.Background(), objective, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, seqResult.BestSolution.Value, parResult.BestSolution.Value)
	assert.Equal(t, seqResult.BestSolution.Parameters, parResult.BestSolution.Parameters)
	assert.Equal(t, seqResult.Evaluations, parResult.Evaluations)
}

func TestAccessors(t *testing.T) {
	opt, err := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 2})
	require.NoError(t, err)

	opt.SetSizeGen(30)
	assert.Equal(t, 30, opt.SizeGen())

	opt.SetMaxIter(80)
	assert.Equal(t, 80, opt.MaxIter())

	opt.SetAlpha(0.6)
	assert.Equal(t, 0.6, opt.Alpha())

	opt.SetNVariables(3)
	assert.Equal(t, 3, opt.NVariables())

	opt.SetDeadIter(4)
	assert.Equal(t, 4.0, opt.DeadIter())

	opt.SetBestFitness(12.5)
	assert.Equal(t, 12.5, opt.BestFitness())

	opt.SetVerbose(true)
	assert.True(t, opt.Verbose())

	assert.Nil(t, opt.BestIndividual(), "no best individual before a run")
	assert.Nil(t, opt.History())
}

func TestMinimizeNaNNeverBecomesBest(t *testing.T) {
	opt, err := New(Config{MaxIter: 10, SizeGen: 10, NVariables: 1, Seed: 6})
	require.NoError(t, err)

	result, err := opt.Minimize(context.Background(), func(x []float64) (float64, error) {
		return math.NaN(), nil
	}, nil, nil)
	require.NoError(t, err)

	assert.True(t, math.IsInf(result.BestSolution.Value, 1),
		"NaN evaluations must not replace the sentinel best")
	assert.Empty(t, result.BestSolution.Parameters)
}

func ExampleUMDA_Minimize() {
	opt, _ := New(Config{MaxIter: 50, SizeGen: 20, NVariables: 1, Seed: 42})
	result, _ := opt.Minimize(context.Background(), func(x []float64) (float64, error) {
		d := x[0] - 1.0
		return d * d, nil
	}, nil, nil)
	fmt.Println(result.BestSolution.Value <= 1e-2)
	// Output: true
}
