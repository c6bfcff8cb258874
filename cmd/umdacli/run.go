package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stochago/umda/internal/optimization/objectives"
	"github.com/stochago/umda/internal/optimization/umda"
)

var (
	objectiveName string
	nVariables    int
	maxIter       int
	sizeGen       int
	alpha         float64
	seed          uint64
	workers       int
	exactPop      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single minimization",
	Long:  `Runs UMDA against a named benchmark objective and prints the best point found.`,
	RunE:  runMinimization,
}

func init() {
	runCmd.Flags().StringVar(&objectiveName, "objective", "sphere",
		fmt.Sprintf("Benchmark objective (%s)", strings.Join(objectives.Names(), ", ")))
	runCmd.Flags().IntVar(&nVariables, "vars", 2, "Number of variables")
	runCmd.Flags().IntVar(&maxIter, "iters", 100, "Max iterations")
	runCmd.Flags().IntVar(&sizeGen, "pop", 20, "Population size per generation")
	runCmd.Flags().Float64Var(&alpha, "alpha", 0.5, "Elite selection fraction in (0, 1]")
	runCmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Concurrent objective evaluations")
	runCmd.Flags().BoolVar(&exactPop, "exact-pop", false, "Hold the population at exactly --pop individuals")

	rootCmd.AddCommand(runCmd)
}

func runMinimization(cmd *cobra.Command, args []string) error {
	objective, err := objectives.Lookup(objectiveName)
	if err != nil {
		return err
	}

	logger.Info("starting minimization",
		zap.String("objective", objectiveName),
		zap.Int("vars", nVariables),
		zap.Int("iters", maxIter),
		zap.Int("pop", sizeGen),
		zap.Float64("alpha", alpha),
		zap.Uint64("seed", seed),
	)

	opt, err := umda.New(umda.Config{
		MaxIter:         maxIter,
		SizeGen:         sizeGen,
		NVariables:      nVariables,
		Alpha:           alpha,
		Workers:         workers,
		ExactPopulation: exactPop,
		Seed:            seed,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := opt.Minimize(cmd.Context(), objective, nil, nil)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	logger.Info("minimization complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("iterations", len(opt.History())),
		zap.Int("evaluations", result.Evaluations),
		zap.Float64("best_value", result.BestSolution.Value),
	)

	fmt.Printf("f = %g after %d evaluations (%.2fms)\n",
		result.BestSolution.Value, result.Evaluations, float64(elapsed.Microseconds())/1000)
	fmt.Printf("x = %v\n", result.BestSolution.Parameters)

	return nil
}
