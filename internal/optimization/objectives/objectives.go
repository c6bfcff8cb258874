// Package objectives provides well-known benchmark objective functions used
// by the CLI, the server demo mode and the test suite.
package objectives

import (
	"fmt"
	"math"
	"sort"

	"github.com/stochago/umda/internal/optimization"
)

// Sphere is f(x) = sum(x_i^2), global minimum 0 at the origin.
func Sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// Rosenbrock is the classic banana-valley function, global minimum 0 at
// (1, ..., 1).
func Rosenbrock(x []float64) (float64, error) {
	if len(x) < 2 {
		return 0, fmt.Errorf("rosenbrock needs at least 2 variables, got %d", len(x))
	}
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

// Rastrigin is highly multimodal, global minimum 0 at the origin.
func Rastrigin(x []float64) (float64, error) {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum, nil
}

// StyblinskiTang has its global minimum of about -39.166*n at
// (-2.9035, ..., -2.9035).
func StyblinskiTang(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v*v*v*v - 16*v*v + 5*v
	}
	return sum / 2, nil
}

var registry = map[string]optimization.ObjectiveFunc{
	"sphere":          Sphere,
	"rosenbrock":      Rosenbrock,
	"rastrigin":       Rastrigin,
	"styblinski-tang": StyblinskiTang,
}

// Lookup returns the named benchmark objective.
func Lookup(name string) (optimization.ObjectiveFunc, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q (available: %v)", name, Names())
	}
	return fn, nil
}

// Names lists the registered benchmark objectives in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
