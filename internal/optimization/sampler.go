package optimization

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws batches of candidate points from a per-dimension independent
// normal model. It is the injected randomness collaborator: optimizers never
// touch a process-global random source, so a seeded Sampler makes a whole run
// reproducible.
type Sampler interface {
	// Sample draws n points. mu and sigma must have equal length; each output
	// point has one independent normal draw per dimension.
	Sample(mu, sigma []float64, n int) [][]float64
}

// GaussianSampler samples from independent univariate normals over a single
// PCG source shared across dimensions.
type GaussianSampler struct {
	src rand.Source
}

// NewGaussianSampler returns a sampler seeded for reproducible runs.
func NewGaussianSampler(seed uint64) *GaussianSampler {
	return &GaussianSampler{src: rand.NewPCG(seed, seed)}
}

// Sample implements Sampler.
func (g *GaussianSampler) Sample(mu, sigma []float64, n int) [][]float64 {
	dists := make([]distuv.Normal, len(mu))
	for j := range mu {
		dists[j] = distuv.Normal{Mu: mu[j], Sigma: sigma[j], Src: g.src}
	}

	out := make([][]float64, n)
	for i := range out {
		point := make([]float64, len(mu))
		for j := range point {
			point[j] = dists[j].Rand()
		}
		out[i] = point
	}
	return out
}
