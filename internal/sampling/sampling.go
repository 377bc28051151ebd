package sampling

import (
	"fmt"
	"math"
	"math/rand"
)

const tol = 1e-3

// SampleOne returns the first element i of pv where sum(pv[:i+1]) > x.
func SampleOne(pv []float64, x float64) int {
	var cumProb float64
	for i, p := range pv {
		cumProb += p
		if cumProb > x {
			return i
		}
	}

	if cumProb < 1.0-tol { // Leave room for floating point error.
		panic(fmt.Errorf("probability distribution does not sum to 1! x=%v, pv=%v", x, pv))
	}

	return len(pv) - 1
}

// SampleLogProbs samples an index from a distribution given as log-probabilities.
func SampleLogProbs(rng *rand.Rand, logp []float64) int {
	pv := make([]float64, len(logp))
	for i, lp := range logp {
		pv[i] = math.Exp(lp)
	}

	return SampleOne(pv, rng.Float64())
}

// Uniform returns n draws from the open interval (0, 1), suitable as Gumbel noise.
func Uniform(rng *rand.Rand, n int) []float64 {
	result := make([]float64, n)
	for i := range result {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		result[i] = u
	}

	return result
}

// ConditionalGumbel returns a sample z of Gumbel-perturbed logits
// z_k = log θ_k - log(-log u_k), conditioned on argmax z = b, using the
// reparameterisation of Tucker et al. (2017):
//
//	z_b = -log(-log v_b)
//	z_k = -log(-log v_k / θ_k - log v_b),   k != b
//
// θ must be a normalized probability vector and v uniform noise.
func ConditionalGumbel(theta []float64, b int, v []float64) []float64 {
	z := make([]float64, len(theta))
	vb := -math.Log(v[b])
	for k := range theta {
		if k == b {
			z[k] = -math.Log(vb)
		} else {
			z[k] = -math.Log(-math.Log(v[k])/theta[k] + vb)
		}
	}

	return z
}
