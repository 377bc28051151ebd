package relax

import (
	"math"
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/internal/sampling"
)

// RelaxedSample is a continuous surrogate for one sampled sequence. Each
// field is a (1, L*V) tensor holding softmax(z/τ) for every position,
// differentiable in the policy's log-probabilities.
type RelaxedSample struct {
	// Z is the unconditional relaxation z = log θ + g, where the Gumbel
	// noise g is drawn consistently with the sampled tokens.
	Z *autograd.Tensor
	// ZTilde is the relaxation conditioned on the sampled tokens.
	ZTilde *autograd.Tensor
}

// NewRelaxedSample builds the relaxations of seq from its per-position
// (1, V) log-probabilities.
func NewRelaxedSample(rng *rand.Rand, logp []*autograd.Tensor, seq []int, temperature float64) RelaxedSample {
	zs := make([]*autograd.Tensor, len(logp))
	zts := make([]*autograd.Tensor, len(logp))
	for i, lp := range logp {
		z, zt := relaxPosition(rng, lp, seq[i])
		zs[i] = autograd.Softmax(autograd.Scale(z, 1/temperature))
		zts[i] = autograd.Softmax(autograd.Scale(zt, 1/temperature))
	}

	return RelaxedSample{
		Z:      autograd.ConcatCols(zs...),
		ZTilde: autograd.ConcatCols(zts...),
	}
}

// relaxPosition returns the unconditional and conditional Gumbel-perturbed
// logits of a single (1, V) log-probability row whose sampled token is b.
func relaxPosition(rng *rand.Rand, logp *autograd.Tensor, b int) (*autograd.Tensor, *autograd.Tensor) {
	nV := logp.Cols
	theta := make([]float64, nV)
	for k, lp := range logp.Data {
		theta[k] = math.Exp(lp)
	}

	// A draw of z given argmax z = b is a draw of z consistent with b.
	zb := sampling.ConditionalGumbel(theta, b, sampling.Uniform(rng, nV))
	noise := make([]float64, nV)
	for k := range noise {
		noise[k] = zb[k] - logp.Data[k]
	}
	z := autograd.Add(logp, autograd.New(1, nV, noise))

	//  z̃_b = −log(−log v_b)
	//  z̃_k = −log(−log v_k / θ_k − log v_b)
	v := sampling.Uniform(rng, nV)
	negLogV := make([]float64, nV)
	for k := range v {
		negLogV[k] = -math.Log(v[k])
	}

	mask := make([]float64, nV)
	fixed := make([]float64, nV)
	mask[b] = 1
	fixed[b] = -math.Log(negLogV[b])
	keep := make([]float64, nV)
	for k := range keep {
		keep[k] = 1 - mask[k]
	}

	theta1 := autograd.Exp(logp)
	inner := autograd.AddConst(autograd.Div(autograd.New(1, nV, negLogV), theta1), negLogV[b])
	free := autograd.Neg(autograd.Log(inner))
	zt := autograd.Add(autograd.Mul(free, autograd.New(1, nV, keep)), autograd.New(1, nV, fixed))

	return z, zt
}
