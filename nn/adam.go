package nn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/timpalpant/go-relax/autograd"
)

// ErrNonFiniteGradient is returned by Step when a gradient contains NaN or Inf.
var ErrNonFiniteGradient = errors.New("non-finite gradient")

// Adam implements the Adam optimizer (Kingma & Ba, 2014) with bias correction.
// Each instance owns its moment estimates and must only be used with a
// single parameter list.
type Adam struct {
	LearningRate float64
	Beta1, Beta2 float64
	Epsilon      float64

	m, v [][]float64
	t    int
}

// NewAdam returns an Adam optimizer with the conventional defaults
// (beta1 = 0.9, beta2 = 0.999, eps = 1e-8).
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}

// Step moves params in the direction that decreases the loss whose
// gradients are grads. Parameters are updated in place.
func (a *Adam) Step(params, grads []*autograd.Tensor) error {
	if len(params) != len(grads) {
		return errors.Errorf("adam: %d params but %d gradients", len(params), len(grads))
	}

	for i, g := range grads {
		if g.Len() != params[i].Len() {
			return errors.Errorf("adam: param %d has %d elements, gradient has %d", i, params[i].Len(), g.Len())
		}
		if !g.IsFinite() {
			return errors.Wrapf(ErrNonFiniteGradient, "param %d", i)
		}
	}

	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, p.Len())
			a.v[i] = make([]float64, p.Len())
		}
	}

	a.t++
	b1Corr := 1 - math.Pow(a.Beta1, float64(a.t))
	b2Corr := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g := range grads[i].Data {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			mHat := m[j] / b1Corr
			vHat := v[j] / b2Corr
			p.Data[j] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}

	return nil
}
