package relax

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/timpalpant/go-relax/autograd"
)

// GradArena holds one combined gradient per example of a batch, keyed by
// example index and parameter position. An arena belongs to a single step
// and each example's gradient is written exactly once.
type GradArena struct {
	nParams int
	grads   [][]*autograd.Tensor
}

// NewGradArena returns an empty arena for the given number of examples.
func NewGradArena(examples, nParams int) *GradArena {
	return &GradArena{
		nParams: nParams,
		grads:   make([][]*autograd.Tensor, examples),
	}
}

// Set stores the gradient of example j. It panics if example j was already
// set or if g does not have one tensor per parameter.
func (a *GradArena) Set(j int, g []*autograd.Tensor) {
	if a.grads[j] != nil {
		panic(fmt.Errorf("gradient of example %d set twice", j))
	}

	if len(g) != a.nParams {
		panic(fmt.Errorf("example %d: got %d gradients for %d params", j, len(g), a.nParams))
	}

	a.grads[j] = g
}

// Len returns the number of examples.
func (a *GradArena) Len() int {
	return len(a.grads)
}

// Example returns the gradient of example j. The tensors may be attached to
// the control-variate network's graph.
func (a *GradArena) Example(j int) []*autograd.Tensor {
	return a.grads[j]
}

// Flat returns the values of example j's gradient concatenated over parameters.
func (a *GradArena) Flat(j int) []float64 {
	var result []float64
	for _, g := range a.grads[j] {
		result = append(result, g.Data...)
	}

	return result
}

// Mean returns the detached mean gradient over all examples.
func (a *GradArena) Mean() []*autograd.Tensor {
	result := make([]*autograd.Tensor, a.nParams)
	for p := range result {
		first := a.grads[0][p]
		data := make([]float64, first.Len())
		for _, g := range a.grads {
			floats.Add(data, g[p].Data)
		}

		floats.Scale(1/float64(len(a.grads)), data)
		result[p] = autograd.New(first.Rows, first.Cols, data)
	}

	return result
}
