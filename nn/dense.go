// Package nn implements the small differentiable models used for adversarial
// sequence training: a recurrent token policy, MLP classifiers for the critic
// and the control-variate network, and an Adam optimizer.
package nn

import (
	"math"
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
)

// Dense is a fully connected layer y = x·W + b.
type Dense struct {
	W *autograd.Tensor // (in, out)
	B *autograd.Tensor // (1, out)
}

// NewDense returns a Dense layer with weights drawn uniformly from
// [-1/sqrt(in), 1/sqrt(in)] and zero bias.
func NewDense(rng *rand.Rand, in, out int) *Dense {
	return &Dense{
		W: uniformParam(rng, in, out, 1/math.Sqrt(float64(in))),
		B: autograd.Param(1, out, make([]float64, out)),
	}
}

// Forward applies the layer to a (n, in) batch.
func (d *Dense) Forward(x *autograd.Tensor) *autograd.Tensor {
	return autograd.AddRow(autograd.MatMul(x, d.W), d.B)
}

// Params returns the layer's trainable tensors.
func (d *Dense) Params() []*autograd.Tensor {
	return []*autograd.Tensor{d.W, d.B}
}

func uniformParam(rng *rand.Rand, rows, cols int, scale float64) *autograd.Tensor {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}

	return autograd.Param(rows, cols, data)
}

// NumParams returns the total number of scalar parameters.
func NumParams(params []*autograd.Tensor) int {
	n := 0
	for _, p := range params {
		n += p.Len()
	}

	return n
}

// OneHot encodes a batch of token sequences as an (n, length*vocab) constant,
// with position i of each sequence occupying columns [i*vocab, (i+1)*vocab).
func OneHot(seqs [][]int, vocab int) *autograd.Tensor {
	length := 0
	if len(seqs) > 0 {
		length = len(seqs[0])
	}

	cols := length * vocab
	data := make([]float64, len(seqs)*cols)
	for j, seq := range seqs {
		for i, tok := range seq {
			data[j*cols+i*vocab+tok] = 1
		}
	}

	return autograd.New(len(seqs), cols, data)
}
