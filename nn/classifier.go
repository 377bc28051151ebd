package nn

import (
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
)

// MLPClassifier is a two-way classifier over flattened (length*vocab)
// sequence encodings. Inputs may be one-hot or relaxed (rows of
// probabilities), which lets the same model score both discrete and
// continuous samples.
type MLPClassifier struct {
	Layers []*Dense
}

// NewMLPClassifier returns a classifier with tanh hidden layers of the given
// sizes followed by a 2-way log-softmax output.
func NewMLPClassifier(rng *rand.Rand, inputDim int, hidden ...int) *MLPClassifier {
	var layers []*Dense
	in := inputDim
	for _, h := range hidden {
		layers = append(layers, NewDense(rng, in, h))
		in = h
	}

	layers = append(layers, NewDense(rng, in, 2))
	return &MLPClassifier{Layers: layers}
}

// Forward returns (n, 2) class log-probabilities; column 1 is "real".
func (c *MLPClassifier) Forward(x *autograd.Tensor) *autograd.Tensor {
	for i, layer := range c.Layers {
		x = layer.Forward(x)
		if i < len(c.Layers)-1 {
			x = autograd.Tanh(x)
		}
	}

	return autograd.LogSoftmax(x)
}

// Params returns every trainable tensor in a fixed order.
func (c *MLPClassifier) Params() []*autograd.Tensor {
	var params []*autograd.Tensor
	for _, layer := range c.Layers {
		params = append(params, layer.Params()...)
	}

	return params
}
