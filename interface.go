package relax

import (
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/checkpoint"
	"github.com/timpalpant/go-relax/dataset"
)

// Policy is an autoregressive generator of fixed-length token sequences.
type Policy interface {
	// Sample draws n sequences of the given length.
	Sample(rng *rand.Rand, n, length int) [][]int
	// Complete returns new sequences whose first t tokens are copied from
	// prefix and whose remaining tokens are sampled from the policy.
	// The parameters used for completion are treated as constants.
	Complete(rng *rand.Rand, prefix [][]int, t, length int) [][]int
	// Forward returns, for each position i, the (n, V) log-probabilities of
	// the token at i given the tokens before it. The result is
	// differentiable in Params.
	Forward(seqs [][]int) []*autograd.Tensor
	// Params returns the trainable tensors in a fixed order.
	Params() []*autograd.Tensor
}

// Classifier is a two-way classifier over (n, L*V) encoded sequences.
// It serves as the critic and as the control-variate network.
type Classifier interface {
	// Forward returns (n, 2) class log-probabilities; column 1 is "real".
	// The result is differentiable in both x and Params.
	Forward(x *autograd.Tensor) *autograd.Tensor
	Params() []*autograd.Tensor
}

// DataSource iterates over batches of ground-truth sequences.
type DataSource interface {
	// Next returns the next batch, or false once the data is exhausted.
	Next() ([][]int, bool)
	// Reset rewinds the iterator to the first batch.
	Reset()
	// Len returns the total number of sequences.
	Len() int
}

// Evaluator scores a batch of generated sequences.
type Evaluator interface {
	Evaluate(samples [][]int) (dataset.Report, error)
}

// CheckpointStore persists generator parameters.
type CheckpointStore interface {
	// Save writes a fresh checkpoint and returns its path.
	Save(tag checkpoint.Tag, params []*autograd.Tensor) (string, error)
	// Load reads the checkpoint at path into params.
	Load(path string, params []*autograd.Tensor) (checkpoint.Tag, error)
}

// Observer receives training metrics at step boundaries. Observers never
// influence training.
type Observer interface {
	ObserveScalar(series string, step int, value float64)
	ObserveText(series string, step int, lines []string)
}
