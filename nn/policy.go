package nn

import (
	"fmt"
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/internal/sampling"
)

// startToken is fed to the policy before the first position.
const startToken = 0

// RNNPolicy is an autoregressive token policy: an embedding, an Elman
// recurrent layer and a softmax output layer.
//
//	h_i = tanh(E[x_i]·W_in + b_in + h_{i-1}·W_rec)
//	log p(· | x_<=i) = log_softmax(h_i·W_out + b_out)
type RNNPolicy struct {
	Vocab, EmbedDim, HiddenDim int

	Embed *autograd.Tensor // (vocab, embed)
	In    *Dense           // (embed, hidden)
	Rec   *autograd.Tensor // (hidden, hidden)
	Out   *Dense           // (hidden, vocab)
}

// NewRNNPolicy returns a randomly initialized policy.
func NewRNNPolicy(rng *rand.Rand, vocab, embedDim, hiddenDim int) *RNNPolicy {
	return &RNNPolicy{
		Vocab:     vocab,
		EmbedDim:  embedDim,
		HiddenDim: hiddenDim,
		Embed:     uniformParam(rng, vocab, embedDim, 1),
		In:        NewDense(rng, embedDim, hiddenDim),
		Rec:       uniformParam(rng, hiddenDim, hiddenDim, 1/float64(hiddenDim)),
		Out:       NewDense(rng, hiddenDim, vocab),
	}
}

// Params returns every trainable tensor in a fixed order.
func (p *RNNPolicy) Params() []*autograd.Tensor {
	params := []*autograd.Tensor{p.Embed}
	params = append(params, p.In.Params()...)
	params = append(params, p.Rec)
	return append(params, p.Out.Params()...)
}

// Clone returns a deep copy of the policy with independent parameter storage.
func (p *RNNPolicy) Clone() *RNNPolicy {
	return &RNNPolicy{
		Vocab:     p.Vocab,
		EmbedDim:  p.EmbedDim,
		HiddenDim: p.HiddenDim,
		Embed:     cloneParam(p.Embed),
		In:        &Dense{W: cloneParam(p.In.W), B: cloneParam(p.In.B)},
		Rec:       cloneParam(p.Rec),
		Out:       &Dense{W: cloneParam(p.Out.W), B: cloneParam(p.Out.B)},
	}
}

// Forward returns, for each position i of seqs, the (n, vocab)
// log-probabilities of the token at i given the tokens before it.
func (p *RNNPolicy) Forward(seqs [][]int) []*autograd.Tensor {
	if len(seqs) == 0 {
		return nil
	}

	return p.forward(p.Params(), seqs, len(seqs[0]))
}

func (p *RNNPolicy) forward(params []*autograd.Tensor, seqs [][]int, length int) []*autograd.Tensor {
	n := len(seqs)
	prev := make([]int, n)
	for j := range prev {
		prev[j] = startToken
	}

	h := autograd.Zeros(n, p.HiddenDim)
	result := make([]*autograd.Tensor, length)
	for i := 0; i < length; i++ {
		var logp *autograd.Tensor
		h, logp = p.step(params, h, prev)
		result[i] = logp

		prev = make([]int, n)
		for j, seq := range seqs {
			prev[j] = seq[i]
		}
	}

	return result
}

// step advances the recurrence by one position. params is either the live
// parameter set or a detached copy of it.
func (p *RNNPolicy) step(params []*autograd.Tensor, h *autograd.Tensor, prev []int) (*autograd.Tensor, *autograd.Tensor) {
	embed, inW, inB, rec, outW, outB := params[0], params[1], params[2], params[3], params[4], params[5]
	x := autograd.Gather(embed, prev)
	pre := autograd.Add(autograd.AddRow(autograd.MatMul(x, inW), inB), autograd.MatMul(h, rec))
	h = autograd.Tanh(pre)
	logits := autograd.AddRow(autograd.MatMul(h, outW), outB)
	return h, autograd.LogSoftmax(logits)
}

// Sample draws n sequences of the given length.
func (p *RNNPolicy) Sample(rng *rand.Rand, n, length int) [][]int {
	return p.Complete(rng, make([][]int, n), 0, length)
}

// Complete returns new sequences of the given length whose first t tokens
// are copied from prefix and whose remaining tokens are sampled from the policy.
// prefix is not modified.
func (p *RNNPolicy) Complete(rng *rand.Rand, prefix [][]int, t, length int) [][]int {
	if t > length {
		panic(fmt.Errorf("nn: prefix length %d exceeds sequence length %d", t, length))
	}

	params := make([]*autograd.Tensor, 0, 6)
	for _, param := range p.Params() {
		params = append(params, param.Detach())
	}

	n := len(prefix)
	result := make([][]int, n)
	for j := range result {
		result[j] = make([]int, length)
		copy(result[j], prefix[j][:t])
	}

	prev := make([]int, n)
	for j := range prev {
		prev[j] = startToken
	}

	h := autograd.Zeros(n, p.HiddenDim)
	for i := 0; i < length; i++ {
		var logp *autograd.Tensor
		h, logp = p.step(params, h, prev)
		prev = make([]int, n)
		for j := range result {
			if i >= t {
				result[j][i] = sampling.SampleLogProbs(rng, logp.RowData(j))
			}
			prev[j] = result[j][i]
		}
	}

	return result
}

func cloneParam(t *autograd.Tensor) *autograd.Tensor {
	c := t.Clone()
	return autograd.Param(c.Rows, c.Cols, c.Data)
}
