package relax

import (
	"math/rand"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/dataset"
	"github.com/timpalpant/go-relax/nn"
)

// NegativeSource returns n generated (fake) sequences.
type NegativeSource func(n int) [][]int

// DiscriminatorTrainer trains the critic to separate ground-truth sequences
// from generated ones.
type DiscriminatorTrainer struct {
	critic    Classifier
	opt       *nn.Adam
	lr        float64
	positives DataSource
	policy    Policy

	vocab        int
	length       int
	generatedNum int
	negativePath string
	rng          *rand.Rand
}

// NewDiscriminatorTrainer returns a trainer for critic over the positive
// data. negativePath, if set, receives the pool of generated sequences used
// for critic pretraining.
func NewDiscriminatorTrainer(params Params, critic Classifier, positives DataSource,
	policy Policy, negativePath string, rng *rand.Rand) *DiscriminatorTrainer {
	return &DiscriminatorTrainer{
		critic:       critic,
		opt:          nn.NewAdam(params.DisLearningRate),
		lr:           params.DisLearningRate,
		positives:    positives,
		policy:       policy,
		vocab:        params.VocabSize,
		length:       params.SeqLen,
		generatedNum: params.GeneratedNum,
		negativePath: negativePath,
		rng:          rng,
	}
}

// Steps returns the number of optimizer steps taken so far.
func (d *DiscriminatorTrainer) Steps() int {
	return d.opt.Steps()
}

// ResetOptimizer discards the optimizer state, including its step count.
func (d *DiscriminatorTrainer) ResetOptimizer() {
	d.opt = nn.NewAdam(d.lr)
}

// Loss returns the summed binary cross-entropy of classifying pos as real
// and neg as fake.
func (d *DiscriminatorTrainer) Loss(pos, neg [][]int) *autograd.Tensor {
	posLogp := d.critic.Forward(nn.OneHot(pos, d.vocab))
	negLogp := d.critic.Forward(nn.OneHot(neg, d.vocab))
	realLoss := autograd.Scale(autograd.Sum(autograd.SliceCols(posLogp, 1, 1)), -1/float64(len(pos)))
	fakeLoss := autograd.Scale(autograd.Sum(autograd.SliceCols(negLogp, 0, 1)), -1/float64(len(neg)))
	return autograd.Add(realLoss, fakeLoss)
}

// Step takes one optimizer step on a positive and a negative batch.
func (d *DiscriminatorTrainer) Step(pos, neg [][]int) (float64, error) {
	loss := d.Loss(pos, neg)
	if !loss.IsFinite() {
		return 0, errors.Wrap(ErrNonFinite, "discriminator loss")
	}

	grads, err := autograd.Grad(loss, d.critic.Params(), false)
	if err != nil {
		return 0, err
	}

	if err := d.opt.Step(d.critic.Params(), grads); err != nil {
		return 0, errors.Wrap(err, "discriminator step")
	}

	return loss.Value(), nil
}

// TrainEpoch makes one pass over the positive data, pairing each positive
// batch with an equal-size batch from negatives. The positive iterator is
// reset before and after the pass. It returns the last loss and the number
// of optimizer steps taken.
func (d *DiscriminatorTrainer) TrainEpoch(negatives NegativeSource) (float64, int, error) {
	d.positives.Reset()
	defer d.positives.Reset()

	var loss float64
	steps := 0
	for pos, ok := d.positives.Next(); ok; pos, ok = d.positives.Next() {
		var err error
		loss, err = d.Step(pos, negatives(len(pos)))
		if err != nil {
			return loss, steps, errors.Wrapf(err, "batch %d", steps)
		}

		steps++
	}

	glog.V(1).Infof("Discriminator epoch: %d steps, loss %.4f", steps, loss)
	return loss, steps, nil
}

// FromPolicy returns a NegativeSource sampling fresh sequences from the policy.
func (d *DiscriminatorTrainer) FromPolicy() NegativeSource {
	return func(n int) [][]int {
		return d.policy.Sample(d.rng, n, d.length)
	}
}

// FromPool returns a NegativeSource cycling through a fixed pool of sequences.
func FromPool(pool [][]int) NegativeSource {
	i := 0
	return func(n int) [][]int {
		result := make([][]int, n)
		for k := range result {
			result[k] = pool[i]
			i = (i + 1) % len(pool)
		}

		return result
	}
}

// Pretrain trains the critic for the given number of epochs. Each epoch
// generates a fresh pool of negatives and makes iters passes over the
// positive data against it.
func (d *DiscriminatorTrainer) Pretrain(epochs, iters int) error {
	for epoch := 0; epoch < epochs; epoch++ {
		pool := d.policy.Sample(d.rng, d.generatedNum, d.length)
		if d.negativePath != "" {
			if err := dataset.WriteSequences(d.negativePath, pool); err != nil {
				return errors.Wrap(err, "write negative samples")
			}
		}

		negatives := FromPool(pool)
		for iter := 0; iter < iters; iter++ {
			loss, _, err := d.TrainEpoch(negatives)
			if err != nil {
				return errors.Wrapf(err, "pretrain epoch %d iter %d", epoch, iter)
			}

			glog.Infof("Pretrain discriminator epoch %d iter %d: loss %.4f", epoch, iter, loss)
		}
	}

	return nil
}
