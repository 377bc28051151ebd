package relax

import (
	"math"
	"math/rand"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/checkpoint"
	"github.com/timpalpant/go-relax/nn"
)

var (
	// ErrMissingWeights is returned when pretraining is disabled and the
	// pretrained generator weights cannot be loaded.
	ErrMissingWeights = errors.New("pretrained generator weights unavailable")
	// ErrShapeMismatch is returned when a network's dimensions do not agree
	// with the sequence length and vocabulary size.
	ErrShapeMismatch = errors.New("network shape mismatch")
)

// maxLoggedSamples bounds the generated lines sent to observers per evaluation.
const maxLoggedSamples = 10

// Models are the networks trained by a Trainer.
type Models struct {
	Policy Policy
	// Snapshot is an independent copy of Policy used for rollouts.
	Snapshot Policy
	Critic   Classifier
	// ControlVariate is required in RELAX mode and ignored otherwise.
	ControlVariate Classifier
}

// Trainer runs the phases of adversarial sequence training.
type Trainer struct {
	params    Params
	models    Models
	data      DataSource
	eval      Evaluator
	ckpt      CheckpointStore
	observers observerList
	rng       *rand.Rand

	genOpt    *nn.Adam
	rollout   *RolloutEvaluator
	estimator *GradientEstimator
	variance  *VarianceTracker
	disc      *DiscriminatorTrainer
}

// NewTrainer validates params and wires the training components.
// negativePath receives the critic pretraining negatives; it may be empty.
func NewTrainer(params Params, models Models, data DataSource, eval Evaluator,
	ckpt CheckpointStore, negativePath string, observers ...Observer) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var cv Classifier
	if params.Mode == RELAX {
		cv = models.ControlVariate
	}

	if err := checkShapes(params, models, cv); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(params.Seed))
	rollout, err := NewRolloutEvaluator(params, models.Policy, models.Snapshot, models.Critic, rng)
	if err != nil {
		return nil, err
	}

	estimator, err := NewGradientEstimator(params, models.Policy, rollout, models.Critic, cv, rng)
	if err != nil {
		return nil, err
	}

	glog.Infof("Policy has %d parameters", nn.NumParams(models.Policy.Params()))
	return &Trainer{
		params:    params,
		models:    models,
		data:      data,
		eval:      eval,
		ckpt:      ckpt,
		observers: observerList(observers),
		rng:       rng,
		genOpt:    nn.NewAdam(params.GenLearningRate),
		rollout:   rollout,
		estimator: estimator,
		variance:  NewVarianceTracker(params, cv),
		disc:      NewDiscriminatorTrainer(params, models.Critic, data, models.Policy, negativePath, rng),
	}, nil
}

// checkShapes runs one all-zeros sequence through every network and verifies
// that their dimensions agree with params. cv may be nil.
func checkShapes(params Params, models Models, cv Classifier) error {
	seqs := [][]int{make([]int, params.SeqLen)}
	policyShape := func() error {
		logp := models.Policy.Forward(seqs)
		if len(logp) != params.SeqLen {
			return errors.Errorf("%d positions, expected %d", len(logp), params.SeqLen)
		}

		for i, lp := range logp {
			if lp.Rows != 1 || lp.Cols != params.VocabSize {
				return errors.Errorf("position %d: %dx%d log-probabilities, expected 1x%d",
					i, lp.Rows, lp.Cols, params.VocabSize)
			}
		}

		return nil
	}

	if err := tryShape("policy", policyShape); err != nil {
		return err
	}

	classifiers := []struct {
		name string
		c    Classifier
	}{{"critic", models.Critic}, {"control variate", cv}}
	for _, nc := range classifiers {
		if nc.c == nil {
			continue
		}

		c := nc.c
		err := tryShape(nc.name, func() error {
			out := c.Forward(nn.OneHot(seqs, params.VocabSize))
			if out.Rows != 1 || out.Cols != 2 {
				return errors.Errorf("%dx%d output, expected 1x2", out.Rows, out.Cols)
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// tryShape runs check, converting both its error and any panic raised by
// mismatched tensor shapes into ErrShapeMismatch.
func tryShape(name string, check func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrShapeMismatch, "%s: %v", name, r)
		}
	}()

	if err := check(); err != nil {
		return errors.Wrapf(ErrShapeMismatch, "%s: %v", name, err)
	}

	return nil
}

// Sample draws n sequences from the current policy.
func (t *Trainer) Sample(n int) [][]int {
	return t.models.Policy.Sample(t.rng, n, t.params.SeqLen)
}

// Run executes every training phase in order. Any error aborts the run.
func (t *Trainer) Run() error {
	if err := t.Prepare(); err != nil {
		return err
	}

	if err := t.pretrainCritic(); err != nil {
		return err
	}

	return t.adversarial()
}

// Prepare obtains generator weights, either by supervised pretraining or by
// loading them from WeightsPath, and completes MLE training when the run
// is in MLE mode. Afterwards the policy can be sampled.
func (t *Trainer) Prepare() error {
	if t.params.PretrainGenerator {
		if err := t.pretrainGenerator(); err != nil {
			return err
		}
	} else if err := t.loadWeights(); err != nil {
		return err
	}

	t.rollout.SyncSnapshot()
	return t.finishMLE()
}

func (t *Trainer) loadWeights() error {
	tag, err := t.ckpt.Load(t.params.WeightsPath, t.models.Policy.Params())
	if err != nil {
		return errors.Wrapf(ErrMissingWeights, "%s: %v", t.params.WeightsPath, err)
	}

	glog.Infof("Loaded generator weights from %s (%s %d)", t.params.WeightsPath, tag.Phase, tag.Index)
	return nil
}

func (t *Trainer) pretrainGenerator() error {
	nBatches := numBatches(t.data.Len(), t.params.BatchSize)
	epochs := int(math.Ceil(t.params.PreEpochGen))
	for epoch := 0; epoch < epochs; epoch++ {
		limit := nBatches
		if frac := t.params.PreEpochGen - float64(epoch); frac < 1 {
			limit = int(frac * float64(nBatches))
		}

		t.data.Reset()
		var loss float64
		for i := 0; i < limit; i++ {
			batch, ok := t.data.Next()
			if !ok {
				break
			}

			var err error
			if loss, err = t.mleStep(batch); err != nil {
				return errors.Wrapf(err, "pretrain generator epoch %d", epoch)
			}
		}

		glog.Infof("Pretrain generator epoch %d: %d batches, loss %.4f", epoch, limit, loss)
		t.observers.scalar(SeriesMLELoss, epoch, loss)
		if err := t.evaluate(SeriesPretrainGoodness, SeriesPretrainKL, epoch); err != nil {
			return err
		}

		if err := t.checkpoint("preTrainG_epoch", epoch); err != nil {
			return err
		}
	}

	t.data.Reset()
	return nil
}

func numBatches(n, batchSize int) int {
	return (n + batchSize - 1) / batchSize
}

// finishMLE continues supervised training one batch per step in MLE mode,
// evaluating and checkpointing after every step.
func (t *Trainer) finishMLE() error {
	if t.params.Mode != MLE {
		return nil
	}

	for step := 0; step < t.params.FinishMLESteps; step++ {
		loss, err := t.mleStep(t.nextBatch())
		if err != nil {
			return errors.Wrapf(err, "finish MLE step %d", step)
		}

		glog.V(1).Infof("Finish MLE step %d: loss %.4f", step, loss)
		t.observers.scalar(SeriesFinishMLELoss, step, loss)
		if err := t.evaluate(SeriesFinishGoodness, SeriesFinishKL, step); err != nil {
			return err
		}

		if err := t.checkpoint("finishMLE_step", step); err != nil {
			return err
		}
	}

	return nil
}

// nextBatch returns the next ground-truth batch, wrapping around at the end.
func (t *Trainer) nextBatch() [][]int {
	batch, ok := t.data.Next()
	if !ok {
		t.data.Reset()
		batch, _ = t.data.Next()
	}

	return batch
}

func (t *Trainer) mleStep(batch [][]int) (float64, error) {
	grads, loss, err := t.estimator.MLE(batch)
	if err != nil {
		return 0, err
	}

	if err := t.genOpt.Step(t.models.Policy.Params(), grads); err != nil {
		return 0, err
	}

	return loss, nil
}

func (t *Trainer) pretrainCritic() error {
	if t.params.PreEpochDis == 0 {
		return nil
	}

	glog.Infof("Pretraining discriminator for %d epochs x %d iterations",
		t.params.PreEpochDis, t.params.PreIterDis)
	return t.disc.Pretrain(t.params.PreEpochDis, t.params.PreIterDis)
}

func (t *Trainer) adversarial() error {
	// The adversarial phase starts with fresh optimizer moments.
	t.genOpt = nn.NewAdam(t.params.GenLearningRate)
	t.disc.ResetOptimizer()

	last := t.params.TotalBatch - 1
	for batch := 0; batch < t.params.TotalBatch; batch++ {
		for round := 0; round < t.params.GSteps; round++ {
			if err := t.generatorRound(batch); err != nil {
				return errors.Wrapf(err, "batch %d round %d", batch, round)
			}
		}

		t.rollout.UpdateSnapshot()

		if batch%t.params.EvalEvery == 0 || batch == last {
			if err := t.evaluate(SeriesGoodness, SeriesKL, batch); err != nil {
				return err
			}
		}

		if batch%t.params.CheckpointEvery == 0 || batch == last {
			if err := t.checkpoint("G_batch", batch); err != nil {
				return err
			}
		}

		for epoch := 0; epoch < t.params.DEpochs; epoch++ {
			loss, _, err := t.disc.TrainEpoch(t.disc.FromPolicy())
			if err != nil {
				return errors.Wrapf(err, "batch %d discriminator epoch %d", batch, epoch)
			}

			t.observers.scalar(SeriesDiscriminator, batch, loss)
		}
	}

	return nil
}

// generatorRound performs one policy update. In MLE mode it is a supervised
// step on the next ground-truth batch.
func (t *Trainer) generatorRound(batch int) error {
	if t.params.Mode == MLE {
		loss, err := t.mleStep(t.nextBatch())
		if err != nil {
			return err
		}

		t.observers.scalar(SeriesMLELoss, batch, loss)
		return nil
	}

	seqs := t.Sample(t.params.BatchSize)
	est, err := t.estimator.Estimate(seqs)
	if err != nil {
		return err
	}

	t.observers.scalar(SeriesReward, batch, est.MeanReward)
	if t.params.TrackVariance() {
		loss, variance, err := t.variance.Update(est.Examples)
		if err != nil {
			return err
		}

		t.observers.scalar(SeriesVariance, batch, variance)
		t.observers.scalar(SeriesVarianceLoss, batch, loss)
	}

	// Ascend the reward by descending its negation.
	descent := make([]*autograd.Tensor, len(est.Grads))
	for i, g := range est.Grads {
		descent[i] = autograd.Scale(g, -1)
	}

	return t.genOpt.Step(t.models.Policy.Params(), descent)
}

func (t *Trainer) evaluate(goodnessSeries, klSeries string, step int) error {
	report, err := t.eval.Evaluate(t.Sample(t.params.GeneratedNum))
	if err != nil {
		return errors.Wrapf(err, "evaluate step %d", step)
	}

	glog.Infof("Step %d: goodness %.4f, KL %.4f", step, report.Goodness, report.KL)
	glog.V(1).Infof("Step %d character distribution: %v", step, report.CharFreq)

	t.observers.scalar(goodnessSeries, step, report.Goodness)
	t.observers.scalar(klSeries, step, report.KL)
	lines := report.Lines
	if len(lines) > maxLoggedSamples {
		lines = lines[:maxLoggedSamples]
	}
	t.observers.text(SeriesSamples, step, lines)
	return nil
}

func (t *Trainer) checkpoint(phase string, index int) error {
	tag := checkpoint.Tag{
		Mode:   t.params.Mode.String(),
		Spaces: t.params.Spaces,
		SeqLen: t.params.SeqLen,
		Phase:  phase,
		Index:  index,
	}

	if _, err := t.ckpt.Save(tag, t.models.Policy.Params()); err != nil {
		return errors.Wrapf(err, "checkpoint %s %d", phase, index)
	}

	return nil
}
