package relax

import (
	"math"
	"math/rand"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/timpalpant/go-relax/autograd"
)

// Estimate is the result of one generator gradient computation.
type Estimate struct {
	// Grads is the batch-mean gradient of the expected reward with respect
	// to the policy parameters (an ascent direction).
	Grads []*autograd.Tensor
	// Examples holds the combined per-example gradients.
	Examples *GradArena
	// MeanReward is the mean exponentiated reward over all (sequence, position) pairs.
	MeanReward float64
}

// GradientEstimator computes policy gradients under a fixed Mode.
type GradientEstimator struct {
	mode        Mode
	policy      Policy
	rollout     *RolloutEvaluator
	critic      Classifier
	cv          Classifier
	eta         float64
	temperature float64
	createGraph bool
	rng         *rand.Rand
}

// NewGradientEstimator returns an estimator for params.Mode. cv is the
// control-variate network and is required in RELAX mode only.
func NewGradientEstimator(params Params, policy Policy, rollout *RolloutEvaluator,
	critic, cv Classifier, rng *rand.Rand) (*GradientEstimator, error) {
	e := &GradientEstimator{
		mode:        params.Mode,
		policy:      policy,
		rollout:     rollout,
		critic:      critic,
		eta:         params.Eta,
		temperature: params.Temperature,
		rng:         rng,
	}

	switch params.Mode {
	case MLE:
	case REINFORCE, REBAR:
		if rollout == nil {
			return nil, errors.Errorf("%v requires a rollout evaluator", params.Mode)
		}
	case RELAX:
		if rollout == nil || cv == nil {
			return nil, errors.New("RELAX requires a rollout evaluator and a control-variate network")
		}
		e.cv = cv
		e.createGraph = true
	default:
		return nil, errors.Wrapf(ErrUnknownMode, "mode %d", int(params.Mode))
	}

	return e, nil
}

// MLE returns the gradient of the mean negative log-likelihood of batch
// (a descent direction) along with the loss.
func (e *GradientEstimator) MLE(batch [][]int) ([]*autograd.Tensor, float64, error) {
	loss := autograd.Scale(sumLogProb(e.policy.Forward(batch), batch), -1/float64(len(batch)))
	if !loss.IsFinite() {
		return nil, 0, errors.Wrap(ErrNonFinite, "MLE loss")
	}

	grads, err := autograd.Grad(loss, e.policy.Params(), false)
	if err != nil {
		return nil, 0, err
	}

	return grads, loss.Value(), nil
}

// sumLogProb returns Σ_j Σ_i log p(seqs[j][i]) as a 1x1 tensor.
func sumLogProb(logp []*autograd.Tensor, seqs [][]int) *autograd.Tensor {
	var total *autograd.Tensor
	for i, lp := range logp {
		s := autograd.Sum(autograd.Pick(lp, column(seqs, i)))
		if total == nil {
			total = s
		} else {
			total = autograd.Add(total, s)
		}
	}

	return total
}

func column(seqs [][]int, i int) []int {
	result := make([]int, len(seqs))
	for j, seq := range seqs {
		result[j] = seq[i]
	}

	return result
}

// Estimate computes the combined per-example gradients of a sampled batch.
// For example j with reward weights r_ji and control variate c:
//
//	g_j = ∇ Σ_i r_ji log p(b_ji) − c(z̃_j) ∇ Σ_i log p(b_ji) + ∇ c(z_j) − ∇ c(z̃_j)
//
// REINFORCE keeps only the first term. In RELAX mode the gradients stay
// attached to the control-variate network's parameters.
func (e *GradientEstimator) Estimate(seqs [][]int) (*Estimate, error) {
	if e.mode == MLE {
		return nil, errors.New("MLE has no reward gradient estimate")
	}

	logRewards, err := e.rollout.Rewards(seqs)
	if err != nil {
		return nil, err
	}
	weights := logRewards.Weights()

	theta := e.policy.Params()
	arena := NewGradArena(len(seqs), len(theta))
	var rewardSum float64
	for j, seq := range seqs {
		rewardSum += floats.Sum(weights[j])
		g, err := e.exampleGrad(theta, seq, weights[j])
		if err != nil {
			return nil, errors.Wrapf(err, "example %d", j)
		}

		arena.Set(j, g)
	}

	est := &Estimate{
		Grads:      arena.Mean(),
		Examples:   arena,
		MeanReward: rewardSum / float64(len(seqs)*len(seqs[0])),
	}

	for _, g := range est.Grads {
		if !g.IsFinite() {
			return nil, errors.Wrap(ErrNonFinite, "policy gradient")
		}
	}

	glog.V(2).Infof("%v estimate: mean reward %.4f", e.mode, est.MeanReward)
	return est, nil
}

func (e *GradientEstimator) exampleGrad(theta []*autograd.Tensor, seq []int, rewards []float64) ([]*autograd.Tensor, error) {
	one := [][]int{seq}
	logp := e.policy.Forward(one)

	var weighted *autograd.Tensor
	for i, lp := range logp {
		term := autograd.Scale(autograd.Pick(lp, []int{seq[i]}), rewards[i])
		if weighted == nil {
			weighted = term
		} else {
			weighted = autograd.Add(weighted, term)
		}
	}

	g1, err := autograd.Grad(weighted, theta, false)
	if err != nil {
		return nil, err
	}

	if e.mode == REINFORCE {
		return g1, nil
	}

	g2, err := autograd.Grad(sumLogProb(logp, one), theta, false)
	if err != nil {
		return nil, err
	}

	relaxed := NewRelaxedSample(e.rng, logp, seq, e.temperature)
	cz := e.controlVariate(relaxed.Z)
	czt := e.controlVariate(relaxed.ZTilde)
	if !cz.IsFinite() || !czt.IsFinite() {
		return nil, errors.Wrap(ErrNonFinite, "control variate")
	}

	g3, err := autograd.Grad(autograd.Sub(cz, czt), theta, e.createGraph)
	if err != nil {
		return nil, err
	}

	weight := czt
	if !e.createGraph {
		weight = czt.Detach()
	}

	result := make([]*autograd.Tensor, len(theta))
	for p := range theta {
		result[p] = autograd.Add(autograd.Sub(g1[p], autograd.MulScalar(g2[p], weight)), g3[p])
	}

	return result, nil
}

// controlVariate returns the 1x1 control variate c(x) of a relaxed sample:
// the control-variate network's probability of "real" (RELAX) or the
// critic's, scaled by η (REBAR).
func (e *GradientEstimator) controlVariate(x *autograd.Tensor) *autograd.Tensor {
	if e.mode == RELAX {
		return autograd.Exp(autograd.SliceCols(e.cv.Forward(x), 1, 1))
	}

	return autograd.Scale(autograd.Exp(autograd.SliceCols(e.critic.Forward(x), 1, 1)), e.eta)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
