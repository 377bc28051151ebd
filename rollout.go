package relax

import (
	"math"
	"math/rand"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/nn"
)

var (
	// ErrNonFinite is returned when a reward, gradient or loss is NaN or infinite.
	ErrNonFinite = errors.New("non-finite value")
	// ErrAliasedSnapshot is returned when the rollout snapshot shares
	// parameter storage with the live policy.
	ErrAliasedSnapshot = errors.New("rollout snapshot aliases live policy parameters")
)

// LogScores are critic log-probabilities of "real", indexed by
// [sequence][position].
type LogScores [][]float64

// Weights exponentiates the log-scores into multiplicative reward weights.
// This is the only place reward log-scores are exponentiated.
func (s LogScores) Weights() [][]float64 {
	result := make([][]float64, len(s))
	for j, row := range s {
		result[j] = make([]float64, len(row))
		for i, v := range row {
			result[j][i] = math.Exp(v)
		}
	}

	return result
}

// RolloutEvaluator estimates the critic's expected score of a partially
// generated sequence by completing it with a frozen snapshot of the policy.
type RolloutEvaluator struct {
	live     Policy
	snapshot Policy
	critic   Classifier

	vocab      int
	length     int
	rolloutNum int
	rate       float64
	rng        *rand.Rand
}

// NewRolloutEvaluator returns a RolloutEvaluator completing sequences with
// snapshot, which must be an independent copy of live.
func NewRolloutEvaluator(params Params, live, snapshot Policy, critic Classifier, rng *rand.Rand) (*RolloutEvaluator, error) {
	if err := checkNotAliased(live.Params(), snapshot.Params()); err != nil {
		return nil, err
	}

	return &RolloutEvaluator{
		live:       live,
		snapshot:   snapshot,
		critic:     critic,
		vocab:      params.VocabSize,
		length:     params.SeqLen,
		rolloutNum: params.RolloutNum,
		rate:       params.UpdateRate,
		rng:        rng,
	}, nil
}

func checkNotAliased(live, snapshot []*autograd.Tensor) error {
	if len(live) != len(snapshot) {
		return errors.Errorf("snapshot has %d params, live policy has %d", len(snapshot), len(live))
	}

	for i := range live {
		if live[i] == snapshot[i] || (live[i].Len() > 0 && &live[i].Data[0] == &snapshot[i].Data[0]) {
			return errors.Wrapf(ErrAliasedSnapshot, "param %d", i)
		}

		if live[i].Len() != snapshot[i].Len() {
			return errors.Errorf("param %d: snapshot has %d values, live policy has %d",
				i, snapshot[i].Len(), live[i].Len())
		}
	}

	return nil
}

// Score returns the critic's log-probability that each sequence is real.
func (r *RolloutEvaluator) Score(seqs [][]int) ([]float64, error) {
	return criticScore(r.critic, seqs, r.vocab)
}

func criticScore(critic Classifier, seqs [][]int, vocab int) ([]float64, error) {
	logp := critic.Forward(nn.OneHot(seqs, vocab))
	scores := make([]float64, len(seqs))
	for j := range scores {
		scores[j] = logp.At(j, 1)
		if !finite(scores[j]) {
			return nil, errors.Wrapf(ErrNonFinite, "critic score of sequence %d", j)
		}
	}

	return scores, nil
}

// Reward returns the estimated log-score of each sequence given its first
// t tokens. When t equals the sequence length the sequences are scored
// directly; otherwise the estimate is the mean over RolloutNum completions.
func (r *RolloutEvaluator) Reward(seqs [][]int, t int) ([]float64, error) {
	if t < 0 || t > r.length {
		return nil, errors.Errorf("prefix length %d out of range [0, %d]", t, r.length)
	}

	if t == r.length {
		return r.Score(seqs)
	}

	total := make([]float64, len(seqs))
	for k := 0; k < r.rolloutNum; k++ {
		completed := r.snapshot.Complete(r.rng, seqs, t, r.length)
		scores, err := r.Score(completed)
		if err != nil {
			return nil, errors.Wrapf(err, "rollout %d at t=%d", k, t)
		}

		floats.Add(total, scores)
	}

	floats.Scale(1/float64(r.rolloutNum), total)
	return total, nil
}

// Rewards returns the per-position reward log-scores of a batch: entry
// [j][i] is the reward of sequence j given its first i+1 tokens.
func (r *RolloutEvaluator) Rewards(seqs [][]int) (LogScores, error) {
	result := make(LogScores, len(seqs))
	for j := range result {
		result[j] = make([]float64, r.length)
	}

	for i := 0; i < r.length; i++ {
		rewards, err := r.Reward(seqs, i+1)
		if err != nil {
			return nil, err
		}

		for j, v := range rewards {
			result[j][i] = v
		}
	}

	glog.V(2).Infof("Computed rollout rewards for %d sequences", len(seqs))
	return result, nil
}

// UpdateSnapshot moves the snapshot towards the live policy:
// snapshot ← rate·live + (1−rate)·snapshot.
//
// It must be called once per generator macro-step, after that step's
// rollouts have been computed.
func (r *RolloutEvaluator) UpdateSnapshot() {
	blendParams(r.snapshot.Params(), r.live.Params(), r.rate)
}

// SyncSnapshot copies the live parameters into the snapshot.
func (r *RolloutEvaluator) SyncSnapshot() {
	blendParams(r.snapshot.Params(), r.live.Params(), 1)
}

func blendParams(dst, src []*autograd.Tensor, rate float64) {
	for i, d := range dst {
		switch rate {
		case 0:
		case 1:
			copy(d.Data, src[i].Data)
		default:
			floats.Scale(1-rate, d.Data)
			floats.AddScaled(d.Data, rate, src[i].Data)
		}
	}
}
