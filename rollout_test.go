package relax

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

func TestRolloutEvaluator_FullPrefixIsDirectScore(t *testing.T) {
	p := testParams(REINFORCE)
	p.RolloutNum = 1
	m := newTestModels(p, 1)
	rollout, err := NewRolloutEvaluator(p, m.Policy, m.Snapshot, m.Critic, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}

	seqs := testData[:4]
	direct, err := criticScore(m.Critic, seqs, p.VocabSize)
	if err != nil {
		t.Fatal(err)
	}

	reward, err := rollout.Reward(seqs, p.SeqLen)
	if err != nil {
		t.Fatal(err)
	}

	for j := range seqs {
		if reward[j] != direct[j] {
			t.Errorf("sequence %d: expected %v, got %v", j, direct[j], reward[j])
		}
	}
}

func TestRolloutEvaluator_Rewards(t *testing.T) {
	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	rollout, err := NewRolloutEvaluator(p, m.Policy, m.Snapshot, m.Critic, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}

	seqs := [][]int{{0, 3, 1}, {2, 4, 2}}
	rewards, err := rollout.Rewards(seqs)
	if err != nil {
		t.Fatal(err)
	}

	if len(rewards) != 2 || len(rewards[0]) != p.SeqLen {
		t.Fatalf("expected 2x%d rewards, got %v", p.SeqLen, rewards)
	}

	for j, row := range rewards {
		for i, r := range row {
			if r > 0 || math.IsNaN(r) {
				t.Errorf("reward [%d][%d] = %v is not a log-probability", j, i, r)
			}
		}
	}

	if seqs[0][1] != 3 || seqs[1][2] != 2 {
		t.Errorf("rollouts modified their input: %v", seqs)
	}

	if _, err := rollout.Reward(seqs, p.SeqLen+1); err == nil {
		t.Error("expected error for prefix longer than the sequence")
	}
}

func TestLogScores_WeightsExponentiateOnce(t *testing.T) {
	s := LogScores{{0, math.Log(2)}, {math.Log(0.5), -1}}
	expected := [][]float64{{1, 2}, {0.5, math.Exp(-1)}}
	w := s.Weights()
	for j := range expected {
		for i := range expected[j] {
			if math.Abs(w[j][i]-expected[j][i]) > 1e-12 {
				t.Errorf("[%d][%d]: expected %v, got %v", j, i, expected[j][i], w[j][i])
			}
		}
	}
}

func TestNewRolloutEvaluator_RejectsAliasedSnapshot(t *testing.T) {
	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	_, err := NewRolloutEvaluator(p, m.Policy, m.Policy, m.Critic, rand.New(rand.NewSource(2)))
	if errors.Cause(err) != ErrAliasedSnapshot {
		t.Errorf("expected ErrAliasedSnapshot, got %v", err)
	}
}

func TestUpdateSnapshot(t *testing.T) {
	for _, rate := range []float64{0, 0.8, 1} {
		p := testParams(REINFORCE)
		p.UpdateRate = rate
		m := newTestModels(p, 1)
		// Move the live policy away from the snapshot.
		for _, param := range m.Policy.Params() {
			for k := range param.Data {
				param.Data[k] += 1
			}
		}

		before := newTestModels(p, 1).Snapshot.Params()
		rollout, err := NewRolloutEvaluator(p, m.Policy, m.Snapshot, m.Critic, rand.New(rand.NewSource(2)))
		if err != nil {
			t.Fatal(err)
		}

		for step := 0; step < 3; step++ {
			rollout.UpdateSnapshot()
		}

		live, snap := m.Policy.Params(), m.Snapshot.Params()
		switch rate {
		case 0:
			if !paramsEqual(snap, before) {
				t.Error("rate 0: snapshot changed")
			}
		case 1:
			if !paramsEqual(snap, live) {
				t.Error("rate 1: snapshot differs from live")
			}
		default:
			// After k updates the gap shrinks by (1-rate)^k.
			gap := math.Pow(1-rate, 3)
			got := live[0].Data[0] - snap[0].Data[0]
			if math.Abs(got-gap) > 1e-9 {
				t.Errorf("rate %v: expected gap %v, got %v", rate, gap, got)
			}
		}
	}
}

func TestRolloutEvaluator_NonFiniteScore(t *testing.T) {
	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	m.Critic = constantClassifier{math.NaN()}
	rollout, err := NewRolloutEvaluator(p, m.Policy, m.Snapshot, m.Critic, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := rollout.Rewards(testData[:2]); errors.Cause(err) != ErrNonFinite {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
}
