package relax

import (
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/timpalpant/go-relax/checkpoint"
	"github.com/timpalpant/go-relax/dataset"
	"github.com/timpalpant/go-relax/nn"
)

func newTestTrainer(t *testing.T, p Params, m Models, dir string, observers ...Observer) *Trainer {
	store, err := checkpoint.NewStore(filepath.Join(dir, "checkpoints"))
	if err != nil {
		t.Fatal(err)
	}

	vocab := dataset.NewVocabulary(p.Alphabet)
	eval := dataset.NewEvaluator(vocab, testData, filepath.Join(dir, "eval.data"), p.Spaces)
	loader := dataset.NewLoader(testData, p.BatchSize)
	trainer, err := NewTrainer(p, m, loader, eval, store, filepath.Join(dir, "negative.data"), observers...)
	if err != nil {
		t.Fatal(err)
	}

	return trainer
}

func TestTrainer_SampleWithoutAdversarialLoop(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-trainer-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	p := testParams(RELAX)
	store, err := checkpoint.NewStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	weights, err := store.Save(checkpoint.Tag{Mode: "MLE", SeqLen: p.SeqLen, Phase: "preTrainG_epoch"},
		newTestModels(p, 7).Policy.Params())
	if err != nil {
		t.Fatal(err)
	}

	p.PretrainGenerator = false
	p.WeightsPath = weights
	p.TotalBatch = 0

	var samples [][][]int
	for _, initSeed := range []int64{1, 2} {
		trainer := newTestTrainer(t, p, newTestModels(p, initSeed), tmpDir)
		if err := trainer.Run(); err != nil {
			t.Fatal(err)
		}

		samples = append(samples, trainer.Sample(4))
	}

	first := samples[0]
	if len(first) != 4 {
		t.Fatalf("expected 4 sequences, got %d", len(first))
	}
	for j, seq := range first {
		if len(seq) != 3 {
			t.Errorf("sequence %d: expected length 3, got %d", j, len(seq))
		}
		for _, tok := range seq {
			if tok < 0 || tok >= 5 {
				t.Errorf("sequence %d: token %d out of range", j, tok)
			}
		}
		for i := range seq {
			if samples[1][j][i] != seq[i] {
				t.Errorf("expected deterministic samples, got %v and %v", first, samples[1])
			}
		}
	}
}

func TestTrainer_MissingWeights(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-trainer-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	p := testParams(REINFORCE)
	p.PretrainGenerator = false
	p.WeightsPath = filepath.Join(tmpDir, "missing.ckpt")
	trainer := newTestTrainer(t, p, newTestModels(p, 1), tmpDir)
	if err := trainer.Run(); errors.Cause(err) != ErrMissingWeights {
		t.Errorf("expected ErrMissingWeights, got %v", err)
	}
}

func TestTrainer_Run(t *testing.T) {
	for _, mode := range []Mode{MLE, REINFORCE, REBAR, RELAX} {
		tmpDir, err := ioutil.TempDir("", "relax-trainer-")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(tmpDir)

		p := testParams(mode)
		p.PreEpochGen = 1.5
		p.FinishMLESteps = 2
		p.PreEpochDis = 1
		p.PreIterDis = 1
		p.TotalBatch = 2

		obs := newRecordingObserver()
		m := newTestModels(p, 1)
		trainer := newTestTrainer(t, p, m, tmpDir, obs, LogObserver{Verbosity: 2})
		if err := trainer.Run(); err != nil {
			t.Fatalf("%v: %v", mode, err)
		}

		expected := []string{
			"preTrainG_epoch_0", "preTrainG_epoch_1", "G_batch_0", "G_batch_1",
		}
		if mode == MLE {
			expected = append(expected, "finishMLE_step_0", "finishMLE_step_1")
		}
		for _, suffix := range expected {
			name := mode.String() + "_space_false_length_3_" + suffix + ".ckpt"
			if _, err := os.Stat(filepath.Join(tmpDir, "checkpoints", name)); err != nil {
				t.Errorf("%v: expected checkpoint %s: %v", mode, name, err)
			}
		}

		// Optimizer state starts fresh for the adversarial phase.
		if n := trainer.genOpt.Steps(); n != p.TotalBatch*p.GSteps {
			t.Errorf("%v: expected %d adversarial generator steps, got %d", mode, p.TotalBatch*p.GSteps, n)
		}
		discSteps := p.TotalBatch * p.DEpochs * numBatches(len(testData), p.BatchSize)
		if n := trainer.disc.Steps(); n != discSteps {
			t.Errorf("%v: expected %d adversarial discriminator steps, got %d", mode, discSteps, n)
		}
		if mode == MLE && len(obs.scalars[SeriesFinishGoodness]) != 2 {
			t.Errorf("%v: expected an evaluation after each finishing step, got %v",
				mode, obs.scalars[SeriesFinishGoodness])
		}

		if n := len(obs.scalars[SeriesDiscriminator]); n != 2 {
			t.Errorf("%v: expected %d discriminator losses, got %d", mode, 2, n)
		}
		if n := len(obs.scalars[SeriesGoodness]); n != 2 {
			t.Errorf("%v: expected %d evaluations, got %d", mode, 2, n)
		}
		if obs.texts[SeriesSamples] == 0 {
			t.Errorf("%v: expected generated samples to be observed", mode)
		}

		variances := obs.scalars[SeriesVariance]
		if p.TrackVariance() && len(variances) != 2 {
			t.Errorf("%v: expected %d variance reports, got %d", mode, 2, len(variances))
		}
		for _, v := range variances {
			if v < 0 {
				t.Errorf("%v: negative variance %v", mode, v)
			}
		}
	}
}

func TestTrainer_ObserversDoNotAffectTraining(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-trainer-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	p := testParams(RELAX)
	p.TotalBatch = 2

	silent := newTestModels(p, 1)
	if err := newTestTrainer(t, p, silent, tmpDir).Run(); err != nil {
		t.Fatal(err)
	}

	observed := newTestModels(p, 1)
	if err := newTestTrainer(t, p, observed, tmpDir, newRecordingObserver()).Run(); err != nil {
		t.Fatal(err)
	}

	if !paramsEqual(silent.Policy.Params(), observed.Policy.Params()) {
		t.Error("observers changed the trained policy")
	}
	if !paramsEqual(silent.Critic.Params(), observed.Critic.Params()) {
		t.Error("observers changed the trained critic")
	}
}

func TestNewTrainer_ShapeMismatch(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-trainer-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := checkpoint.NewStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(1))
	testCases := []struct {
		name   string
		mode   Mode
		modify func(p Params, m *Models)
	}{
		{"critic input", REINFORCE, func(p Params, m *Models) {
			m.Critic = nn.NewMLPClassifier(rng, 7, 8)
		}},
		{"control variate input", RELAX, func(p Params, m *Models) {
			m.ControlVariate = nn.NewMLPClassifier(rng, p.SeqLen*(p.VocabSize+1), 8)
		}},
		{"policy vocabulary", REBAR, func(p Params, m *Models) {
			policy := nn.NewRNNPolicy(rng, p.VocabSize-1, p.GenEmbedDim, p.GenHiddenDim)
			m.Policy, m.Snapshot = policy, policy.Clone()
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams(tc.mode)
			p.TotalBatch = 1
			m := newTestModels(p, 1)
			tc.modify(p, &m)

			vocab := dataset.NewVocabulary(p.Alphabet)
			eval := dataset.NewEvaluator(vocab, testData, filepath.Join(tmpDir, "eval.data"), p.Spaces)
			_, err := NewTrainer(p, m, dataset.NewLoader(testData, p.BatchSize), eval, store, "")
			if errors.Cause(err) != ErrShapeMismatch {
				t.Errorf("expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestNewTrainer_IgnoresControlVariateOutsideRELAX(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-trainer-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	m.ControlVariate = nn.NewMLPClassifier(rand.New(rand.NewSource(1)), 7, 8)
	newTestTrainer(t, p, m, tmpDir)
}
