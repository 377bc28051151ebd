package relax

import (
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/timpalpant/go-relax/dataset"
)

func TestDiscriminatorTrainer_TrainEpoch(t *testing.T) {
	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	loader := dataset.NewLoader(testData, p.BatchSize)
	loader.Next() // Leave the iterator mid-epoch.
	d := NewDiscriminatorTrainer(p, m.Critic, loader, m.Policy, "", rand.New(rand.NewSource(1)))

	_, steps, err := d.TrainEpoch(d.FromPolicy())
	if err != nil {
		t.Fatal(err)
	}

	// ceil(10 / 4) = 3
	if steps != 3 {
		t.Errorf("expected %d steps, got %d", 3, steps)
	}
	if d.Steps() != 3 {
		t.Errorf("expected %d optimizer steps, got %d", 3, d.Steps())
	}
	if loader.Position() != 0 {
		t.Errorf("expected data iterator at 0, got %d", loader.Position())
	}
}

func TestDiscriminatorTrainer_LearnsToSeparate(t *testing.T) {
	p := testParams(REINFORCE)
	p.DisLearningRate = 0.05
	m := newTestModels(p, 1)
	loader := dataset.NewLoader(testData, p.BatchSize)
	d := NewDiscriminatorTrainer(p, m.Critic, loader, m.Policy, "", rand.New(rand.NewSource(1)))

	fake := [][]int{{3, 3, 3}, {4, 4, 4}, {3, 4, 3}, {4, 3, 4}}
	negatives := FromPool(fake)
	before := d.Loss(testData[:4], fake).Value()
	for epoch := 0; epoch < 50; epoch++ {
		if _, _, err := d.TrainEpoch(negatives); err != nil {
			t.Fatal(err)
		}
	}

	if after := d.Loss(testData[:4], fake).Value(); after >= before {
		t.Errorf("expected loss to decrease from %v, got %v", before, after)
	}
}

func TestDiscriminatorTrainer_PretrainWritesNegatives(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-disc-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	p := testParams(REINFORCE)
	m := newTestModels(p, 1)
	path := filepath.Join(tmpDir, "negative.data")
	loader := dataset.NewLoader(testData, p.BatchSize)
	d := NewDiscriminatorTrainer(p, m.Critic, loader, m.Policy, path, rand.New(rand.NewSource(1)))
	if err := d.Pretrain(2, 2); err != nil {
		t.Fatal(err)
	}

	// 2 epochs x 2 iterations x 3 batches.
	if d.Steps() != 12 {
		t.Errorf("expected %d steps, got %d", 12, d.Steps())
	}

	negatives, err := dataset.ReadSequences(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(negatives) != p.GeneratedNum {
		t.Errorf("expected %d negatives, got %d", p.GeneratedNum, len(negatives))
	}
}

func TestFromPool_Cycles(t *testing.T) {
	pool := [][]int{{0}, {1}, {2}}
	next := FromPool(pool)
	next(2)
	got := next(2)
	if got[0][0] != 2 || got[1][0] != 0 {
		t.Errorf("expected [[2] [0]], got %v", got)
	}
}
