package dataset

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_BatchesAndReset(t *testing.T) {
	seqs := [][]int{{0}, {1}, {2}, {3}, {4}}
	loader := NewLoader(seqs, 2)
	if loader.NumBatches() != 3 {
		t.Errorf("expected %d batches, got %d", 3, loader.NumBatches())
	}

	var sizes []int
	for batch, ok := loader.Next(); ok; batch, ok = loader.Next() {
		sizes = append(sizes, len(batch))
	}

	expected := []int{2, 2, 1}
	if len(sizes) != len(expected) {
		t.Fatalf("expected batch sizes %v, got %v", expected, sizes)
	}
	for i := range expected {
		if sizes[i] != expected[i] {
			t.Errorf("expected batch sizes %v, got %v", expected, sizes)
		}
	}

	loader.Reset()
	if loader.Position() != 0 {
		t.Errorf("expected position 0 after reset, got %d", loader.Position())
	}
	batch, ok := loader.Next()
	if !ok || batch[0][0] != 0 {
		t.Errorf("expected first batch to start at sequence 0, got %v", batch)
	}
}

func TestReadWriteSequences(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "relax-dataset-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "samples.data")
	seqs := [][]int{{1, 2, 3}, {4, 0, 1}}
	if err := WriteSequences(path, seqs); err != nil {
		t.Fatal(err)
	}

	loader, err := Load(path, 4, 3, 5)
	if err != nil {
		t.Fatal(err)
	}

	got := loader.Sequences()
	for j := range seqs {
		for i := range seqs[j] {
			if got[j][i] != seqs[j][i] {
				t.Errorf("expected %v, got %v", seqs, got)
			}
		}
	}

	if _, err := Load(path, 4, 3, 4); err == nil {
		t.Error("expected out-of-range token error")
	}
	if _, err := Load(path, 4, 2, 5); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestEvaluator(t *testing.T) {
	vocab := NewVocabulary("01+=_")
	reference := [][]int{{0, 2, 1}, {1, 3, 1}}
	eval := NewEvaluator(vocab, reference, "", false)

	report, err := eval.Evaluate([][]int{{0, 2, 1}, {4, 4, 4}})
	if err != nil {
		t.Fatal(err)
	}

	if report.Goodness != 0.5 {
		t.Errorf("expected goodness %v, got %v", 0.5, report.Goodness)
	}
	if report.Lines[0] != "0+1" {
		t.Errorf("expected line %q, got %q", "0+1", report.Lines[0])
	}
	if report.KL <= 0 {
		t.Errorf("expected positive KL divergence, got %v", report.KL)
	}

	same, err := eval.Evaluate(reference)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(same.KL) > 1e-9 {
		t.Errorf("expected zero divergence for the reference itself, got %v", same.KL)
	}
}

func TestEvaluator_SpacesDisablesKL(t *testing.T) {
	vocab := NewVocabulary("01+= ")
	eval := NewEvaluator(vocab, [][]int{{0, 4, 2, 4, 1}}, "", true)
	report, err := eval.Evaluate([][]int{{0, 2, 4, 1, 4}})
	if err != nil {
		t.Fatal(err)
	}

	if report.KL != -1 {
		t.Errorf("expected KL %v, got %v", -1, report.KL)
	}
	if report.Goodness != 1 {
		t.Errorf("expected goodness %v ignoring spaces, got %v", 1, report.Goodness)
	}
	if report.CharFreq[4] != 0 {
		t.Errorf("expected space frequency 0, got %v", report.CharFreq[4])
	}
}
