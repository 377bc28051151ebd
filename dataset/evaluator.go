package dataset

import (
	"github.com/pkg/errors"
)

// Report summarizes the quality of a batch of generated sequences.
type Report struct {
	Goodness float64
	// KL is the divergence of the generated character distribution from the
	// reference one, or -1 when spaces are part of the vocabulary.
	KL       float64
	CharFreq []float64
	Lines    []string
}

// Evaluator scores generated sequences against a reference corpus and
// persists each evaluated batch to a sample file.
type Evaluator struct {
	vocab     *Vocabulary
	path      string
	spaces    bool
	reference map[string]struct{}
	refFreq   []float64
}

// NewEvaluator returns an Evaluator over the reference sequences. Generated
// samples are written to path on every call to Evaluate.
func NewEvaluator(vocab *Vocabulary, reference [][]int, path string, spaces bool) *Evaluator {
	refStrings := vocab.Strings(reference)
	set := make(map[string]struct{}, len(refStrings))
	for _, s := range refStrings {
		if spaces {
			s = stripSpaces(s)
		}
		set[s] = struct{}{}
	}

	return &Evaluator{
		vocab:     vocab,
		path:      path,
		spaces:    spaces,
		reference: set,
		refFreq:   CharFreq(refStrings, vocab, spaces),
	}
}

// Evaluate writes samples to the evaluation file and scores them.
func (e *Evaluator) Evaluate(samples [][]int) (Report, error) {
	if e.path != "" {
		if err := WriteSequences(e.path, samples); err != nil {
			return Report{}, errors.Wrap(err, "persist generated samples")
		}
	}

	lines := e.vocab.Strings(samples)
	report := Report{
		Goodness: Goodness(lines, e.reference, e.spaces),
		KL:       -1,
		CharFreq: CharFreq(lines, e.vocab, e.spaces),
		Lines:    lines,
	}

	if !e.spaces {
		kl, err := KLDivergence(e.refFreq, report.CharFreq)
		if err != nil {
			return Report{}, err
		}
		report.KL = kl
	}

	return report, nil
}
