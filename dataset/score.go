package dataset

import (
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// smoothing is added to every character count before normalizing so that
// divergences stay finite when a character never occurs.
const smoothing = 1e-6

// Vocabulary maps token ids to characters.
type Vocabulary struct {
	alphabet []rune
}

// NewVocabulary returns a Vocabulary in which token i is the ith rune of alphabet.
func NewVocabulary(alphabet string) *Vocabulary {
	return &Vocabulary{alphabet: []rune(alphabet)}
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int {
	return len(v.alphabet)
}

// String converts a token sequence into text.
func (v *Vocabulary) String(seq []int) string {
	var b strings.Builder
	for _, tok := range seq {
		b.WriteRune(v.alphabet[tok])
	}

	return b.String()
}

// Strings converts every sequence of a batch into text.
func (v *Vocabulary) Strings(seqs [][]int) []string {
	result := make([]string, len(seqs))
	for i, seq := range seqs {
		result[i] = v.String(seq)
	}

	return result
}

// Goodness returns the fraction of generated strings that occur in the
// reference set. When spaces is true strings are compared with spaces removed.
func Goodness(generated []string, reference map[string]struct{}, spaces bool) float64 {
	if len(generated) == 0 {
		return 0
	}

	hits := 0
	for _, s := range generated {
		if spaces {
			s = stripSpaces(s)
		}
		if _, ok := reference[s]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(generated))
}

// CharFreq returns the normalized frequency of each vocabulary character
// over all strings. When spaces is true the space character is not counted.
func CharFreq(strs []string, vocab *Vocabulary, spaces bool) []float64 {
	index := make(map[rune]int, vocab.Size())
	for i, r := range vocab.alphabet {
		if spaces && r == ' ' {
			continue
		}
		index[r] = i
	}

	counts := make([]float64, vocab.Size())
	for _, s := range strs {
		for _, r := range s {
			if i, ok := index[r]; ok {
				counts[i]++
			}
		}
	}

	if spaces {
		for i, r := range vocab.alphabet {
			if r == ' ' {
				counts[i] = 0
			}
		}
	}

	return normalize(counts)
}

// KLDivergence returns KL(p || q) of two character distributions.
func KLDivergence(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, errors.Errorf("distribution lengths differ: %d vs %d", len(p), len(q))
	}

	return stat.KullbackLeibler(smooth(p), smooth(q)), nil
}

func normalize(counts []float64) []float64 {
	total := floats.Sum(counts)
	if total > 0 {
		floats.Scale(1/total, counts)
	}

	return counts
}

func smooth(p []float64) []float64 {
	result := make([]float64, len(p))
	copy(result, p)
	floats.AddConst(smoothing, result)
	return normalize(result)
}

func stripSpaces(s string) string {
	return strings.Replace(s, " ", "", -1)
}
