// Package dataset loads token-id sequences, converts them to text and scores
// generated text against a reference corpus.
//
// Sequence files hold one sequence per line as whitespace-separated integer
// token ids, the format the trainer also uses to persist generated samples.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Loader iterates over a fixed set of sequences in batches.
// Batches are produced in file order; the final batch may be smaller.
type Loader struct {
	seqs      [][]int
	batchSize int
	pos       int
}

// NewLoader returns a Loader over seqs.
func NewLoader(seqs [][]int, batchSize int) *Loader {
	if batchSize <= 0 {
		panic(fmt.Errorf("dataset: batch size must be positive, got %d", batchSize))
	}

	return &Loader{seqs: seqs, batchSize: batchSize}
}

// Load reads a sequence file and returns a Loader over its contents.
// Every sequence must have the given length and ids in [0, vocab).
func Load(path string, batchSize, length, vocab int) (*Loader, error) {
	seqs, err := ReadSequences(path)
	if err != nil {
		return nil, err
	}

	for i, seq := range seqs {
		if len(seq) != length {
			return nil, errors.Errorf("%s:%d: expected %d tokens, got %d", path, i+1, length, len(seq))
		}
		for _, tok := range seq {
			if tok < 0 || tok >= vocab {
				return nil, errors.Errorf("%s:%d: token %d out of range [0, %d)", path, i+1, tok, vocab)
			}
		}
	}

	return NewLoader(seqs, batchSize), nil
}

// Next returns the next batch, or false once every sequence has been returned.
func (l *Loader) Next() ([][]int, bool) {
	if l.pos >= len(l.seqs) {
		return nil, false
	}

	end := l.pos + l.batchSize
	if end > len(l.seqs) {
		end = len(l.seqs)
	}

	batch := l.seqs[l.pos:end]
	l.pos = end
	return batch, true
}

// Reset rewinds the Loader to the first sequence.
func (l *Loader) Reset() {
	l.pos = 0
}

// Len returns the total number of sequences.
func (l *Loader) Len() int {
	return len(l.seqs)
}

// Position returns the index of the next sequence to be returned.
func (l *Loader) Position() int {
	return l.pos
}

// NumBatches returns the number of batches in one pass.
func (l *Loader) NumBatches() int {
	return (len(l.seqs) + l.batchSize - 1) / l.batchSize
}

// Sequences returns all sequences held by the Loader.
func (l *Loader) Sequences() [][]int {
	return l.seqs
}

// ReadSequences parses a sequence file.
func ReadSequences(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sequences")
	}
	defer f.Close()

	var seqs [][]int
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		seq := make([]int, len(fields))
		for i, field := range fields {
			tok, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", path, lineNo)
			}
			seq[i] = tok
		}

		seqs = append(seqs, seq)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read sequences")
	}

	return seqs, nil
}

// WriteSequences writes seqs to path, replacing any existing file.
func WriteSequences(path string, seqs [][]int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create sequences")
	}

	w := bufio.NewWriter(f)
	for _, seq := range seqs {
		for i, tok := range seq {
			if i > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.Itoa(tok))
		}
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "write sequences")
	}

	return f.Close()
}
