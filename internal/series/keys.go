// Package series defines the key/value layout used to persist training
// observations in ordered key-value stores.
//
// Keys sort by run, series and step, so that a prefix scan over one series
// returns its points in step order:
//
//	s/<run>/<series>/<step>  ->  8 byte little-endian float64
//	t/<run>/<series>/<step>  ->  gob-encoded []string
package series

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

const stepWidth = 10

// Point is one scalar observation.
type Point struct {
	Step  int
	Value float64
}

// ScalarPrefix returns the key prefix of every scalar point in a series.
func ScalarPrefix(run, series string) []byte {
	return []byte(fmt.Sprintf("s/%s/%s/", run, series))
}

// ScalarKey returns the key of a scalar point.
func ScalarKey(run, series string, step int) []byte {
	return append(ScalarPrefix(run, series), stepSuffix(step)...)
}

// TextKey returns the key of the text lines observed at step.
func TextKey(run, series string, step int) []byte {
	return []byte(fmt.Sprintf("t/%s/%s/%s", run, series, stepSuffix(step)))
}

func stepSuffix(step int) string {
	return fmt.Sprintf("%0*d", stepWidth, step)
}

// ParseStep extracts the step from a key with the given prefix.
func ParseStep(prefix, key []byte) (int, error) {
	if !bytes.HasPrefix(key, prefix) {
		return 0, errors.Errorf("key %q does not have prefix %q", key, prefix)
	}

	return strconv.Atoi(string(key[len(prefix):]))
}

// EncodeScalar returns the stored form of v.
func EncodeScalar(v float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return buf[:]
}

// DecodeScalar parses a value written by EncodeScalar.
func DecodeScalar(buf []byte) (float64, error) {
	if len(buf) != 8 {
		return 0, errors.Errorf("scalar value has %d bytes", len(buf))
	}

	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// EncodeText returns the stored form of lines.
func EncodeText(lines []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lines); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeText parses a value written by EncodeText.
func DecodeText(buf []byte) ([]string, error) {
	var lines []string
	err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&lines)
	return lines, err
}
