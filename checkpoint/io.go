// Package checkpoint saves and restores model parameters.
//
// Each checkpoint event writes a fresh file whose name encodes the training
// mode, the vocabulary configuration, the sequence length and the epoch or
// batch index at which it was taken. Files are never updated in place.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/go-relax/autograd"
)

// ErrShapeMismatch is returned when a checkpoint does not match the model it
// is being loaded into.
var ErrShapeMismatch = errors.New("checkpoint does not match model parameters")

// Tag identifies a checkpoint.
type Tag struct {
	Mode   string
	Spaces bool
	SeqLen int
	Phase  string // e.g. "preTrainG_epoch" or "G_batch"
	Index  int
}

// Filename returns the file name encoding t.
func (t Tag) Filename() string {
	return fmt.Sprintf("%s_space_%v_length_%d_%s_%d.ckpt", t.Mode, t.Spaces, t.SeqLen, t.Phase, t.Index)
}

type paramShape struct {
	Rows, Cols int
}

// MarshalTo writes the tag and parameter values to w.
func MarshalTo(w io.Writer, tag Tag, params []*autograd.Tensor) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(tag); err != nil {
		return err
	}

	if err := enc.Encode(len(params)); err != nil {
		return err
	}

	for _, p := range params {
		if err := enc.Encode(paramShape{p.Rows, p.Cols}); err != nil {
			return err
		}

		if err := enc.Encode(p.Data); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalFrom reads a checkpoint from r into params, whose shapes must
// match the ones recorded in the checkpoint.
func UnmarshalFrom(r io.Reader, params []*autograd.Tensor) (Tag, error) {
	dec := gob.NewDecoder(r)
	var tag Tag
	if err := dec.Decode(&tag); err != nil {
		return tag, err
	}

	var nParams int
	if err := dec.Decode(&nParams); err != nil {
		return tag, err
	}

	if nParams != len(params) {
		return tag, errors.Wrapf(ErrShapeMismatch, "checkpoint has %d params, model has %d", nParams, len(params))
	}

	values := make([][]float64, nParams)
	for i, p := range params {
		var shape paramShape
		if err := dec.Decode(&shape); err != nil {
			return tag, err
		}

		if shape.Rows != p.Rows || shape.Cols != p.Cols {
			return tag, errors.Wrapf(ErrShapeMismatch, "param %d is %dx%d, model expects %dx%d",
				i, shape.Rows, shape.Cols, p.Rows, p.Cols)
		}

		if err := dec.Decode(&values[i]); err != nil {
			return tag, err
		}

		if len(values[i]) != p.Len() {
			return tag, errors.Wrapf(ErrShapeMismatch, "param %d has %d values", i, len(values[i]))
		}
	}

	// Only modify the model once the whole checkpoint has been validated.
	for i, p := range params {
		copy(p.Data, values[i])
	}

	return tag, nil
}

// Store writes checkpoints into a directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create checkpoint dir")
	}

	return &Store{dir: dir}, nil
}

// Save writes a new checkpoint file for tag and returns its path.
// The file is written to a temporary name and renamed into place so that a
// checkpoint is either complete or absent.
func (s *Store) Save(tag Tag, params []*autograd.Tensor) (string, error) {
	path := filepath.Join(s.dir, tag.Filename())
	f, err := ioutil.TempFile(s.dir, ".ckpt-")
	if err != nil {
		return "", errors.Wrap(err, "create checkpoint")
	}

	if err := MarshalTo(f, tag, params); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrapf(err, "encode checkpoint %s", path)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "close checkpoint")
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return "", errors.Wrap(err, "rename checkpoint")
	}

	glog.V(1).Infof("Saved checkpoint %s", path)
	return path, nil
}

// Load reads the checkpoint at path into params.
func (s *Store) Load(path string, params []*autograd.Tensor) (Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tag{}, errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()

	tag, err := UnmarshalFrom(f, params)
	if err != nil {
		return tag, errors.Wrapf(err, "load checkpoint %s", path)
	}

	glog.V(1).Infof("Loaded checkpoint %s (%+v)", path, tag)
	return tag, nil
}
