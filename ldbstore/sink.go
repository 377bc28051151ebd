package ldbstore

import (
	"github.com/golang/glog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/timpalpant/go-relax/internal/series"
)

// Sink records training observations in a LevelDB database.
// Sink implements relax.Observer.
//
// Write failures are logged and otherwise ignored: a sink never
// interrupts training.
type Sink struct {
	path  string
	run   string
	db    *leveldb.DB
	rOpts *opt.ReadOptions
	wOpts *opt.WriteOptions
}

// New opens (or creates) the database at path and returns a Sink recording
// observations under the given run id.
func New(path string, opts *opt.Options, run string) (*Sink, error) {
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}

	return &Sink{
		path: path,
		run:  run,
		db:   db,
	}, nil
}

// Close implements io.Closer.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Run returns the run id observations are recorded under.
func (s *Sink) Run() string {
	return s.run
}

// ObserveScalar implements relax.Observer.
func (s *Sink) ObserveScalar(name string, step int, value float64) {
	key := series.ScalarKey(s.run, name, step)
	if err := s.db.Put(key, series.EncodeScalar(value), s.wOpts); err != nil {
		glog.Warningf("Failed to record %s at step %d: %v", name, step, err)
	}
}

// ObserveText implements relax.Observer.
func (s *Sink) ObserveText(name string, step int, lines []string) {
	buf, err := series.EncodeText(lines)
	if err != nil {
		glog.Warningf("Failed to encode %s at step %d: %v", name, step, err)
		return
	}

	if err := s.db.Put(series.TextKey(s.run, name, step), buf, s.wOpts); err != nil {
		glog.Warningf("Failed to record %s at step %d: %v", name, step, err)
	}
}

// Scalars returns the points of a scalar series of the given run in step order.
func (s *Sink) Scalars(run, name string) ([]series.Point, error) {
	prefix := series.ScalarPrefix(run, name)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), s.rOpts)
	defer iter.Release()

	var points []series.Point
	for iter.Next() {
		step, err := series.ParseStep(prefix, iter.Key())
		if err != nil {
			return nil, err
		}

		v, err := series.DecodeScalar(iter.Value())
		if err != nil {
			return nil, err
		}

		points = append(points, series.Point{Step: step, Value: v})
	}

	return points, iter.Error()
}

// Text returns the lines of a text series recorded at step, or nil if
// nothing was recorded.
func (s *Sink) Text(run, name string, step int) ([]string, error) {
	buf, err := s.db.Get(series.TextKey(run, name, step), s.rOpts)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return series.DecodeText(buf)
}
