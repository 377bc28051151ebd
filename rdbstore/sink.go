package rdbstore

import (
	"github.com/golang/glog"
	rocksdb "github.com/tecbot/gorocksdb"

	"github.com/timpalpant/go-relax/internal/series"
)

// Sink records training observations in a RocksDB database.
// Sink implements relax.Observer.
//
// It is functionally equivalent to ldbstore.Sink.
type Sink struct {
	params Params
	run    string
	db     *rocksdb.DB
}

// New opens the database described by params and returns a Sink recording
// observations under the given run id.
func New(params Params, run string) (*Sink, error) {
	db, err := rocksdb.OpenDb(params.Options, params.Path)
	if err != nil {
		return nil, err
	}

	return &Sink{
		params: params,
		run:    run,
		db:     db,
	}, nil
}

// Close implements io.Closer.
func (s *Sink) Close() error {
	s.db.Close()
	return nil
}

// ObserveScalar implements relax.Observer.
func (s *Sink) ObserveScalar(name string, step int, value float64) {
	key := series.ScalarKey(s.run, name, step)
	if err := s.db.Put(s.params.WriteOptions, key, series.EncodeScalar(value)); err != nil {
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

	if err := s.db.Put(s.params.WriteOptions, series.TextKey(s.run, name, step), buf); err != nil {
		glog.Warningf("Failed to record %s at step %d: %v", name, step, err)
	}
}

// Scalars returns the points of a scalar series of the given run in step order.
func (s *Sink) Scalars(run, name string) ([]series.Point, error) {
	prefix := series.ScalarPrefix(run, name)
	it := s.db.NewIterator(s.params.ReadOptions)
	defer it.Close()

	var points []series.Point
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key, value := it.Key(), it.Value()
		step, err := series.ParseStep(prefix, key.Data())
		if err != nil {
			key.Free()
			value.Free()
			return nil, err
		}

		v, err := series.DecodeScalar(value.Data())
		key.Free()
		value.Free()
		if err != nil {
			return nil, err
		}

		points = append(points, series.Point{Step: step, Value: v})
	}

	return points, it.Err()
}

// Text returns the lines of a text series recorded at step, or nil if
// nothing was recorded.
func (s *Sink) Text(run, name string, step int) ([]string, error) {
	value, err := s.db.Get(s.params.ReadOptions, series.TextKey(run, name, step))
	if err != nil {
		return nil, err
	}
	defer value.Free()

	if !value.Exists() {
		return nil, nil
	}

	return series.DecodeText(value.Data())
}
