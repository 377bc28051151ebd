// Package rdbstore implements a training observer that persists scalar and
// text observations in a RocksDB database.
//
// It stores the same layout as ldbstore and is interchangeable with it.
package rdbstore

import (
	rocksdb "github.com/tecbot/gorocksdb"
)

// Params hold the RocksDB handles a Sink is opened with. The options are
// C allocations owned by the caller, who must release them with Close once
// every Sink using them has been closed.
type Params struct {
	Path         string
	Options      *rocksdb.Options
	ReadOptions  *rocksdb.ReadOptions
	WriteOptions *rocksdb.WriteOptions
}

// DefaultParams returns Params for a database at path, created on first use.
func DefaultParams(path string) Params {
	opts := rocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	return Params{
		Path:         path,
		Options:      opts,
		ReadOptions:  rocksdb.NewDefaultReadOptions(),
		WriteOptions: rocksdb.NewDefaultWriteOptions(),
	}
}

// Close destroys the options.
func (p Params) Close() {
	if p.Options != nil {
		p.Options.Destroy()
	}
	if p.ReadOptions != nil {
		p.ReadOptions.Destroy()
	}
	if p.WriteOptions != nil {
		p.WriteOptions.Destroy()
	}
}
