// Package ldbstore implements a training observer that persists scalar and
// text observations on disk in a LevelDB database.
//
// Each run writes under its own run id, so several runs may share one
// database and be compared afterwards.
package ldbstore
