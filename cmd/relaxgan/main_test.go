package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/timpalpant/go-relax"
)

func TestNewSink(t *testing.T) {
	for _, kind := range []string{"leveldb", "rocksdb"} {
		tmpDir, err := ioutil.TempDir("", "relaxgan-")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "runs.db")
		sink, closer, err := newSink(kind, path, "run-a")
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}

		sink.ObserveScalar(relax.SeriesReward, 0, 0.5)
		if err := closer.Close(); err != nil {
			t.Errorf("%s: close: %v", kind, err)
		}

		// A closed sink releases the database for reopening.
		_, closer, err = newSink(kind, path, "run-b")
		if err != nil {
			t.Fatalf("%s: reopen: %v", kind, err)
		}
		closer.Close()
	}
}

func TestNewSink_UnknownKind(t *testing.T) {
	if _, _, err := newSink("bolt", "unused", "run"); err == nil {
		t.Error("expected error for unknown sink")
	}
}

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes("64, 32,")
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 32 {
		t.Errorf("expected [64 32], got %v", sizes)
	}

	if _, err := parseSizes("64,x"); err == nil {
		t.Error("expected error for non-numeric size")
	}
}
