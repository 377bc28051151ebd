package relax

import (
	"testing"

	"github.com/pkg/errors"
)

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{MLE, REINFORCE, REBAR, RELAX} {
		got, err := ParseMode(m.String())
		if err != nil {
			t.Fatal(err)
		}

		if got != m {
			t.Errorf("expected %v, got %v", m, got)
		}
	}

	if _, err := ParseMode("relax"); errors.Cause(err) != ErrUnknownMode {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParams_Validate(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); errors.Cause(err) != ErrInvalidParams {
		t.Errorf("expected missing weights path to be rejected, got %v", err)
	}

	p.WeightsPath = "weights.ckpt"
	if err := p.Validate(); err != nil {
		t.Errorf("expected default params to be valid, got %v", err)
	}

	p.Mode = Mode(42)
	if err := p.Validate(); errors.Cause(err) != ErrUnknownMode {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}

	p = testParams(RELAX)
	p.Alphabet = "01"
	if err := p.Validate(); errors.Cause(err) != ErrInvalidParams {
		t.Errorf("expected alphabet mismatch to be rejected, got %v", err)
	}
}

func TestParams_EpochBatches(t *testing.T) {
	p := DefaultParams()
	// 10000 / 128 = 78 batches per epoch.
	if got := p.EpochBatches(0.5); got != 39 {
		t.Errorf("expected %d, got %d", 39, got)
	}
}

func TestParams_TrackVariance(t *testing.T) {
	p := testParams(RELAX)
	p.CheckVariance = false
	if !p.TrackVariance() {
		t.Error("expected variance tracking to be forced on for RELAX")
	}

	p.Mode = REINFORCE
	if p.TrackVariance() {
		t.Error("expected variance tracking to follow CheckVariance")
	}
}

func TestParams_TrackVarianceMLE(t *testing.T) {
	p := testParams(MLE)
	p.CheckVariance = true
	if p.TrackVariance() {
		t.Error("expected no variance tracking without a reward estimator")
	}
}
