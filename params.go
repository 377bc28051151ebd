package relax

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownMode is returned for a gradient estimator name that is not
	// one of MLE, REINFORCE, REBAR or RELAX.
	ErrUnknownMode = errors.New("unknown gradient estimator mode")
	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid params")
)

// Mode selects the gradient estimator used for generator updates.
// It is fixed for a whole run.
type Mode int

const (
	// MLE trains the generator on ground-truth data by maximum likelihood.
	MLE Mode = iota
	// REINFORCE weights score-function gradients by rollout rewards.
	REINFORCE
	// REBAR adds a pathwise correction using the critic, evaluated on
	// relaxed samples, as the control variate.
	REBAR
	// RELAX adds a pathwise correction using a learned control-variate network.
	RELAX
)

var modeNames = [...]string{
	MLE:       "MLE",
	REINFORCE: "REINFORCE",
	REBAR:     "REBAR",
	RELAX:     "RELAX",
}

func (m Mode) String() string {
	if !m.valid() {
		return "Mode(invalid)"
	}

	return modeNames[m]
}

func (m Mode) valid() bool {
	return m >= MLE && m <= RELAX
}

// ParseMode returns the Mode with the given name.
func ParseMode(name string) (Mode, error) {
	for m, s := range modeNames {
		if s == name {
			return Mode(m), nil
		}
	}

	return 0, errors.Wrapf(ErrUnknownMode, "%q", name)
}

// Params are the configuration options for a training run. A Params value
// is immutable once passed to a constructor.
type Params struct {
	Seed int64

	// Data
	BatchSize    int    // Training batch size.
	GeneratedNum int    // Number of sequences generated for each evaluation.
	SeqLen       int    // Fixed length L of every sequence.
	VocabSize    int    // Number of tokens V.
	Spaces       bool   // Whether the vocabulary includes a space token.
	Alphabet     string // Character for each token id; len == VocabSize.

	// Generator pretraining
	PretrainGenerator bool    // If false, weights are loaded from WeightsPath.
	WeightsPath       string  // Pretrained generator weights.
	PreEpochGen       float64 // May be fractional.
	FinishMLESteps    int     // Extra single-batch MLE steps, MLE mode only.

	// Critic pretraining
	PreEpochDis int
	PreIterDis  int

	// Adversarial training
	Mode            Mode
	CheckVariance   bool    // Report the estimator variance. Always on for RELAX.
	UpdateRate      float64 // EMA rate of the rollout snapshot.
	RolloutNum      int     // Monte-Carlo completions per prefix.
	TotalBatch      int     // Adversarial macro-batches.
	GSteps          int     // Generator rounds per macro-batch.
	DEpochs         int     // Discriminator epochs per macro-batch.
	EvalEvery       int     // Evaluate the generator every this many macro-batches.
	CheckpointEvery int     // Checkpoint the generator every this many macro-batches.
	Eta             float64 // REBAR control-variate scale.
	Temperature     float64 // Relaxation temperature.

	// Optimizers
	GenLearningRate float64
	DisLearningRate float64
	CVLearningRate  float64

	// Models
	GenEmbedDim  int
	GenHiddenDim int
	DisHidden    []int
	CVHidden     []int
}

// DefaultParams returns the settings of the reference experiment: length-3
// arithmetic sequences over a 5 token vocabulary trained with RELAX.
func DefaultParams() Params {
	p := Params{
		Seed:              88,
		BatchSize:         128,
		GeneratedNum:      10000,
		SeqLen:            3,
		VocabSize:         5,
		Alphabet:          "012+=",
		PretrainGenerator: false,
		PreEpochGen:       3,
		PreEpochDis:       0,
		PreIterDis:        0,
		Mode:              RELAX,
		CheckVariance:     true,
		UpdateRate:        0.8,
		RolloutNum:        16,
		GSteps:            1,
		DEpochs:           1,
		EvalEvery:         1,
		CheckpointEvery:   10,
		Eta:               1,
		Temperature:       1,
		GenLearningRate:   1e-3,
		DisLearningRate:   1e-3,
		CVLearningRate:    1e-3,
		GenEmbedDim:       32,
		GenHiddenDim:      32,
		DisHidden:         []int{64},
		CVHidden:          []int{64, 32},
	}

	p.TotalBatch = p.EpochBatches(3)
	p.FinishMLESteps = p.EpochBatches(3)
	return p
}

// EpochBatches converts a (possibly fractional) number of epochs over
// GeneratedNum sequences into a number of batches.
func (p Params) EpochBatches(epochs float64) int {
	return int(epochs * float64(p.GeneratedNum/p.BatchSize))
}

// TrackVariance reports whether the variance of the reward gradient
// estimator is measured. RELAX always measures it since it trains on it.
func (p Params) TrackVariance() bool {
	return p.Mode != MLE && (p.CheckVariance || p.Mode == RELAX)
}

// Validate checks that p describes a runnable configuration.
func (p Params) Validate() error {
	if !p.Mode.valid() {
		return errors.Wrapf(ErrUnknownMode, "mode %d", int(p.Mode))
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{p.BatchSize > 0, "batch size must be positive"},
		{p.GeneratedNum > 0, "generated num must be positive"},
		{p.SeqLen > 0, "sequence length must be positive"},
		{p.VocabSize > 1, "vocabulary must have at least 2 tokens"},
		{len([]rune(p.Alphabet)) == p.VocabSize, "alphabet length must equal vocabulary size"},
		{p.PreEpochGen >= 0, "pretraining epochs must be non-negative"},
		{p.UpdateRate >= 0 && p.UpdateRate <= 1, "update rate must be in [0, 1]"},
		{p.RolloutNum >= 1, "rollout num must be at least 1"},
		{p.TotalBatch >= 0, "total batch must be non-negative"},
		{p.GSteps >= 0 && p.DEpochs >= 0, "step counts must be non-negative"},
		{p.EvalEvery > 0 && p.CheckpointEvery > 0, "cadences must be positive"},
		{p.Temperature > 0 && !math.IsInf(p.Temperature, 0), "temperature must be positive"},
		{p.GenEmbedDim > 0 && p.GenHiddenDim > 0, "generator dimensions must be positive"},
		{p.PretrainGenerator || p.WeightsPath != "", "weights path is required when pretraining is disabled"},
	}

	for _, c := range checks {
		if !c.ok {
			return errors.Wrap(ErrInvalidParams, c.msg)
		}
	}

	return nil
}
