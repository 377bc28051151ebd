package relax

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/nn"
)

// VarianceTracker trains the control-variate network to minimize the
// variance of the policy gradient estimator and reports the realized variance.
type VarianceTracker struct {
	cv  Classifier
	opt *nn.Adam
}

// NewVarianceTracker returns a tracker that updates cv. If cv is nil the
// tracker only reports the variance.
func NewVarianceTracker(params Params, cv Classifier) *VarianceTracker {
	vt := &VarianceTracker{cv: cv}
	if cv != nil {
		vt.opt = nn.NewAdam(params.CVLearningRate)
	}

	return vt
}

// Loss returns the variance proxy mean_j Σ_p ‖g_jp‖² of the per-example
// gradients. It stays attached to whatever graph the gradients are attached to.
func (vt *VarianceTracker) Loss(arena *GradArena) *autograd.Tensor {
	var total *autograd.Tensor
	for j := 0; j < arena.Len(); j++ {
		for _, g := range arena.Example(j) {
			sq := autograd.SumSquares(g)
			if total == nil {
				total = sq
			} else {
				total = autograd.Add(total, sq)
			}
		}
	}

	return autograd.Scale(total, 1/float64(arena.Len()))
}

// Variance returns the sum over gradient coordinates of the batch sample
// variance of the per-example gradients. It is zero for a single example.
func Variance(arena *GradArena) float64 {
	n := arena.Len()
	if n < 2 {
		return 0
	}

	flat := make([][]float64, n)
	for j := range flat {
		flat[j] = arena.Flat(j)
	}

	column := make([]float64, n)
	var total float64
	for k := range flat[0] {
		for j := range flat {
			column[j] = flat[j][k]
		}

		total += math.Max(0, stat.Variance(column, nil))
	}

	return total
}

// Update forms the variance loss over the arena, takes one optimizer step on
// the control-variate network, and returns the loss and the realized variance.
// It must run before the policy parameters are updated from the same arena.
func (vt *VarianceTracker) Update(arena *GradArena) (loss, variance float64, err error) {
	if arena.Len() == 0 {
		return 0, 0, errors.New("empty gradient arena")
	}

	variance = Variance(arena)
	if !finite(variance) {
		return 0, 0, errors.Wrap(ErrNonFinite, "gradient variance")
	}

	lossT := vt.Loss(arena)
	if !lossT.IsFinite() {
		return 0, 0, errors.Wrap(ErrNonFinite, "variance loss")
	}

	if vt.cv != nil {
		grads, err := autograd.Grad(lossT, vt.cv.Params(), false)
		if err != nil {
			return 0, 0, err
		}

		if err := vt.opt.Step(vt.cv.Params(), grads); err != nil {
			return 0, 0, errors.Wrap(err, "control variate step")
		}
	}

	glog.V(1).Infof("Variance loss %.6g, gradient variance %.6g", lossT.Value(), variance)
	return lossT.Value(), variance, nil
}
