package relax

import (
	"math/rand"

	"github.com/timpalpant/go-relax/autograd"
	"github.com/timpalpant/go-relax/nn"
)

// testData are sequences "a+b" / "a=b" over the alphabet "012+=".
var testData = [][]int{
	{0, 3, 1}, {1, 3, 0}, {2, 3, 2}, {0, 4, 0},
	{1, 4, 1}, {2, 4, 2}, {1, 3, 1}, {0, 3, 2},
	{2, 3, 0}, {0, 3, 0},
}

func testParams(mode Mode) Params {
	p := DefaultParams()
	p.Mode = mode
	p.BatchSize = 4
	p.GeneratedNum = 8
	p.RolloutNum = 2
	p.PretrainGenerator = true
	p.PreEpochGen = 0
	p.FinishMLESteps = 0
	p.TotalBatch = 0
	p.GenEmbedDim = 4
	p.GenHiddenDim = 6
	p.DisHidden = []int{8}
	p.CVHidden = []int{8}
	p.GenLearningRate = 1e-2
	p.DisLearningRate = 1e-2
	p.CVLearningRate = 1e-2
	return p
}

func newTestModels(p Params, seed int64) Models {
	rng := rand.New(rand.NewSource(seed))
	policy := nn.NewRNNPolicy(rng, p.VocabSize, p.GenEmbedDim, p.GenHiddenDim)
	inputDim := p.SeqLen * p.VocabSize
	return Models{
		Policy:         policy,
		Snapshot:       policy.Clone(),
		Critic:         nn.NewMLPClassifier(rng, inputDim, p.DisHidden...),
		ControlVariate: nn.NewMLPClassifier(rng, inputDim, p.CVHidden...),
	}
}

// constantClassifier ignores its input and assigns probability
// exp(logReal) to "real".
type constantClassifier struct {
	logReal float64
}

func (c constantClassifier) Forward(x *autograd.Tensor) *autograd.Tensor {
	data := make([]float64, 2*x.Rows)
	for i := 0; i < x.Rows; i++ {
		data[2*i] = 0
		data[2*i+1] = c.logReal
	}

	return autograd.New(x.Rows, 2, data)
}

func (c constantClassifier) Params() []*autograd.Tensor {
	return nil
}

type recordingObserver struct {
	scalars map[string][]float64
	texts   map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		scalars: make(map[string][]float64),
		texts:   make(map[string]int),
	}
}

func (r *recordingObserver) ObserveScalar(series string, step int, value float64) {
	r.scalars[series] = append(r.scalars[series], value)
}

func (r *recordingObserver) ObserveText(series string, step int, lines []string) {
	r.texts[series] += len(lines)
}

func paramsEqual(a, b []*autograd.Tensor) bool {
	for i := range a {
		for k := range a[i].Data {
			if a[i].Data[k] != b[i].Data[k] {
				return false
			}
		}
	}

	return true
}
