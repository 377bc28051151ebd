package sampling

import (
	"math"
	"math/rand"
	"testing"
)

func TestSampleOne(t *testing.T) {
	pv := []float64{0.2, 0.5, 0.3}
	cases := []struct {
		x        float64
		expected int
	}{
		{0.0, 0},
		{0.19, 0},
		{0.2, 1},
		{0.69, 1},
		{0.7, 2},
		{0.9999, 2},
	}

	for _, tc := range cases {
		if got := SampleOne(pv, tc.x); got != tc.expected {
			t.Errorf("x=%v: expected %d, got %d", tc.x, tc.expected, got)
		}
	}
}

func TestConditionalGumbel_ArgmaxIsCondition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	theta := []float64{0.1, 0.6, 0.05, 0.25}
	for b := range theta {
		for i := 0; i < 100; i++ {
			z := ConditionalGumbel(theta, b, Uniform(rng, len(theta)))
			best := 0
			for k := range z {
				if z[k] > z[best] {
					best = k
				}
			}

			if best != b {
				t.Fatalf("expected argmax %d, got %d (z=%v)", b, best, z)
			}
		}
	}
}

func TestSampleLogProbs_Frequencies(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := []float64{0.7, 0.3}
	logp := []float64{math.Log(p[0]), math.Log(p[1])}
	counts := make([]int, 2)
	const n = 20000
	for i := 0; i < n; i++ {
		counts[SampleLogProbs(rng, logp)]++
	}

	freq := float64(counts[0]) / n
	if math.Abs(freq-p[0]) > 0.02 {
		t.Errorf("expected frequency near %v, got %v", p[0], freq)
	}
}
