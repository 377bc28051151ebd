package relax

import (
	"github.com/golang/glog"
)

// Series names reported to observers.
const (
	SeriesPretrainGoodness = "pretrain/goodness"
	SeriesPretrainKL       = "pretrain/kl"
	SeriesFinishGoodness   = "finish_mle/goodness"
	SeriesFinishKL         = "finish_mle/kl"
	SeriesFinishMLELoss    = "finish_mle/loss"
	SeriesGoodness         = "adversarial/goodness"
	SeriesKL               = "adversarial/kl"
	SeriesReward           = "adversarial/reward"
	SeriesVariance         = "adversarial/variance"
	SeriesVarianceLoss     = "adversarial/variance_loss"
	SeriesMLELoss          = "generator/mle_loss"
	SeriesDiscriminator    = "discriminator/loss"
	SeriesSamples          = "samples"
)

// observerList fans out observations to every registered Observer.
type observerList []Observer

func (l observerList) scalar(series string, step int, value float64) {
	for _, o := range l {
		o.ObserveScalar(series, step, value)
	}
}

func (l observerList) text(series string, step int, lines []string) {
	for _, o := range l {
		o.ObserveText(series, step, lines)
	}
}

// LogObserver writes observations to the glog info log at the given verbosity.
type LogObserver struct {
	Verbosity glog.Level
}

// ObserveScalar implements Observer.
func (o LogObserver) ObserveScalar(series string, step int, value float64) {
	glog.V(o.Verbosity).Infof("[%s] step %d: %.6g", series, step, value)
}

// ObserveText implements Observer.
func (o LogObserver) ObserveText(series string, step int, lines []string) {
	if !glog.V(o.Verbosity) {
		return
	}

	for _, line := range lines {
		glog.Infof("[%s] step %d: %s", series, step, line)
	}
}
