package net

import (
	"github.com/FlavioCFOliveira/minicnn/internal/dataset"
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/opt"
	"github.com/pkg/errors"
)

// Metrics summarizes loss and accuracy over a number of samples.
type Metrics struct {
	Loss     float64
	Accuracy float64
	Correct  int
	Samples  int
}

// Percent returns the accuracy as a whole percentage, truncated.
func (m Metrics) Percent() int {
	if m.Samples == 0 {
		return 0
	}
	return m.Correct * 100 / m.Samples
}

// StepResult is what a single training step reports to callbacks.
type StepResult struct {
	Probs   []float64
	Label   int
	Loss    float64
	Correct int
}

// Trainer runs online SGD over a dataset, one example at a time.
type Trainer struct {
	Net          *Network
	LearningRate float64
	Epochs       int

	// Optimizer updates the layers. Nil means SGD at LearningRate.
	Optimizer opt.Optimizer

	// Shuffle reorders the training set before every epoch using RNG.
	Shuffle bool
	RNG     *layer.RNG

	Callbacks []Callback
}

// Fit trains for t.Epochs epochs and returns the metrics of the last one.
// Any step error aborts training.
func (t *Trainer) Fit(set *dataset.Set) (Metrics, error) {
	if t.Net == nil {
		return Metrics{}, errors.New("trainer: nil network")
	}
	if set == nil {
		return Metrics{}, errors.New("trainer: nil dataset")
	}
	if t.Shuffle && t.RNG == nil {
		return Metrics{}, errors.New("trainer: shuffle requires an RNG")
	}
	if err := set.Validate(t.Net.Classes()); err != nil {
		return Metrics{}, errors.Wrap(err, "trainer")
	}

	o := t.Optimizer
	if o == nil {
		o = opt.SGD{LearningRate: t.LearningRate}
	}

	for _, cb := range t.Callbacks {
		cb.OnTrainBegin(t)
	}
	defer func() {
		for _, cb := range t.Callbacks {
			cb.OnTrainEnd(t)
		}
	}()

	var last Metrics
	for epoch := 1; epoch <= t.Epochs; epoch++ {
		if t.Shuffle {
			set.Shuffle(t.RNG)
		}
		for _, cb := range t.Callbacks {
			cb.OnEpochBegin(epoch, t)
		}

		var sumLoss float64
		var correct int
		for i, s := range set.Samples {
			res, err := t.step(s, o)
			if err != nil {
				return last, errors.Wrapf(err, "epoch %d, step %d", epoch, i+1)
			}
			sumLoss += res.Loss
			correct += res.Correct
			for _, cb := range t.Callbacks {
				cb.OnStep(epoch, i+1, res, t)
			}
		}

		last = summarize(sumLoss, correct, set.Len())
		for _, cb := range t.Callbacks {
			cb.OnEpochEnd(epoch, last, t)
		}
		if t.stopRequested() {
			break
		}
	}
	return last, nil
}

func (t *Trainer) step(s dataset.Sample, o opt.Optimizer) (StepResult, error) {
	probs, err := t.Net.Step(s.Image, s.Label, o)
	if err != nil {
		return StepResult{}, err
	}
	return score(t.Net, probs, s.Label)
}

func (t *Trainer) stopRequested() bool {
	for _, cb := range t.Callbacks {
		if s, ok := cb.(Stopper); ok && s.ShouldStop() {
			return true
		}
	}
	return false
}

// Evaluate runs the network forward over set without updating weights.
func Evaluate(n *Network, set *dataset.Set) (Metrics, error) {
	if n == nil || set == nil {
		return Metrics{}, errors.New("evaluate: nil network or dataset")
	}
	if err := set.Validate(n.Classes()); err != nil {
		return Metrics{}, errors.Wrap(err, "evaluate")
	}

	var sumLoss float64
	var correct int
	for i, s := range set.Samples {
		probs, err := n.Predict(s.Image)
		if err != nil {
			return Metrics{}, errors.Wrapf(err, "evaluate sample %d", i)
		}
		res, err := score(n, probs, s.Label)
		if err != nil {
			return Metrics{}, errors.Wrapf(err, "evaluate sample %d", i)
		}
		sumLoss += res.Loss
		correct += res.Correct
	}
	return summarize(sumLoss, correct, set.Len()), nil
}
