// Package net wires the layers into a trainable network and drives training.
package net

import (
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/loss"
	"github.com/FlavioCFOliveira/minicnn/internal/opt"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
)

// Network is conv -> 2x2 max pool -> dense -> softmax for images of one
// fixed size. The two trainable layers are mutated in place by TrainStep.
// A Network is not safe for concurrent use.
type Network struct {
	conv  *layer.Conv2D
	pool  layer.MaxPool2D
	dense *layer.Dense
	loss  loss.CrossEntropy

	width  int
	height int
}

// New checks that conv and dense agree for width×height images.
func New(conv *layer.Conv2D, dense *layer.Dense, width, height int) (*Network, error) {
	if conv == nil || dense == nil {
		return nil, errors.New("network: nil layer")
	}
	convW, convH := conv.OutputSize(width, height)
	if convW <= 0 || convH <= 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "network: filter %d does not fit %dx%d images",
			conv.FilterSize(), width, height)
	}
	if convW%2 != 0 || convH%2 != 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "network: convolution output %dx%d is not even", convW, convH)
	}

	n := &Network{conv: conv, dense: dense, width: width, height: height}
	if want := n.pool.OutputLen(convW, convH, conv.NumFilters()); dense.InSize() != want {
		return nil, errors.Wrapf(tensor.ErrShape, "network: dense input %d, pooled length %d",
			dense.InSize(), want)
	}
	return n, nil
}

// forwardPass holds the intermediates of one example. It never outlives
// the call that created it.
type forwardPass struct {
	conv   *tensor.Volume
	pooled *layer.Pooled
	logits []float64
	probs  []float64
}

func (n *Network) forward(img *tensor.Image) (*forwardPass, error) {
	if n.conv == nil || n.dense == nil {
		return nil, errors.Wrap(tensor.ErrReleased, "network")
	}
	if img == nil || img.Width != n.width || img.Height != n.height {
		return nil, errors.Wrapf(tensor.ErrShape, "network: expected %dx%d image", n.width, n.height)
	}

	var (
		fp  forwardPass
		err error
	)
	if fp.conv, err = n.conv.Forward(img); err != nil {
		return nil, err
	}
	if fp.pooled, err = n.pool.Forward(fp.conv); err != nil {
		return nil, err
	}
	if fp.logits, err = n.dense.Forward(fp.pooled.Values); err != nil {
		return nil, err
	}
	if fp.probs, err = loss.Softmax(fp.logits); err != nil {
		return nil, err
	}
	return &fp, nil
}

// Predict returns class probabilities for img without touching weights.
func (n *Network) Predict(img *tensor.Image) ([]float64, error) {
	fp, err := n.forward(img)
	if err != nil {
		return nil, err
	}
	return fp.probs, nil
}

// TrainStep runs one online SGD step on a single example and returns the
// probabilities computed before the update.
func (n *Network) TrainStep(img *tensor.Image, label int, learningRate float64) ([]float64, error) {
	return n.Step(img, label, opt.SGD{LearningRate: learningRate})
}

// Step trains on a single example, letting o update both layers, and
// returns the probabilities computed before the update.
//
// Order: conv, pool, dense, softmax forward; fused softmax/cross-entropy
// gradient; dense backward (updates, returns dL/dpooled); pool backward
// (routes through the switches); conv backward (updates filters).
func (n *Network) Step(img *tensor.Image, label int, o opt.Optimizer) ([]float64, error) {
	if o == nil {
		return nil, errors.New("network: nil optimizer")
	}
	fp, err := n.forward(img)
	if err != nil {
		return nil, err
	}

	dLogits, err := n.loss.Backward(fp.probs, label)
	if err != nil {
		return nil, err
	}
	dPooled, err := n.dense.Backward(dLogits, fp.pooled.Values, o)
	if err != nil {
		return nil, err
	}
	dConv, err := n.pool.Backward(fp.pooled, dPooled)
	if err != nil {
		return nil, err
	}
	if err := n.conv.Backward(img, dConv, o); err != nil {
		return nil, err
	}
	return fp.probs, nil
}

// Loss returns the cross-entropy of probs against label.
func (n *Network) Loss(probs []float64, label int) (float64, error) {
	return n.loss.Forward(probs, label)
}

// Classes returns the number of output classes.
func (n *Network) Classes() int {
	if n.dense == nil {
		return 0
	}
	return n.dense.OutSize()
}

// InputSize returns the image size the network accepts.
func (n *Network) InputSize() (int, int) {
	return n.width, n.height
}

// Conv returns the convolution layer.
func (n *Network) Conv() *layer.Conv2D {
	return n.conv
}

// Dense returns the dense layer.
func (n *Network) Dense() *layer.Dense {
	return n.dense
}

// Release drops both layers' weights. Later calls fail with
// tensor.ErrReleased.
func (n *Network) Release() {
	if n.conv != nil {
		n.conv.Release()
	}
	if n.dense != nil {
		n.dense.Release()
	}
	n.conv, n.dense = nil, nil
}
