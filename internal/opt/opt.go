// Package opt provides optimization algorithms.
package opt

import (
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Optimizer updates layer parameters from gradients of the same shape.
// The layers call it once per parameter buffer after computing gradients.
type Optimizer interface {
	// StepInPlace updates params in-place from gradients.
	StepInPlace(params, gradients []float64) error
}

// SGD (Stochastic Gradient Descent) optimizer.
// Applied once per example, it is plain online SGD.
type SGD struct {
	LearningRate float64
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s SGD) StepInPlace(params, gradients []float64) error {
	if len(params) != len(gradients) {
		return errors.Wrapf(tensor.ErrShape, "sgd: %d params, %d gradients", len(params), len(gradients))
	}
	floats.AddScaled(params, -s.LearningRate, gradients)
	return nil
}
