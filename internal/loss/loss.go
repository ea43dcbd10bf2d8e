// Package loss provides the softmax output and cross-entropy loss.
package loss

import (
	"math"

	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// minProb clips probabilities before the logarithm.
const minProb = 1e-15

// Softmax converts logits into a probability distribution.
// The max logit is subtracted first so large logits cannot overflow exp.
func Softmax(logits []float64) ([]float64, error) {
	if len(logits) == 0 {
		return nil, errors.Wrap(tensor.ErrShape, "softmax: empty logits")
	}
	if floats.HasNaN(logits) || hasInf(logits) {
		return nil, errors.Wrapf(tensor.ErrNumerical, "softmax: non-finite logits %v", logits)
	}

	out := make([]float64, len(logits))
	maxLogit := floats.Max(logits)
	for i, z := range logits {
		out[i] = math.Exp(z - maxLogit)
	}
	// The max entry contributes exp(0) = 1, so sum >= 1.
	floats.Scale(1/floats.Sum(out), out)

	// Entries far below the max underflow to zero; keep them strictly positive.
	for i := range out {
		if out[i] < minProb {
			out[i] = minProb
		}
	}
	return out, nil
}

func hasInf(x []float64) bool {
	for _, v := range x {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// CrossEntropy is the negative log-likelihood of the true class under a
// softmax distribution.
type CrossEntropy struct{}

// Forward computes -ln(p[label]).
func (CrossEntropy) Forward(probs []float64, label int) (float64, error) {
	if err := checkLabel(probs, label); err != nil {
		return 0, err
	}
	p := probs[label]
	if math.IsNaN(p) {
		return 0, errors.Wrapf(tensor.ErrNumerical, "cross-entropy: p[%d] is NaN", label)
	}
	if p < minProb {
		p = minProb
	}
	return -math.Log(p), nil
}

// Backward returns dL/dlogits for softmax followed by cross-entropy.
//
// dL/dp[label] = -1/p[label] combined with the softmax Jacobian row of the
// true label collapses to p[i] - [i == label], so the Jacobian is never built.
func (CrossEntropy) Backward(probs []float64, label int) ([]float64, error) {
	if err := checkLabel(probs, label); err != nil {
		return nil, err
	}
	grad := make([]float64, len(probs))
	copy(grad, probs)
	grad[label] -= 1
	if floats.HasNaN(grad) {
		return nil, errors.Wrap(tensor.ErrNumerical, "cross-entropy: NaN gradient")
	}
	return grad, nil
}

func checkLabel(probs []float64, label int) error {
	if label < 0 || label >= len(probs) {
		return errors.Wrapf(tensor.ErrShape, "label %d outside [0, %d)", label, len(probs))
	}
	return nil
}

// Accuracy returns 1 if argmax(probs) equals label, else 0.
// Ties resolve to the first index.
func Accuracy(probs []float64, label int) int {
	if len(probs) == 0 {
		return 0
	}
	if floats.MaxIdx(probs) == label {
		return 1
	}
	return 0
}
