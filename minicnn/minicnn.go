// Package minicnn is the public entry point: a single-convolution image
// classifier trained one example at a time.
package minicnn

import (
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/loss"
	"github.com/FlavioCFOliveira/minicnn/internal/net"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
)

// Re-export common types for easier access
type (
	RNG          = layer.RNG
	Image        = tensor.Image
	Conv2D       = layer.Conv2D
	Dense        = layer.Dense
	CrossEntropy = loss.CrossEntropy
)

// Errors returned by the layers. Test with errors.Is.
var (
	ErrShape      = tensor.ErrShape
	ErrAllocation = tensor.ErrAllocation
	ErrNumerical  = tensor.ErrNumerical
	ErrReleased   = tensor.ErrReleased
)

// NewRNG returns a deterministic generator for the given seed.
func NewRNG(seed uint64) *RNG {
	return layer.NewRNG(seed)
}

// NewImage allocates a zeroed width×height image.
func NewImage(width, height int) (*Image, error) {
	return tensor.NewImage(width, height)
}

// InitConvolutionLayer creates numFilters He-initialized filterSize×filterSize filters.
func InitConvolutionLayer(numFilters, filterSize int, rng *RNG) (*Conv2D, error) {
	return layer.NewConv2D(numFilters, filterSize, rng)
}

// InitDenseLayer creates an outputSize×inputLength fully connected layer.
func InitDenseLayer(outputSize, inputLength int, rng *RNG) (*Dense, error) {
	return layer.NewDense(outputSize, inputLength, rng)
}

// TrainStep runs one SGD step on (image, label), updating conv and dense in
// place, and returns the class probabilities from before the update.
func TrainStep(conv *Conv2D, dense *Dense, image *Image, label int, learningRate float64) ([]float64, error) {
	n, err := network(conv, dense, image)
	if err != nil {
		return nil, err
	}
	return n.TrainStep(image, label, learningRate)
}

// Predict returns class probabilities for image.
func Predict(conv *Conv2D, dense *Dense, image *Image) ([]float64, error) {
	n, err := network(conv, dense, image)
	if err != nil {
		return nil, err
	}
	return n.Predict(image)
}

func network(conv *Conv2D, dense *Dense, image *Image) (*net.Network, error) {
	if image == nil {
		return nil, tensor.ErrShape
	}
	return net.New(conv, dense, image.Width, image.Height)
}

// ReleaseLayers drops the weights of both layers. Either may be nil.
func ReleaseLayers(conv *Conv2D, dense *Dense) {
	if conv != nil {
		conv.Release()
	}
	if dense != nil {
		dense.Release()
	}
}

// Loss returns -ln(p[label]).
func Loss(probs []float64, label int) (float64, error) {
	return loss.CrossEntropy{}.Forward(probs, label)
}

// Accuracy returns 1 if the most probable class is label, else 0.
func Accuracy(probs []float64, label int) int {
	return loss.Accuracy(probs, label)
}

// Softmax converts logits into probabilities.
func Softmax(logits []float64) ([]float64, error) {
	return loss.Softmax(logits)
}
