package layer

import (
	"github.com/FlavioCFOliveira/minicnn/internal/opt"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer producing raw logits.
// Weights are a row-major [outSize x inSize] matrix over one contiguous
// buffer; biases start at zero.
type Dense struct {
	weights *mat.Dense
	biases  []float64
	outSize int
	inSize  int
}

// NewDense creates a dense layer with He-scaled weights sqrt(2/inSize).
func NewDense(outSize, inSize int, rng *RNG) (*Dense, error) {
	if outSize <= 0 || inSize <= 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "dense: %dx%d", outSize, inSize)
	}
	if rng == nil {
		return nil, errors.New("dense: nil RNG")
	}

	data, err := tensor.Alloc(outSize, inSize)
	if err != nil {
		return nil, errors.Wrap(err, "dense: weights")
	}
	heFill(data, inSize, rng)

	return &Dense{
		weights: mat.NewDense(outSize, inSize, data),
		biases:  make([]float64, outSize),
		outSize: outSize,
		inSize:  inSize,
	}, nil
}

func (d *Dense) checkInput(x []float64) error {
	if d.weights == nil {
		return errors.Wrap(tensor.ErrReleased, "dense")
	}
	if len(x) != d.inSize {
		return errors.Wrapf(tensor.ErrShape, "dense: input length %d, want %d", len(x), d.inSize)
	}
	return nil
}

// Forward computes logits = W·x + b.
func (d *Dense) Forward(x []float64) ([]float64, error) {
	if err := d.checkInput(x); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(d.outSize, nil)
	out.MulVec(d.weights, mat.NewVecDense(d.inSize, x))
	logits := out.RawVector().Data
	floats.Add(logits, d.biases)
	return logits, nil
}

// denseGradients holds everything Backward derives before touching the
// weights.
type denseGradients struct {
	weights []float64 // dL/dW, row-major like the weights
	biases  []float64 // dL/db
	input   []float64 // dL/dx, from the pre-update weights
}

// gradients reads the current weights only.
func (d *Dense) gradients(dLogits, input []float64) denseGradients {
	dz := mat.NewVecDense(d.outSize, dLogits)
	x := mat.NewVecDense(d.inSize, input)

	gradW := mat.NewDense(d.outSize, d.inSize, nil)
	gradW.Outer(1, dz, x)

	gradIn := mat.NewVecDense(d.inSize, nil)
	gradIn.MulVec(d.weights.T(), dz)

	gradB := make([]float64, d.outSize)
	copy(gradB, dLogits)

	return denseGradients{
		weights: gradW.RawMatrix().Data,
		biases:  gradB,
		input:   gradIn.RawVector().Data,
	}
}

// apply performs the update. It never computes gradients.
func (d *Dense) apply(g denseGradients, o opt.Optimizer) error {
	if err := o.StepInPlace(d.weights.RawMatrix().Data, g.weights); err != nil {
		return errors.Wrap(err, "dense: weights")
	}
	return errors.Wrap(o.StepInPlace(d.biases, g.biases), "dense: biases")
}

// Backward takes dL/dlogits and the input used in Forward, updates weights
// and biases, and returns dL/dinput computed from the weights as they were
// before the update.
func (d *Dense) Backward(dLogits, input []float64, o opt.Optimizer) ([]float64, error) {
	if err := d.checkInput(input); err != nil {
		return nil, err
	}
	if len(dLogits) != d.outSize {
		return nil, errors.Wrapf(tensor.ErrShape, "dense: gradient length %d, want %d", len(dLogits), d.outSize)
	}

	g := d.gradients(dLogits, input)
	if err := d.apply(g, o); err != nil {
		return nil, err
	}
	return g.input, nil
}

// Params returns all dense layer parameters flattened (weights then biases).
func (d *Dense) Params() []float64 {
	if d.weights == nil {
		return nil
	}
	w := d.weights.RawMatrix().Data
	params := make([]float64, 0, len(w)+len(d.biases))
	params = append(params, w...)
	params = append(params, d.biases...)
	return params
}

// SetParams updates weights and biases from a flattened slice (in-place).
func (d *Dense) SetParams(params []float64) error {
	if d.weights == nil {
		return errors.Wrap(tensor.ErrReleased, "dense")
	}
	w := d.weights.RawMatrix().Data
	if len(params) != len(w)+len(d.biases) {
		return errors.Wrapf(tensor.ErrShape, "dense: %d params, want %d", len(params), len(w)+len(d.biases))
	}
	copy(w, params[:len(w)])
	copy(d.biases, params[len(w):])
	return nil
}

// SetWeight sets a single weight at (row, col).
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights.Set(row, col, val)
}

// Weight gets a single weight at (row, col).
func (d *Dense) Weight(row, col int) float64 {
	return d.weights.At(row, col)
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// Bias gets a single bias.
func (d *Dense) Bias(idx int) float64 {
	return d.biases[idx]
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

// Release drops the weights. Later calls fail with tensor.ErrReleased.
func (d *Dense) Release() {
	d.weights = nil
	d.biases = nil
}
