// Package layer provides neural network layer implementations.
package layer

import (
	"github.com/FlavioCFOliveira/minicnn/internal/opt"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
)

// Conv2D is a single-channel valid cross-correlation layer.
// No bias and no activation: outputs are raw filter responses.
type Conv2D struct {
	numFilters int
	filterSize int

	// Filters: [numFilters, filterSize, filterSize]
	// Stored as contiguous slice: filter k, row fy, column fx is at
	// filters[(k*filterSize+fy)*filterSize+fx]
	filters []float64
}

// NewConv2D creates numFilters square filters of side filterSize,
// He-initialized with scale sqrt(2/filterSize²).
func NewConv2D(numFilters, filterSize int, rng *RNG) (*Conv2D, error) {
	if numFilters <= 0 || filterSize <= 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "conv: %d filters of size %d", numFilters, filterSize)
	}
	if rng == nil {
		return nil, errors.New("conv: nil RNG")
	}

	filters, err := tensor.Alloc(numFilters, filterSize, filterSize)
	if err != nil {
		return nil, errors.Wrap(err, "conv: filters")
	}
	heFill(filters, filterSize*filterSize, rng)

	return &Conv2D{
		numFilters: numFilters,
		filterSize: filterSize,
		filters:    filters,
	}, nil
}

// OutputSize returns the spatial size of the response grid for a
// width×height input.
func (c *Conv2D) OutputSize(width, height int) (int, int) {
	return width - c.filterSize + 1, height - c.filterSize + 1
}

func (c *Conv2D) check(img *tensor.Image) error {
	if c.filters == nil {
		return errors.Wrap(tensor.ErrReleased, "conv")
	}
	if img == nil || len(img.Pix) != img.Width*img.Height {
		return errors.Wrap(tensor.ErrShape, "conv: malformed image")
	}
	if img.Width < c.filterSize || img.Height < c.filterSize {
		return errors.Wrapf(tensor.ErrShape, "conv: image %dx%d smaller than filter %d",
			img.Width, img.Height, c.filterSize)
	}
	return nil
}

// Forward computes every filter's response at every window position.
// Returns a Volume of OutputSize cells with numFilters channels.
func (c *Conv2D) Forward(img *tensor.Image) (*tensor.Volume, error) {
	if err := c.check(img); err != nil {
		return nil, err
	}

	outW, outH := c.OutputSize(img.Width, img.Height)
	out, err := tensor.NewVolume(outW, outH, c.numFilters)
	if err != nil {
		return nil, errors.Wrap(err, "conv: output")
	}

	fs := c.filterSize
	filterStride := fs * fs
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			cell := out.Cell(x, y)
			for k := 0; k < c.numFilters; k++ {
				filter := c.filters[k*filterStride : (k+1)*filterStride]
				sum := 0.0
				for fy := 0; fy < fs; fy++ {
					row := img.Pix[(y+fy)*img.Width+x : (y+fy)*img.Width+x+fs]
					weights := filter[fy*fs : (fy+1)*fs]
					for fx, v := range row {
						sum += v * weights[fx]
					}
				}
				cell[k] = sum
			}
		}
	}

	return out, nil
}

// Backward accumulates the filter gradient from grad (the loss gradient
// w.r.t. the Forward output) and hands it to o to update the filters.
//
//	dF[k][fy][fx] = sum over (x, y) of grad[x, y, k] * img[x+fx, y+fy]
func (c *Conv2D) Backward(img *tensor.Image, grad *tensor.Volume, o opt.Optimizer) error {
	if err := c.check(img); err != nil {
		return err
	}
	outW, outH := c.OutputSize(img.Width, img.Height)
	if grad == nil || grad.Width != outW || grad.Height != outH || grad.Channels != c.numFilters {
		return errors.Wrapf(tensor.ErrShape, "conv: gradient does not match %dx%dx%d output",
			outW, outH, c.numFilters)
	}

	gradFilters, err := c.gradient(img, grad)
	if err != nil {
		return err
	}
	return errors.Wrap(o.StepInPlace(c.filters, gradFilters), "conv: update")
}

func (c *Conv2D) gradient(img *tensor.Image, grad *tensor.Volume) ([]float64, error) {
	fs := c.filterSize
	gradFilters, err := tensor.Alloc(c.numFilters, fs, fs)
	if err != nil {
		return nil, errors.Wrap(err, "conv: filter gradient")
	}

	for y := 0; y < grad.Height; y++ {
		for x := 0; x < grad.Width; x++ {
			cell := grad.Cell(x, y)
			for k, g := range cell {
				// Max pooling leaves most positions with a zero gradient.
				if g == 0 {
					continue
				}
				base := k * fs * fs
				for fy := 0; fy < fs; fy++ {
					row := img.Pix[(y+fy)*img.Width+x : (y+fy)*img.Width+x+fs]
					for fx, v := range row {
						gradFilters[base+fy*fs+fx] += g * v
					}
				}
			}
		}
	}
	return gradFilters, nil
}

// NumFilters returns the number of filters.
func (c *Conv2D) NumFilters() int {
	return c.numFilters
}

// FilterSize returns the side length of each filter.
func (c *Conv2D) FilterSize() int {
	return c.filterSize
}

// Filter returns filter k as a row-major filterSize×filterSize slice.
// The slice aliases the layer's weights. It is nil after Release or for k
// out of range.
func (c *Conv2D) Filter(k int) []float64 {
	if c.filters == nil || k < 0 || k >= c.numFilters {
		return nil
	}
	n := c.filterSize * c.filterSize
	return c.filters[k*n : (k+1)*n]
}

// Params returns a copy of all filter weights.
func (c *Conv2D) Params() []float64 {
	params := make([]float64, len(c.filters))
	copy(params, c.filters)
	return params
}

// SetParams overwrites all filter weights.
func (c *Conv2D) SetParams(params []float64) error {
	if c.filters == nil {
		return errors.Wrap(tensor.ErrReleased, "conv")
	}
	if len(params) != len(c.filters) {
		return errors.Wrapf(tensor.ErrShape, "conv: %d params, want %d", len(params), len(c.filters))
	}
	copy(c.filters, params)
	return nil
}

// Release drops the weights. Later calls fail with tensor.ErrReleased.
func (c *Conv2D) Release() {
	c.filters = nil
}
