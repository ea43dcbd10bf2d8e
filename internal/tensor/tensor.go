// Package tensor provides the contiguous buffers shared by the layers.
package tensor

import (
	"math"

	"github.com/pkg/errors"
)

// MaxElements caps a single allocation. Requests above it fail with
// ErrAllocation instead of aborting the process.
const MaxElements = 1 << 28

var (
	// ErrShape reports dimensions that disagree at a call boundary.
	ErrShape = errors.New("shape mismatch")
	// ErrAllocation reports a buffer request that cannot be satisfied.
	ErrAllocation = errors.New("allocation failed")
	// ErrNumerical reports NaN or Inf values produced during a step.
	ErrNumerical = errors.New("numerical instability")
	// ErrReleased reports use of a layer after it was released.
	ErrReleased = errors.New("layer released")
)

// Alloc returns a zeroed buffer holding the product of dims.
func Alloc(dims ...int) ([]float64, error) {
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrAllocation, "non-positive dimension in %v", dims)
		}
	}
	n, err := Elements(dims...)
	if err != nil {
		return nil, err
	}
	return make([]float64, n), nil
}

// Elements returns the product of dims, failing with ErrAllocation when a
// dimension is negative or the product overflows or exceeds MaxElements.
// Zero dimensions are allowed.
func Elements(dims ...int) (int, error) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, errors.Wrapf(ErrAllocation, "negative dimension in %v", dims)
		}
		if d == 0 {
			n = 0
			continue
		}
		if n > math.MaxInt/d || n*d > MaxElements {
			return 0, errors.Wrapf(ErrAllocation, "%v exceeds %d elements", dims, MaxElements)
		}
		n *= d
	}
	return n, nil
}

// Image is a single-channel grid stored row-major: Pix[y*Width+x].
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zeroed width×height image.
func NewImage(width, height int) (*Image, error) {
	pix, err := Alloc(width, height)
	if err != nil {
		return nil, err
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// ImageFrom wraps pix without copying.
func ImageFrom(width, height int, pix []float64) (*Image, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height {
		return nil, errors.Wrapf(ErrShape, "image %dx%d with %d pixels", width, height, len(pix))
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// At returns the pixel at column x, row y.
func (im *Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set stores v at column x, row y.
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Volume is a grid of cells, each holding Channels values.
// Layout: Data[(y*Width+x)*Channels+c].
type Volume struct {
	Width    int
	Height   int
	Channels int
	Data     []float64
}

// NewVolume allocates a zeroed width×height×channels volume.
func NewVolume(width, height, channels int) (*Volume, error) {
	data, err := Alloc(width, height, channels)
	if err != nil {
		return nil, err
	}
	return &Volume{Width: width, Height: height, Channels: channels, Data: data}, nil
}

// Index returns the offset of (x, y, c) in Data.
func (v *Volume) Index(x, y, c int) int {
	return (y*v.Width+x)*v.Channels + c
}

// At returns the value at (x, y, c).
func (v *Volume) At(x, y, c int) float64 {
	return v.Data[v.Index(x, y, c)]
}

// Set stores val at (x, y, c).
func (v *Volume) Set(x, y, c int, val float64) {
	v.Data[v.Index(x, y, c)] = val
}

// Cell returns the channel vector at (x, y). It aliases Data.
func (v *Volume) Cell(x, y int) []float64 {
	i := v.Index(x, y, 0)
	return v.Data[i : i+v.Channels]
}

// SameShape reports whether v and o have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Channels == o.Channels
}
