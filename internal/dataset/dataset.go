// Package dataset loads labelled grayscale images for training.
package dataset

import (
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
)

// Sample is one normalized image and its class label.
type Sample struct {
	Image *tensor.Image
	Label int
}

// Set is a collection of samples sharing one image size.
type Set struct {
	Width   int
	Height  int
	Samples []Sample
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Samples)
}

// Limit truncates the set to at most n samples. n <= 0 keeps everything.
func (s *Set) Limit(n int) {
	if n > 0 && n < len(s.Samples) {
		s.Samples = s.Samples[:n]
	}
}

// Shuffle permutes the samples in place (Fisher-Yates).
func (s *Set) Shuffle(rng *layer.RNG) {
	for i := len(s.Samples) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		s.Samples[i], s.Samples[j] = s.Samples[j], s.Samples[i]
	}
}

// Split returns the first ratio of the samples and the rest. Both share
// the underlying images.
func (s *Set) Split(ratio float64) (*Set, *Set) {
	idx := int(float64(len(s.Samples)) * ratio)
	if idx < 0 {
		idx = 0
	}
	if idx > len(s.Samples) {
		idx = len(s.Samples)
	}
	head := &Set{Width: s.Width, Height: s.Height, Samples: s.Samples[:idx]}
	tail := &Set{Width: s.Width, Height: s.Height, Samples: s.Samples[idx:]}
	return head, tail
}

// Classes returns one more than the largest label.
func (s *Set) Classes() int {
	n := 0
	for _, smp := range s.Samples {
		if smp.Label+1 > n {
			n = smp.Label + 1
		}
	}
	return n
}

// Validate checks every image size and that labels lie in [0, classes).
func (s *Set) Validate(classes int) error {
	for i, smp := range s.Samples {
		if smp.Image == nil || smp.Image.Width != s.Width || smp.Image.Height != s.Height {
			return errors.Wrapf(tensor.ErrShape, "sample %d: image is not %dx%d", i, s.Width, s.Height)
		}
		if smp.Label < 0 || smp.Label >= classes {
			return errors.Wrapf(tensor.ErrShape, "sample %d: label %d outside [0, %d)", i, smp.Label, classes)
		}
	}
	return nil
}

// fromBytes normalizes 8-bit pixels to [0,1].
func fromBytes(width, height int, pix []byte) (*tensor.Image, error) {
	img, err := tensor.NewImage(width, height)
	if err != nil {
		return nil, err
	}
	if len(pix) != len(img.Pix) {
		return nil, errors.Wrapf(tensor.ErrShape, "%d pixels for a %dx%d image", len(pix), width, height)
	}
	for i, b := range pix {
		img.Pix[i] = float64(b) / 255.0
	}
	return img, nil
}
