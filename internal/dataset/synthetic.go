package dataset

import (
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/pkg/errors"
)

// Synthetic generates a two-class dataset: label 0 images carry a vertical
// bar, label 1 images a horizontal bar, at a random offset with light
// background noise.
func Synthetic(rng *layer.RNG, n, width, height int) (*Set, error) {
	if width < 3 || height < 3 {
		return nil, errors.Errorf("synthetic images must be at least 3x3, got %dx%d", width, height)
	}

	set := &Set{Width: width, Height: height, Samples: make([]Sample, n)}
	pix := make([]byte, width*height)
	for i := range set.Samples {
		label := i % 2
		for p := range pix {
			pix[p] = byte(rng.Intn(40))
		}

		if label == 0 {
			x := 1 + rng.Intn(width-2)
			for y := 1; y < height-1; y++ {
				pix[y*width+x] = 255
			}
		} else {
			y := 1 + rng.Intn(height-2)
			for x := 1; x < width-1; x++ {
				pix[y*width+x] = 255
			}
		}

		img, err := fromBytes(width, height, pix)
		if err != nil {
			return nil, err
		}
		set.Samples[i] = Sample{Image: img, Label: label}
	}
	return set, nil
}
