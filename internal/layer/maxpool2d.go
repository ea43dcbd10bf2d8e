package layer

import (
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
)

// MaxPool2D implements 2x2 max pooling with stride 2.
// The layer holds no state; the argmax switches recorded in Forward travel
// with the returned Pooled value and are consumed by Backward.
type MaxPool2D struct{}

// Pooled is the output of MaxPool2D.Forward.
type Pooled struct {
	// Values is channel-major: Values[c*outW*outH + py*outW + px].
	Values []float64
	// Switches[i] is the index in the source Volume's Data that produced
	// Values[i].
	Switches []int

	srcWidth    int
	srcHeight   int
	srcChannels int
}

// OutputLen returns the pooled vector length for a width×height×channels
// input.
func (MaxPool2D) OutputLen(width, height, channels int) int {
	return (width / 2) * (height / 2) * channels
}

// Forward reduces every disjoint 2x2 block of each channel to its maximum.
// Within a block the first maximum in row-major order wins.
func (MaxPool2D) Forward(v *tensor.Volume) (*Pooled, error) {
	if v == nil || len(v.Data) != v.Width*v.Height*v.Channels {
		return nil, errors.Wrap(tensor.ErrShape, "pool: malformed input")
	}
	if v.Width%2 != 0 || v.Height%2 != 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "pool: input %dx%d is not even", v.Width, v.Height)
	}

	outW, outH := v.Width/2, v.Height/2
	channelStride := outW * outH
	n := channelStride * v.Channels
	p := &Pooled{
		Values:      make([]float64, n),
		Switches:    make([]int, n),
		srcWidth:    v.Width,
		srcHeight:   v.Height,
		srcChannels: v.Channels,
	}

	for c := 0; c < v.Channels; c++ {
		for py := 0; py < outH; py++ {
			for px := 0; px < outW; px++ {
				maxIdx := v.Index(2*px, 2*py, c)
				maxVal := v.Data[maxIdx]
				for _, off := range [3][2]int{{1, 0}, {0, 1}, {1, 1}} {
					idx := v.Index(2*px+off[0], 2*py+off[1], c)
					if v.Data[idx] > maxVal {
						maxVal = v.Data[idx]
						maxIdx = idx
					}
				}

				pos := c*channelStride + py*outW + px
				p.Values[pos] = maxVal
				p.Switches[pos] = maxIdx
			}
		}
	}

	return p, nil
}

// Backward routes each pooled gradient to the position that produced the
// maximum. Every other position receives zero.
func (MaxPool2D) Backward(p *Pooled, grad []float64) (*tensor.Volume, error) {
	if p == nil {
		return nil, errors.Wrap(tensor.ErrShape, "pool: nil forward result")
	}
	if len(grad) != len(p.Values) {
		return nil, errors.Wrapf(tensor.ErrShape, "pool: gradient length %d, want %d", len(grad), len(p.Values))
	}

	gradIn, err := tensor.NewVolume(p.srcWidth, p.srcHeight, p.srcChannels)
	if err != nil {
		return nil, errors.Wrap(err, "pool: input gradient")
	}
	for i, g := range grad {
		gradIn.Data[p.Switches[i]] += g
	}
	return gradIn, nil
}
