package net

import (
	"math"
	"testing"

	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// newTestNetwork builds an 8x8 network: 3x3 filters give 6x6 responses,
// pooled to 3x3 per filter.
func newTestNetwork(t *testing.T, seed uint64, filters, classes int) *Network {
	t.Helper()
	rng := layer.NewRNG(seed)
	conv, err := layer.NewConv2D(filters, 3, rng)
	if err != nil {
		t.Fatal(err)
	}
	dense, err := layer.NewDense(classes, filters*3*3, rng)
	if err != nil {
		t.Fatal(err)
	}
	n, err := New(conv, dense, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func testImage(t *testing.T, w, h int) *tensor.Image {
	t.Helper()
	img, err := tensor.NewImage(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		img.Pix[i] = float64(i%7) / 7
	}
	return img
}

func TestNewShapeChecks(t *testing.T) {
	rng := layer.NewRNG(1)
	conv3, _ := layer.NewConv2D(2, 3, rng)
	conv9, _ := layer.NewConv2D(2, 9, rng)

	tests := []struct {
		name   string
		conv   *layer.Conv2D
		inSize int
		w, h   int
	}{
		{"Filter larger than image", conv9, 2, 8, 8},
		{"Odd convolution output", conv3, 2 * 2 * 2, 7, 7},
		{"Dense input mismatch", conv3, 17, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dense, err := layer.NewDense(2, tt.inSize, rng)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := New(tt.conv, dense, tt.w, tt.h); !errors.Is(err, tensor.ErrShape) {
				t.Errorf("error = %v, want ErrShape", err)
			}
		})
	}

	if _, err := New(nil, nil, 8, 8); err == nil {
		t.Error("expected error for nil layers")
	}
}

func TestPredict(t *testing.T) {
	n := newTestNetwork(t, 42, 2, 4)
	img := testImage(t, 8, 8)

	before := append([]float64(nil), n.Dense().Params()...)
	probs, err := n.Predict(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(probs) != 4 {
		t.Fatalf("len(probs) = %d, expected 4", len(probs))
	}
	if math.Abs(floats.Sum(probs)-1) > 1e-12 {
		t.Errorf("probabilities sum to %v", floats.Sum(probs))
	}
	if !floats.Equal(before, n.Dense().Params()) {
		t.Error("Predict changed the dense weights")
	}

	if _, err := n.Predict(testImage(t, 6, 8)); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("wrong image size: error = %v, want ErrShape", err)
	}
}

func TestTrainStepMovesTowardLabel(t *testing.T) {
	n := newTestNetwork(t, 7, 2, 3)
	img := testImage(t, 8, 8)
	const label = 2

	first, err := n.TrainStep(img, label, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	after, err := n.Predict(img)
	if err != nil {
		t.Fatal(err)
	}
	if after[label] <= first[label] {
		t.Errorf("p[label] went from %v to %v, expected an increase", first[label], after[label])
	}

	convBefore := append([]float64(nil), n.Conv().Params()...)
	if _, err := n.TrainStep(img, label, 0.01); err != nil {
		t.Fatal(err)
	}
	if floats.Equal(convBefore, n.Conv().Params()) {
		t.Error("TrainStep did not update the filters")
	}
}

func TestTrainStepErrors(t *testing.T) {
	n := newTestNetwork(t, 3, 2, 3)
	img := testImage(t, 8, 8)
	convBefore := append([]float64(nil), n.Conv().Params()...)

	if _, err := n.TrainStep(img, 3, 0.01); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("label out of range: error = %v, want ErrShape", err)
	}
	if _, err := n.TrainStep(img, -1, 0.01); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("negative label: error = %v, want ErrShape", err)
	}
	if _, err := n.Step(img, 0, nil); err == nil {
		t.Error("expected error for nil optimizer")
	}
	if !floats.Equal(convBefore, n.Conv().Params()) {
		t.Error("a failed step changed the filters")
	}
}

func TestNetworkRelease(t *testing.T) {
	n := newTestNetwork(t, 5, 2, 2)
	n.Release()
	n.Release()

	if n.Classes() != 0 {
		t.Errorf("Classes after release = %d", n.Classes())
	}
	if _, err := n.Predict(testImage(t, 8, 8)); !errors.Is(err, tensor.ErrReleased) {
		t.Errorf("Predict after release: error = %v, want ErrReleased", err)
	}
	if _, err := n.TrainStep(testImage(t, 8, 8), 0, 0.1); !errors.Is(err, tensor.ErrReleased) {
		t.Errorf("TrainStep after release: error = %v, want ErrReleased", err)
	}
}

func TestAccessors(t *testing.T) {
	n := newTestNetwork(t, 9, 3, 5)
	if w, h := n.InputSize(); w != 8 || h != 8 {
		t.Errorf("InputSize = %dx%d", w, h)
	}
	if n.Classes() != 5 {
		t.Errorf("Classes = %d, expected 5", n.Classes())
	}
	if n.Conv().NumFilters() != 3 || n.Dense().InSize() != 27 {
		t.Errorf("layers: %d filters, dense input %d", n.Conv().NumFilters(), n.Dense().InSize())
	}
	l, err := n.Loss([]float64{0.25, 0.25, 0.5, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l-math.Ln2) > 1e-12 {
		t.Errorf("Loss = %v, expected ln 2", l)
	}
}
