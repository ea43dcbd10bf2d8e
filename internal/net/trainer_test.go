package net

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FlavioCFOliveira/minicnn/internal/dataset"
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/opt"
	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// recorder keeps every epoch's metrics and a moving average of step loss.
type recorder struct {
	BaseCallback
	epochs  []Metrics
	avg     *MovingAverage
	avgs    []float64
	losses  []float64
	begun   int
	ended   int
	started []int
}

func (r *recorder) OnTrainBegin(t *Trainer)            { r.begun++ }
func (r *recorder) OnTrainEnd(t *Trainer)              { r.ended++ }
func (r *recorder) OnEpochBegin(epoch int, t *Trainer) { r.started = append(r.started, epoch) }

func (r *recorder) OnEpochEnd(epoch int, m Metrics, t *Trainer) {
	r.epochs = append(r.epochs, m)
}

func (r *recorder) OnStep(epoch, step int, res StepResult, t *Trainer) {
	r.losses = append(r.losses, res.Loss)
	r.avg.Add(res.Loss)
	if r.avg.Full() {
		r.avgs = append(r.avgs, r.avg.Value())
	}
}

func syntheticSet(t *testing.T, seed uint64, n int) *dataset.Set {
	t.Helper()
	set, err := dataset.Synthetic(layer.NewRNG(seed), n, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestFitSynthetic(t *testing.T) {
	n := newTestNetwork(t, 11, 2, 2)
	train := syntheticSet(t, 12, 200)
	test := syntheticSet(t, 13, 100)

	rec := &recorder{avg: NewMovingAverage(10)}
	tr := &Trainer{
		Net:          n,
		LearningRate: 0.05,
		Epochs:       5,
		Shuffle:      true,
		RNG:          layer.NewRNG(14),
		Callbacks:    []Callback{rec},
	}
	last, err := tr.Fit(train)
	if err != nil {
		t.Fatal(err)
	}

	if rec.begun != 1 || rec.ended != 1 || len(rec.started) != 5 || len(rec.epochs) != 5 {
		t.Fatalf("callbacks: begin %d, end %d, epochs %v", rec.begun, rec.ended, rec.started)
	}
	if last != rec.epochs[4] || last.Samples != 200 {
		t.Errorf("Fit returned %+v, last epoch was %+v", last, rec.epochs[4])
	}
	for i, v := range rec.avgs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("moving average %d is %v", i, v)
		}
	}

	// The 10-step moving average must trend down and never climb back
	// above the worst stretch of the first epoch.
	const k = 100
	if len(rec.avgs) != 1000-9 {
		t.Fatalf("got %d moving averages, expected %d", len(rec.avgs), 1000-9)
	}
	head, tail := stat.Mean(rec.avgs[:k], nil), stat.Mean(rec.avgs[len(rec.avgs)-k:], nil)
	if tail >= head {
		t.Errorf("moving average did not decrease: first %d mean %v, last %d mean %v", k, head, k, tail)
	}
	firstEpoch := rec.avgs[:200-9]
	if worst, later := floats.Max(firstEpoch), floats.Max(rec.avgs[200-9:]); later > 1.5*worst {
		t.Errorf("moving average diverged: peak %v after epoch 1, %v during it", later, worst)
	}
	if first := rec.epochs[0].Loss; last.Loss >= first {
		t.Errorf("loss did not decrease: first epoch %v, last epoch %v", first, last.Loss)
	}

	m, err := Evaluate(n, test)
	if err != nil {
		t.Fatal(err)
	}
	if m.Samples != 100 || m.Accuracy < 0 || m.Accuracy > 1 {
		t.Errorf("Evaluate = %+v", m)
	}
}

func TestFitErrors(t *testing.T) {
	set := syntheticSet(t, 1, 4)

	if _, err := (&Trainer{Epochs: 1}).Fit(set); err == nil {
		t.Error("expected error for nil network")
	}
	n := newTestNetwork(t, 1, 2, 2)
	if _, err := (&Trainer{Net: n, Epochs: 1, Shuffle: true}).Fit(set); err == nil {
		t.Error("expected error for shuffle without RNG")
	}

	one := newTestNetwork(t, 1, 2, 1)
	if _, err := (&Trainer{Net: one, Epochs: 1}).Fit(set); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("labels beyond classes: error = %v, want ErrShape", err)
	}

	if _, err := (&Trainer{Net: n, Epochs: 1}).Fit(nil); err == nil {
		t.Error("expected error for nil dataset")
	}
	if _, err := Evaluate(n, nil); err == nil {
		t.Error("Evaluate: expected error for nil dataset")
	}
	if _, err := Evaluate(nil, set); err == nil {
		t.Error("Evaluate: expected error for nil network")
	}

	n.Release()
	if _, err := (&Trainer{Net: n, Epochs: 1}).Fit(set); err == nil {
		t.Error("expected error for released network")
	}
}

// countingSGD counts the parameter buffers it updates.
type countingSGD struct {
	opt.SGD
	calls int
}

func (c *countingSGD) StepInPlace(params, gradients []float64) error {
	c.calls++
	return c.SGD.StepInPlace(params, gradients)
}

func TestFitUsesOptimizer(t *testing.T) {
	n := newTestNetwork(t, 21, 2, 2)
	set := syntheticSet(t, 22, 4)
	before := n.Conv().Params()

	o := &countingSGD{SGD: opt.SGD{LearningRate: 0.05}}
	tr := &Trainer{Net: n, Epochs: 1, Optimizer: o}
	if _, err := tr.Fit(set); err != nil {
		t.Fatal(err)
	}
	// Dense weights, dense biases and filters for each of the 4 samples.
	if o.calls != 12 {
		t.Errorf("optimizer called %d times, expected 12", o.calls)
	}
	if floats.Equal(before, n.Conv().Params()) {
		t.Error("filters unchanged after training")
	}
}

func TestEarlyStopping(t *testing.T) {
	n := newTestNetwork(t, 2, 2, 2)
	set := syntheticSet(t, 3, 10)

	// A huge threshold means no epoch ever counts as an improvement.
	es := NewEarlyStopping(2, 1e9)
	rec := &recorder{avg: NewMovingAverage(1)}
	tr := &Trainer{Net: n, LearningRate: 0.01, Epochs: 10, Callbacks: []Callback{rec, es}}
	if _, err := tr.Fit(set); err != nil {
		t.Fatal(err)
	}
	if !es.ShouldStop() {
		t.Error("EarlyStopping did not trigger")
	}
	// Epoch 1 sets the baseline; epochs 2 and 3 exhaust the patience.
	if len(rec.epochs) != 3 {
		t.Errorf("ran %d epochs, expected 3", len(rec.epochs))
	}
}

func TestLogger(t *testing.T) {
	n := newTestNetwork(t, 4, 2, 2)
	set := syntheticSet(t, 5, 10)

	var buf bytes.Buffer
	lg := NewLogger(5)
	lg.Out = &buf
	tr := &Trainer{Net: n, LearningRate: 0.01, Epochs: 1, Callbacks: []Callback{lg}}
	if _, err := tr.Fit(set); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "[Epoch 1][Step 5] Past 5 steps : Average Loss: ") ||
		!strings.HasSuffix(lines[0], "%") {
		t.Errorf("unexpected line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[Epoch 1][Step 10] Past 5 steps") {
		t.Errorf("unexpected line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "Epoch 1: Average Loss: ") || !strings.HasSuffix(lines[2], "%") {
		t.Errorf("unexpected summary %q", lines[2])
	}
}

func TestCSVLogger(t *testing.T) {
	n := newTestNetwork(t, 6, 2, 2)
	set := syntheticSet(t, 7, 8)
	path := filepath.Join(t.TempDir(), "train.csv")

	tr := &Trainer{Net: n, LearningRate: 0.01, Epochs: 2, Callbacks: []Callback{NewCSVLogger(path, 4, false)}}
	if _, err := tr.Fit(set); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Header plus two windows per epoch.
	if len(records) != 5 {
		t.Fatalf("got %d records: %v", len(records), records)
	}
	if records[0][0] != "epoch" || records[0][2] != "avg_loss" {
		t.Errorf("header = %v", records[0])
	}
	if records[4][0] != "2" || records[4][1] != "8" {
		t.Errorf("last row = %v", records[4])
	}
}

func TestPlotLogger(t *testing.T) {
	n := newTestNetwork(t, 8, 2, 2)
	set := syntheticSet(t, 9, 12)
	path := filepath.Join(t.TempDir(), "loss.png")

	pl := NewPlotLogger(path, 4)
	rec := &recorder{avg: NewMovingAverage(1)}
	tr := &Trainer{Net: n, LearningRate: 0.01, Epochs: 2, Callbacks: []Callback{rec, pl}}
	if _, err := tr.Fit(set); err != nil {
		t.Fatal(err)
	}
	if len(pl.Points()) != 6 {
		t.Fatalf("recorded %d points, expected 6", len(pl.Points()))
	}
	if pl.Points()[5].X != 24 {
		t.Errorf("last point at step %v, expected 24", pl.Points()[5].X)
	}
	// The point at step 8 averages steps 5 to 8.
	if want := stat.Mean(rec.losses[4:8], nil); math.Abs(pl.Points()[1].Y-want) > 1e-12 {
		t.Errorf("point at step 8 = %v, expected moving average %v", pl.Points()[1].Y, want)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	m := Metrics{Loss: 0.5, Accuracy: 1.0 / 3, Correct: 1, Samples: 3}
	WriteReport(&buf, m)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[1] != "| Average Loss: 0.500000 | Accuracy: 33% |" {
		t.Errorf("report line = %q", lines[1])
	}
	if len(lines[0]) != len(lines[1]) || lines[0] != lines[2] {
		t.Errorf("rules %q / %q do not frame %q", lines[0], lines[2], lines[1])
	}
}

func TestMetricsPercent(t *testing.T) {
	tests := []struct {
		m    Metrics
		want int
	}{
		{Metrics{Correct: 29, Samples: 100}, 29},
		{Metrics{Correct: 2, Samples: 3}, 66},
		{Metrics{}, 0},
	}
	for _, tt := range tests {
		if got := tt.m.Percent(); got != tt.want {
			t.Errorf("%+v.Percent() = %d, want %d", tt.m, got, tt.want)
		}
	}
}

func TestMovingAverage(t *testing.T) {
	m := NewMovingAverage(3)
	if m.Value() != 0 || m.Full() {
		t.Fatal("new average should be empty")
	}
	m.Add(1)
	m.Add(2)
	if m.Value() != 1.5 || m.Full() {
		t.Errorf("Value = %v, Full = %v", m.Value(), m.Full())
	}
	m.Add(3)
	m.Add(7)
	if !m.Full() || m.Value() != 4 {
		t.Errorf("Value = %v, expected 4", m.Value())
	}
	m.Add(8)
	if m.Value() != 6 {
		t.Errorf("Value = %v, expected 6", m.Value())
	}
}
