package net

import (
	"github.com/FlavioCFOliveira/minicnn/internal/loss"
	"gonum.org/v1/gonum/stat"
)

// score computes the loss and correctness of one prediction.
func score(n *Network, probs []float64, label int) (StepResult, error) {
	l, err := n.Loss(probs, label)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Probs:   probs,
		Label:   label,
		Loss:    l,
		Correct: loss.Accuracy(probs, label),
	}, nil
}

func summarize(sumLoss float64, correct, samples int) Metrics {
	if samples == 0 {
		return Metrics{}
	}
	return Metrics{
		Loss:     sumLoss / float64(samples),
		Accuracy: float64(correct) / float64(samples),
		Correct:  correct,
		Samples:  samples,
	}
}

// window accumulates the steps between two reports.
type window struct {
	losses  []float64
	correct int
	n       int
}

func (w *window) add(res StepResult) {
	w.losses = append(w.losses, res.Loss)
	w.correct += res.Correct
	w.n++
}

func (w *window) reset() {
	w.losses = w.losses[:0]
	w.correct = 0
	w.n = 0
}

func (w *window) meanLoss() float64 {
	if w.n == 0 {
		return 0
	}
	return stat.Mean(w.losses, nil)
}

// percentCorrect truncates like integer division.
func (w *window) percentCorrect() int {
	if w.n == 0 {
		return 0
	}
	return w.correct * 100 / w.n
}

// MovingAverage is the mean of the last Size values added.
type MovingAverage struct {
	Size int

	values []float64
	next   int
	full   bool
}

func NewMovingAverage(size int) *MovingAverage {
	return &MovingAverage{Size: size, values: make([]float64, 0, max(size, 0))}
}

// Add records v, evicting the oldest value once Size values are held.
func (m *MovingAverage) Add(v float64) {
	if m.Size <= 0 {
		return
	}
	if !m.full {
		m.values = append(m.values, v)
		if len(m.values) == m.Size {
			m.full = true
		}
		return
	}
	m.values[m.next] = v
	m.next = (m.next + 1) % m.Size
}

// Value returns the current average, or 0 before any Add.
func (m *MovingAverage) Value() float64 {
	if len(m.values) == 0 {
		return 0
	}
	return stat.Mean(m.values, nil)
}

// Full reports whether Size values have been seen.
func (m *MovingAverage) Full() bool {
	return m.full
}
