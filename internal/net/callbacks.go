package net

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(t *Trainer)
	OnTrainEnd(t *Trainer)
	OnEpochBegin(epoch int, t *Trainer)
	OnEpochEnd(epoch int, m Metrics, t *Trainer)
	OnStep(epoch, step int, res StepResult, t *Trainer)
}

// Stopper is implemented by callbacks that can end training early.
// Trainer checks it after every epoch.
type Stopper interface {
	ShouldStop() bool
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(t *Trainer)                            {}
func (c BaseCallback) OnTrainEnd(t *Trainer)                              {}
func (c BaseCallback) OnEpochBegin(epoch int, t *Trainer)                 {}
func (c BaseCallback) OnEpochEnd(epoch int, m Metrics, t *Trainer)        {}
func (c BaseCallback) OnStep(epoch, step int, res StepResult, t *Trainer) {}

// EarlyStopping stops training when the epoch loss has stopped improving.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.MaxFloat64,
	}
}

func (c *EarlyStopping) OnEpochEnd(epoch int, m Metrics, t *Trainer) {
	if m.Loss < c.bestLoss-c.Threshold {
		c.bestLoss = m.Loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if c.numBadEpochs >= c.Patience {
		fmt.Printf("\nEarly stopping at epoch %d: loss %.6f did not improve for %d epochs\n", epoch, m.Loss, c.Patience)
		c.Stopped = true
	}
}

func (c *EarlyStopping) ShouldStop() bool {
	return c.Stopped
}

// Logger prints the average loss and accuracy of every Interval steps.
type Logger struct {
	BaseCallback
	Interval int
	Out      io.Writer // os.Stdout if nil

	window window
}

func NewLogger(interval int) *Logger {
	return &Logger{Interval: interval}
}

func (c *Logger) OnEpochBegin(epoch int, t *Trainer) {
	c.window.reset()
}

func (c *Logger) OnStep(epoch, step int, res StepResult, t *Trainer) {
	if c.Interval <= 0 {
		return
	}
	c.window.add(res)
	if step%c.Interval != 0 {
		return
	}
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "[Epoch %d][Step %d] Past %d steps : Average Loss: %f | Accuracy: %d%%\n",
		epoch, step, c.window.n, c.window.meanLoss(), c.window.percentCorrect())
	c.window.reset()
}

func (c *Logger) OnEpochEnd(epoch int, m Metrics, t *Trainer) {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Epoch %d: Average Loss: %f | Accuracy: %d%%\n", epoch, m.Loss, m.Percent())
}

// WriteReport prints m as a boxed summary line.
func WriteReport(w io.Writer, m Metrics) {
	line := fmt.Sprintf("| Average Loss: %f | Accuracy: %d%% |", m.Loss, m.Percent())
	rule := "|" + strings.Repeat("-", len(line)-2) + "|"
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, line, rule)
}
