package net

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotLogger samples the moving average of the step loss over the last
// Interval steps, once every Interval steps, and renders the curve to
// Filename when training ends. The image format follows the file extension
// (png, svg, pdf...).
type PlotLogger struct {
	BaseCallback
	Filename string
	Interval int

	points plotter.XYs
	avg    *MovingAverage
	steps  int
}

func NewPlotLogger(filename string, interval int) *PlotLogger {
	return &PlotLogger{Filename: filename, Interval: interval}
}

func (c *PlotLogger) OnTrainBegin(t *Trainer) {
	c.points = c.points[:0]
	c.avg = NewMovingAverage(c.Interval)
	c.steps = 0
}

func (c *PlotLogger) OnStep(epoch, step int, res StepResult, t *Trainer) {
	if c.Interval <= 0 || c.avg == nil {
		return
	}
	c.steps++
	c.avg.Add(res.Loss)
	if c.steps%c.Interval == 0 {
		c.points = append(c.points, plotter.XY{X: float64(c.steps), Y: c.avg.Value()})
	}
}

func (c *PlotLogger) OnTrainEnd(t *Trainer) {
	if err := c.Save(); err != nil {
		fmt.Printf("PlotLogger: %v\n", err)
	}
}

// Points returns the recorded (step, average loss) pairs.
func (c *PlotLogger) Points() plotter.XYs {
	return c.points
}

// Save renders the recorded curve. It is a no-op with no points.
func (c *PlotLogger) Save() error {
	if len(c.points) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = fmt.Sprintf("Moving average loss (%d steps)", c.Interval)
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(c.points)
	if err != nil {
		return errors.Wrap(err, "loss line")
	}
	line.Width = vg.Points(2)
	line.Color = plotutil.Color(0)
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, c.Filename); err != nil {
		return errors.Wrapf(err, "save %s", c.Filename)
	}
	return nil
}
