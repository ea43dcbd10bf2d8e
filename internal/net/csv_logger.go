package net

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CSVLogger writes one row per Interval training steps to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Interval int
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
	window window
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, interval int, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Interval: interval,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(t *Trainer) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		fmt.Printf("CSVLogger: failed to open file %s: %v\n", c.Filename, err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write([]string{"epoch", "step", "avg_loss", "accuracy_pct", "time_seconds"})
		c.writer.Flush()
	}
}

func (c *CSVLogger) OnEpochBegin(epoch int, t *Trainer) {
	c.window.reset()
}

func (c *CSVLogger) OnStep(epoch, step int, res StepResult, t *Trainer) {
	if c.writer == nil || c.Interval <= 0 {
		return
	}
	c.window.add(res)
	if step%c.Interval != 0 {
		return
	}

	record := []string{
		strconv.Itoa(epoch),
		strconv.Itoa(step),
		fmt.Sprintf("%.6f", c.window.meanLoss()),
		strconv.Itoa(c.window.percentCorrect()),
		fmt.Sprintf("%.2f", time.Since(c.start).Seconds()),
	}
	c.window.reset()

	if err := c.writer.Write(record); err != nil {
		fmt.Printf("CSVLogger: failed to write record: %v\n", err)
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnTrainEnd(t *Trainer) {
	if c.file != nil {
		c.writer.Flush()
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}
