// Package config holds the training settings shared by the command line tools.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Training configuration settings
type Config struct {
	TrainImages string
	TrainLabels string
	TestImages  string
	TestLabels  string
	// Width and Height are only needed for CSV input; IDX files carry them.
	Width  int
	Height int

	NumFilters   int
	FilterSize   int
	Classes      int
	LearningRate float64
	Epochs       int
	Seed         uint64
	Shuffle      bool
	MaxSamples   int
	LogEvery     int

	// Patience > 0 stops training after that many epochs without the
	// epoch loss improving by more than Threshold.
	Patience  int
	Threshold float64

	CSVLog   string
	PlotFile string
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		TrainImages:  "data/train-images-idx3-ubyte",
		TrainLabels:  "data/train-labels-idx1-ubyte",
		TestImages:   "data/t10k-images-idx3-ubyte",
		TestLabels:   "data/t10k-labels-idx1-ubyte",
		Width:        28,
		Height:       28,
		NumFilters:   8,
		FilterSize:   3,
		Classes:      10,
		LearningRate: 0.005,
		Epochs:       1,
		Seed:         1,
		LogEvery:     1000,
	}
}

// Load reads a JSON file over the defaults. Keys missing from the file keep
// their default value.
func Load(name string) (Config, error) {
	c := Default()
	f, err := os.Open(name)
	if err != nil {
		return c, errors.Wrap(err, "load config")
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return c, errors.Wrapf(err, "decode config %s", name)
	}
	return c, nil
}

// Save writes c as indented JSON.
func (c Config) Save(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "save config")
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode config %s", name)
	}
	return f.Close()
}

// Validate rejects settings no network can be built from.
func (c Config) Validate() error {
	switch {
	case c.NumFilters <= 0:
		return errors.Errorf("NumFilters must be positive, got %d", c.NumFilters)
	case c.FilterSize <= 0:
		return errors.Errorf("FilterSize must be positive, got %d", c.FilterSize)
	case c.Classes < 2:
		return errors.Errorf("Classes must be at least 2, got %d", c.Classes)
	case c.LearningRate <= 0:
		return errors.Errorf("LearningRate must be positive, got %v", c.LearningRate)
	case c.Epochs <= 0:
		return errors.Errorf("Epochs must be positive, got %d", c.Epochs)
	case c.LogEvery < 0 || c.MaxSamples < 0:
		return errors.New("LogEvery and MaxSamples must not be negative")
	case c.Patience < 0 || c.Threshold < 0:
		return errors.New("Patience and Threshold must not be negative")
	case c.Width < c.FilterSize || c.Height < c.FilterSize:
		return errors.Errorf("%dx%d images are smaller than filter %d", c.Width, c.Height, c.FilterSize)
	}
	if (c.Width-c.FilterSize+1)%2 != 0 || (c.Height-c.FilterSize+1)%2 != 0 {
		return errors.Errorf("filter %d on %dx%d images gives an odd convolution output",
			c.FilterSize, c.Width, c.Height)
	}
	return nil
}

// RegisterFlags binds command line flags to the fields of c. Call it after
// Load so that flags given on the command line override file values.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.TrainImages, "train-images", c.TrainImages, "training images (IDX, IDX.gz or CSV)")
	fs.StringVar(&c.TrainLabels, "train-labels", c.TrainLabels, "training labels (ignored for CSV)")
	fs.StringVar(&c.TestImages, "test-images", c.TestImages, "test images (IDX, IDX.gz or CSV)")
	fs.StringVar(&c.TestLabels, "test-labels", c.TestLabels, "test labels (ignored for CSV)")
	fs.IntVar(&c.Width, "width", c.Width, "image width for CSV input")
	fs.IntVar(&c.Height, "height", c.Height, "image height for CSV input")
	fs.IntVar(&c.NumFilters, "filters", c.NumFilters, "number of convolution filters")
	fs.IntVar(&c.FilterSize, "size", c.FilterSize, "filter side length")
	fs.IntVar(&c.Classes, "classes", c.Classes, "number of output classes")
	fs.Float64Var(&c.LearningRate, "lr", c.LearningRate, "SGD learning rate")
	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "training epochs")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.BoolVar(&c.Shuffle, "shuffle", c.Shuffle, "shuffle training samples every epoch")
	fs.IntVar(&c.MaxSamples, "samples", c.MaxSamples, "limit the number of training samples (0 = all)")
	fs.IntVar(&c.LogEvery, "log-every", c.LogEvery, "report progress every n steps (0 = off)")
	fs.IntVar(&c.Patience, "patience", c.Patience, "stop after n epochs without improvement (0 = off)")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "minimum epoch loss improvement")
	fs.StringVar(&c.CSVLog, "csv", c.CSVLog, "write a CSV training log to this file")
	fs.StringVar(&c.PlotFile, "plot", c.PlotFile, "render the loss curve to this image file")
}

func (c Config) String() string {
	s := reflect.ValueOf(c)
	st := s.Type()
	str := []string{"== Config =="}
	for i := 0; i < st.NumField(); i++ {
		str = append(str, fmt.Sprintf("%-14s: %v", st.Field(i).Name, s.Field(i).Interface()))
	}
	return strings.Join(str, "\n")
}
