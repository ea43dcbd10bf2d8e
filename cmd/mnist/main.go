package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/FlavioCFOliveira/minicnn/internal/config"
	"github.com/FlavioCFOliveira/minicnn/internal/dataset"
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/net"
	"github.com/pkg/errors"
)

// MNIST digit classification with a single convolution layer, 2x2 max
// pooling and a softmax classifier, trained one image at a time.
func main() {
	cfg := config.Default()
	// -config must be seen before the other flags so they can override it.
	if name := configFlag(os.Args[1:]); name != "" {
		var err error
		if cfg, err = config.Load(name); err != nil {
			log.Fatal(err)
		}
	}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.String("config", "", "JSON config file")
	cfg.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	fmt.Println("=== MNIST Digit Classification ===")

	train, err := load(cfg.TrainImages, cfg.TrainLabels, cfg)
	if err != nil {
		log.Fatal("training data: ", err)
	}
	train.Limit(cfg.MaxSamples)
	// IDX files define the image size.
	cfg.Width, cfg.Height = train.Width, train.Height
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	fmt.Println(cfg)
	fmt.Printf("\nLoaded %d training images of %dx%d\n", train.Len(), train.Width, train.Height)

	rng := layer.NewRNG(cfg.Seed)
	network, err := build(cfg, rng)
	if err != nil {
		log.Fatal(err)
	}
	defer network.Release()

	callbacks := []net.Callback{net.NewLogger(cfg.LogEvery)}
	if cfg.CSVLog != "" {
		callbacks = append(callbacks, net.NewCSVLogger(cfg.CSVLog, cfg.LogEvery, false))
	}
	if cfg.PlotFile != "" {
		callbacks = append(callbacks, net.NewPlotLogger(cfg.PlotFile, cfg.LogEvery))
	}
	if cfg.Patience > 0 {
		callbacks = append(callbacks, net.NewEarlyStopping(cfg.Patience, cfg.Threshold))
	}

	trainer := &net.Trainer{
		Net:          network,
		LearningRate: cfg.LearningRate,
		Epochs:       cfg.Epochs,
		Shuffle:      cfg.Shuffle,
		RNG:          rng,
		Callbacks:    callbacks,
	}

	fmt.Println("\nTraining...")
	start := time.Now()
	m, err := trainer.Fit(train)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Training completed in %v.\n", time.Since(start).Round(time.Millisecond))
	net.WriteReport(os.Stdout, m)

	if cfg.TestImages == "" {
		return
	}
	test, err := load(cfg.TestImages, cfg.TestLabels, cfg)
	if err != nil {
		log.Fatal("test data: ", err)
	}
	m, err = net.Evaluate(network, test)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Testing CNN on %d images...\n", m.Samples)
	net.WriteReport(os.Stdout, m)
}

func configFlag(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if a == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "config=") {
			return strings.TrimPrefix(a, "config=")
		}
	}
	return ""
}

// load reads CSV files by extension and IDX (optionally gzipped) otherwise.
func load(images, labels string, cfg config.Config) (*dataset.Set, error) {
	if strings.HasSuffix(images, ".csv") {
		return dataset.LoadCSV(images, cfg.Width, cfg.Height)
	}
	return dataset.LoadIDX(images, labels)
}

func build(cfg config.Config, rng *layer.RNG) (*net.Network, error) {
	conv, err := layer.NewConv2D(cfg.NumFilters, cfg.FilterSize, rng)
	if err != nil {
		return nil, errors.Wrap(err, "convolution layer")
	}
	convW, convH := conv.OutputSize(cfg.Width, cfg.Height)
	pooled := (convW / 2) * (convH / 2) * cfg.NumFilters
	dense, err := layer.NewDense(cfg.Classes, pooled, rng)
	if err != nil {
		return nil, errors.Wrap(err, "dense layer")
	}
	return net.New(conv, dense, cfg.Width, cfg.Height)
}
