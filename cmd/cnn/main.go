package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/FlavioCFOliveira/minicnn/internal/dataset"
	"github.com/FlavioCFOliveira/minicnn/internal/layer"
	"github.com/FlavioCFOliveira/minicnn/internal/net"
)

// CNN demo on generated data: tell vertical bars from horizontal ones.
func main() {
	var (
		size    = flag.Int("size", 12, "image side length (must give an even convolution output)")
		samples = flag.Int("samples", 1000, "training images")
		epochs  = flag.Int("epochs", 3, "training epochs")
		lr      = flag.Float64("lr", 0.01, "learning rate")
		seed    = flag.Uint64("seed", 42, "random seed")
	)
	flag.Parse()

	fmt.Println("=== CNN Example: bar orientation ===")

	rng := layer.NewRNG(*seed)
	train, err := dataset.Synthetic(rng, *samples, *size, *size)
	if err != nil {
		log.Fatal(err)
	}
	test, err := dataset.Synthetic(rng, *samples/5, *size, *size)
	if err != nil {
		log.Fatal(err)
	}

	// Four 3x3 filters feeding a two-way classifier.
	conv, err := layer.NewConv2D(4, 3, rng)
	if err != nil {
		log.Fatal(err)
	}
	w, h := conv.OutputSize(*size, *size)
	dense, err := layer.NewDense(2, (w/2)*(h/2)*4, rng)
	if err != nil {
		log.Fatal(err)
	}
	network, err := net.New(conv, dense, *size, *size)
	if err != nil {
		log.Fatal(err)
	}
	defer network.Release()

	trainer := &net.Trainer{
		Net:          network,
		LearningRate: *lr,
		Epochs:       *epochs,
		Shuffle:      true,
		RNG:          rng,
		Callbacks:    []net.Callback{net.NewLogger(*samples / 4)},
	}
	if _, err := trainer.Fit(train); err != nil {
		log.Fatal(err)
	}

	m, err := net.Evaluate(network, test)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nTest accuracy: %d%% (%d images)\n", m.Percent(), m.Samples)

	fmt.Println("\nSample predictions:")
	for i := 0; i < 4 && i < test.Len(); i++ {
		s := test.Samples[i]
		probs, err := network.Predict(s.Image)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  label %d: p(vertical)=%.3f p(horizontal)=%.3f\n", s.Label, probs[0], probs[1])
	}
}
