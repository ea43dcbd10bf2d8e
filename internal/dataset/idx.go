package dataset

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/FlavioCFOliveira/minicnn/internal/tensor"
	"github.com/petar/GoMNIST"
	"github.com/pkg/errors"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// LoadIDX reads an MNIST image/label file pair. Files ending in ".gz" are
// read through GoMNIST; anything else is parsed as raw big-endian IDX.
func LoadIDX(imagesPath, labelsPath string) (*Set, error) {
	if strings.HasSuffix(imagesPath, ".gz") {
		return loadGzip(imagesPath, labelsPath)
	}

	images, width, height, err := readImageFile(imagesPath)
	if err != nil {
		return nil, err
	}
	labels, err := readLabelFile(labelsPath)
	if err != nil {
		return nil, err
	}
	return assemble(width, height, images, labels)
}

func loadGzip(imagesPath, labelsPath string) (*Set, error) {
	raw, err := GoMNIST.ReadSet(imagesPath, labelsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", imagesPath)
	}
	images := make([][]byte, len(raw.Images))
	for i, img := range raw.Images {
		images[i] = img
	}
	labels := make([]byte, len(raw.Labels))
	for i, l := range raw.Labels {
		labels[i] = byte(l)
	}
	return assemble(raw.NCol, raw.NRow, images, labels)
}

func assemble(width, height int, images [][]byte, labels []byte) (*Set, error) {
	if len(images) != len(labels) {
		return nil, errors.Errorf("%d images but %d labels", len(images), len(labels))
	}
	set := &Set{Width: width, Height: height, Samples: make([]Sample, len(images))}
	for i, pix := range images {
		img, err := fromBytes(width, height, pix)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		set.Samples[i] = Sample{Image: img, Label: int(labels[i])}
	}
	return set, nil
}

func readImageFile(path string) ([][]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "open image file")
	}
	defer f.Close()
	return readImages(bufio.NewReader(f))
}

func readImages(r io.Reader) ([][]byte, int, int, error) {
	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, errors.Wrap(err, "read image header")
	}
	if header.Magic != imageMagic {
		return nil, 0, 0, errors.Errorf("bad image magic 0x%08x", header.Magic)
	}

	width, height := int(header.Cols), int(header.Rows)
	// Header sizes are untrusted: bound the whole set before allocating.
	if _, err := tensor.Elements(int(header.Count), width, height); err != nil {
		return nil, 0, 0, errors.Wrap(err, "image header")
	}
	images := make([][]byte, header.Count)
	for i := range images {
		images[i] = make([]byte, width*height)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, 0, 0, errors.Wrapf(err, "read image %d", i)
		}
	}
	return images, width, height, nil
}

func readLabelFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open label file")
	}
	defer f.Close()
	return readLabels(bufio.NewReader(f))
}

func readLabels(r io.Reader) ([]byte, error) {
	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read label header")
	}
	if header.Magic != labelMagic {
		return nil, errors.Errorf("bad label magic 0x%08x", header.Magic)
	}
	if _, err := tensor.Elements(int(header.Count)); err != nil {
		return nil, errors.Wrap(err, "label header")
	}
	labels := make([]byte, header.Count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return labels, nil
}
