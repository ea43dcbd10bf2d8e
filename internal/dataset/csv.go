package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// LoadCSV loads MNIST-style CSV rows: label, then width*height pixel values
// in [0, 255]. A first row that does not parse as numbers is treated as a
// header and skipped.
func LoadCSV(filename string, width, height int) (*Set, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return readCSV(file, width, height)
}

func readCSV(r io.Reader, width, height int) (*Set, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 1 + width*height
	reader.ReuseRecord = true

	set := &Set{Width: width, Height: height}
	pix := make([]byte, width*height)
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv row %d", row)
		}

		label, err := strconv.Atoi(record[0])
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, errors.Wrapf(err, "failed to parse label at row %d", row)
		}

		for j, valStr := range record[1:] {
			val, err := strconv.ParseUint(valStr, 10, 8)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse value at row %d, col %d", row, j+1)
			}
			pix[j] = byte(val)
		}

		img, err := fromBytes(width, height, pix)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		set.Samples = append(set.Samples, Sample{Image: img, Label: label})
	}

	if len(set.Samples) == 0 {
		return nil, errors.New("csv file has no data rows")
	}
	return set, nil
}
