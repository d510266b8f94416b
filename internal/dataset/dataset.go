// Package dataset loads tabular CSV data into design matrices and provides
// the train/test split and standardization used by the command-line tools.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a design matrix with its target column and feature names.
type Dataset struct {
	FeatureNames []string
	X            *mat.Dense // samples x features
	Y            *mat.Dense // samples x 1
}

// LoadCSV reads a headered CSV file and splits it into features and the
// named target column. All cells must parse as floats.
func LoadCSV(path, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", path)
	}

	header := records[0]
	targetIdx := -1
	for i, name := range header {
		if name == target {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("target column %q not found in %s", target, path)
	}

	names := make([]string, 0, len(header)-1)
	for i, name := range header {
		if i != targetIdx {
			names = append(names, name)
		}
	}

	n := len(records) - 1
	x := mat.NewDense(n, len(names), nil)
	y := mat.NewDense(n, 1, nil)
	for i, row := range records[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+1, len(row), len(header))
		}
		col := 0
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+1, header[j], err)
			}
			if j == targetIdx {
				y.Set(i, 0, v)
			} else {
				x.Set(i, col, v)
				col++
			}
		}
	}

	return &Dataset{FeatureNames: names, X: x, Y: y}, nil
}

// Split shuffles the rows with the given seed and cuts them into train and
// test sets, the first ratio share going to train.
func (d *Dataset) Split(ratio float64, seed int64) (train, test *Dataset, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("split ratio must be in (0, 1), got %f", ratio)
	}
	n, _ := d.X.Dims()
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	cut := int(float64(n) * ratio)
	if cut < 1 || cut >= n {
		return nil, nil, fmt.Errorf("split ratio %f leaves an empty side for %d rows", ratio, n)
	}
	return d.take(perm[:cut]), d.take(perm[cut:]), nil
}

func (d *Dataset) take(rows []int) *Dataset {
	_, c := d.X.Dims()
	x := mat.NewDense(len(rows), c, nil)
	y := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		x.SetRow(i, mat.Row(nil, r, d.X))
		y.Set(i, 0, d.Y.At(r, 0))
	}
	return &Dataset{FeatureNames: d.FeatureNames, X: x, Y: y}
}

// Scaler standardizes features to zero mean and unit variance, fitted on the
// training set only.
type Scaler struct {
	mean, std []float64
}

// FitScaler computes per-column mean and standard deviation.
func FitScaler(X *mat.Dense) *Scaler {
	n, c := X.Dims()
	s := &Scaler{mean: make([]float64, c), std: make([]float64, c)}
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += X.At(i, j)
		}
		s.mean[j] = sum / float64(n)
		var sq float64
		for i := 0; i < n; i++ {
			d := X.At(i, j) - s.mean[j]
			sq += d * d
		}
		s.std[j] = math.Sqrt(sq / float64(n))
		if s.std[j] == 0 {
			s.std[j] = 1 // constant column, leave centered values at zero
		}
	}
	return s
}

// Transform returns a standardized copy of X.
func (s *Scaler) Transform(X *mat.Dense) *mat.Dense {
	n, c := X.Dims()
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.mean[j])/s.std[j])
		}
	}
	return out
}
