// Package loss provides the loss functions used to measure model degradation
// during permutation importance scoring. All functions compare a true target
// matrix against a prediction matrix of the same row count.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fn evaluates predictions against the true targets. Lower is better for
// every function in this package except R2 and Accuracy.
type Fn func(yTrue, yPred *mat.Dense) float64

// MSE is the mean squared error over all entries.
func MSE(yTrue, yPred *mat.Dense) float64 {
	r, c := yTrue.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := yPred.At(i, j) - yTrue.At(i, j)
			s += d * d
		}
	}
	return s / float64(r*c)
}

// MAE is the mean absolute error over all entries.
func MAE(yTrue, yPred *mat.Dense) float64 {
	r, c := yTrue.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += math.Abs(yPred.At(i, j) - yTrue.At(i, j))
		}
	}
	return s / float64(r*c)
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred *mat.Dense) float64 {
	return math.Sqrt(MSE(yTrue, yPred))
}

// R2 is the coefficient of determination of the first output column.
func R2(yTrue, yPred *mat.Dense) float64 {
	r, _ := yTrue.Dims()
	var mean float64
	for i := 0; i < r; i++ {
		mean += yTrue.At(i, 0)
	}
	mean /= float64(r)

	var ssTot, ssRes float64
	for i := 0; i < r; i++ {
		d := yTrue.At(i, 0) - mean
		ssTot += d * d
		e := yTrue.At(i, 0) - yPred.At(i, 0)
		ssRes += e * e
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// Accuracy treats yPred as class scores: the predicted class of a row is the
// argmax column (or a 0.5 threshold for a single column) and is compared to
// the 0-based class index in the first column of yTrue. Labels with
// arbitrary values must go through ForClasses first.
func Accuracy(yTrue, yPred *mat.Dense) float64 {
	r, c := yPred.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		var pred int
		if c == 1 {
			if yPred.At(i, 0) >= 0.5 {
				pred = 1
			}
		} else {
			best := math.Inf(-1)
			for j := 0; j < c; j++ {
				if yPred.At(i, j) > best {
					best = yPred.At(i, j)
					pred = j
				}
			}
		}
		if int(yTrue.At(i, 0)) == pred {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// LogLoss is the negative mean log-likelihood of the true class under the
// predicted probabilities. yTrue holds 0-based class indices in its first
// column; yPred holds per-class probabilities (a single column is read as
// P(class 1)). Labels with arbitrary values must go through ForClasses
// first; an index outside the probability columns scores as maximally
// wrong.
func LogLoss(yTrue, yPred *mat.Dense) float64 {
	const eps = 1e-15
	r, c := yPred.Dims()
	var s float64
	for i := 0; i < r; i++ {
		label := int(yTrue.At(i, 0))
		var p float64
		switch {
		case c == 1:
			p = yPred.At(i, 0)
			if label == 0 {
				p = 1 - p
			}
		case label >= 0 && label < c:
			p = yPred.At(i, label)
		}
		p = math.Min(math.Max(p, eps), 1-eps)
		s += -math.Log(p)
	}
	return s / float64(r)
}

// ForClasses adapts a classification loss to arbitrary label values: the
// labels in yTrue are re-encoded to their index in the fitted class list
// before fn sees them. Values outside the class list map to -1, which the
// losses score as incorrect.
func ForClasses(classes []float64, fn Fn) Fn {
	index := make(map[float64]int, len(classes))
	for i, v := range classes {
		index[v] = i
	}
	return func(yTrue, yPred *mat.Dense) float64 {
		r, _ := yTrue.Dims()
		enc := mat.NewDense(r, 1, nil)
		for i := 0; i < r; i++ {
			idx, ok := index[yTrue.At(i, 0)]
			if !ok {
				idx = -1
			}
			enc.Set(i, 0, float64(idx))
		}
		return fn(enc, yPred)
	}
}

// ByName resolves a loss function from its config name.
func ByName(name string) (Fn, error) {
	switch name {
	case "", "mse":
		return MSE, nil
	case "mae":
		return MAE, nil
	case "rmse":
		return RMSE, nil
	case "logloss":
		return LogLoss, nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}
