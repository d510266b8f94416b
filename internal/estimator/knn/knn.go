// Package knn implements a brute-force k-nearest-neighbors regressor. It is
// an alternative imputation model for covariate groups whose dependence on
// the remaining covariates is not linear.
package knn

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
)

var _ estimator.Estimator = (*Regressor)(nil)
var _ estimator.Cloner = (*Regressor)(nil)

// Option configures a Regressor.
type Option func(*Regressor)

// WithK sets the number of neighbors.
func WithK(k int) Option {
	return func(r *Regressor) { r.k = k }
}

// Regressor predicts each output as the mean over the k nearest training
// rows by Euclidean distance.
type Regressor struct {
	estimator.Base

	k int

	trainX *mat.Dense
	trainY *mat.Dense
}

// New creates an unfitted regressor with k=5.
func New(opts ...Option) *Regressor {
	r := &Regressor{k: 5}
	for _, f := range opts {
		f(r)
	}
	return r
}

// Clone returns a fresh unfitted regressor with the same k.
func (r *Regressor) Clone() estimator.Estimator {
	return &Regressor{k: r.k}
}

// Fit stores the training set.
func (r *Regressor) Fit(X, Y *mat.Dense) error {
	n, _ := X.Dims()
	yn, _ := Y.Dims()
	if n != yn {
		return fmt.Errorf("knn fit: X has %d rows, Y has %d", n, yn)
	}
	if r.k < 1 {
		return fmt.Errorf("knn fit: k must be >= 1, got %d", r.k)
	}
	if n < r.k {
		return fmt.Errorf("knn fit: need at least k=%d samples, got %d", r.k, n)
	}
	r.trainX = mat.DenseCopyOf(X)
	r.trainY = mat.DenseCopyOf(Y)
	r.SetFitted()
	return nil
}

// Predict averages the targets of the k nearest training rows for each query.
func (r *Regressor) Predict(X *mat.Dense) (*mat.Dense, error) {
	if !r.IsFitted() {
		return nil, estimator.ErrNotFitted
	}
	n, d := X.Dims()
	tn, td := r.trainX.Dims()
	if d != td {
		return nil, fmt.Errorf("knn predict: expected %d features, got %d", td, d)
	}
	_, k := r.trainY.Dims()
	out := mat.NewDense(n, k, nil)

	type neighbor struct {
		dist float64
		row  int
	}
	for i := 0; i < n; i++ {
		q := mat.Row(nil, i, X)
		nn := make([]neighbor, tn)
		for t := 0; t < tn; t++ {
			nn[t] = neighbor{dist: floats.Distance(q, mat.Row(nil, t, r.trainX), 2), row: t}
		}
		sort.Slice(nn, func(a, b int) bool { return nn[a].dist < nn[b].dist })
		for j := 0; j < k; j++ {
			var s float64
			for t := 0; t < r.k; t++ {
				s += r.trainY.At(nn[t].row, j)
			}
			out.Set(i, j, s/float64(r.k))
		}
	}
	return out, nil
}
