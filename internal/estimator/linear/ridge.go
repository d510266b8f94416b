// Package linear implements a closed-form ridge regression. It is the
// default imputation model for conditional permutation importance: cheap to
// clone and fit once per covariate group, and multi-output so a whole group
// of covariates can be predicted from the remaining columns in one model.
package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
)

var _ estimator.Estimator = (*Ridge)(nil)
var _ estimator.Cloner = (*Ridge)(nil)

// Option configures a Ridge model.
type Option func(*Ridge)

// WithAlpha sets the L2 regularization strength.
func WithAlpha(a float64) Option {
	return func(r *Ridge) { r.alpha = a }
}

// WithoutIntercept disables intercept fitting.
func WithoutIntercept() Option {
	return func(r *Ridge) { r.fitIntercept = false }
}

// Ridge is a multi-output linear model solving
// (X'X + alpha*I) W = X'Y in closed form.
type Ridge struct {
	estimator.Base

	alpha        float64
	fitIntercept bool

	weights   *mat.Dense // features x outputs
	intercept []float64  // one per output
	nFeatures int
}

// New creates an unfitted ridge model with alpha 1.0 and intercept fitting.
func New(opts ...Option) *Ridge {
	r := &Ridge{alpha: 1.0, fitIntercept: true}
	for _, f := range opts {
		f(r)
	}
	return r
}

// Clone returns a fresh unfitted model with the same hyperparameters.
func (r *Ridge) Clone() estimator.Estimator {
	return &Ridge{alpha: r.alpha, fitIntercept: r.fitIntercept}
}

// Fit solves the regularized normal equations for all outputs at once.
func (r *Ridge) Fit(X, Y *mat.Dense) error {
	n, d := X.Dims()
	yn, k := Y.Dims()
	if n != yn {
		return fmt.Errorf("ridge fit: X has %d rows, Y has %d", n, yn)
	}
	if n == 0 {
		return fmt.Errorf("ridge fit: empty design matrix")
	}

	xc := X
	yc := Y
	var xMean, yMean []float64
	if r.fitIntercept {
		xc, xMean = centered(X)
		yc, yMean = centered(Y)
	}

	// Gram matrix with the ridge penalty on the diagonal.
	gram := mat.NewDense(d, d, nil)
	gram.Mul(xc.T(), xc)
	for j := 0; j < d; j++ {
		gram.Set(j, j, gram.At(j, j)+r.alpha)
	}

	xty := mat.NewDense(d, k, nil)
	xty.Mul(xc.T(), yc)

	w := mat.NewDense(d, k, nil)
	if err := w.Solve(gram, xty); err != nil {
		return fmt.Errorf("ridge fit: solve failed: %w", err)
	}

	r.weights = w
	r.intercept = make([]float64, k)
	if r.fitIntercept {
		for j := 0; j < k; j++ {
			b := yMean[j]
			for f := 0; f < d; f++ {
				b -= w.At(f, j) * xMean[f]
			}
			r.intercept[j] = b
		}
	}
	r.nFeatures = d
	r.SetFitted()
	return nil
}

// Predict returns X*W + intercept.
func (r *Ridge) Predict(X *mat.Dense) (*mat.Dense, error) {
	if !r.IsFitted() {
		return nil, estimator.ErrNotFitted
	}
	n, d := X.Dims()
	if d != r.nFeatures {
		return nil, fmt.Errorf("ridge predict: expected %d features, got %d", r.nFeatures, d)
	}
	_, k := r.weights.Dims()
	out := mat.NewDense(n, k, nil)
	out.Mul(X, r.weights)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			out.Set(i, j, out.At(i, j)+r.intercept[j])
		}
	}
	return out, nil
}

// Weights returns the fitted coefficient matrix, or nil before Fit.
func (r *Ridge) Weights() *mat.Dense { return r.weights }

// Intercept returns the fitted intercepts, or nil before Fit.
func (r *Ridge) Intercept() []float64 { return r.intercept }

func centered(m *mat.Dense) (*mat.Dense, []float64) {
	n, c := m.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += m.At(i, j)
		}
		means[j] = s / float64(n)
	}
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)-means[j])
		}
	}
	return out, means
}
