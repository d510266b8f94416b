// Package cpi implements Conditional Permutation Importance. For each
// covariate group an imputation model learns to predict the group from the
// remaining covariates. Scoring permutes the imputation residuals, which
// breaks the dependency between the group and the outcome while preserving
// the group's marginal distribution, and measures how much the predictive
// model's loss degrades against the unpermuted baseline.
package cpi

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
	"condimp/internal/loss"
	"condimp/internal/matutil"
	"condimp/internal/parallel"
)

// Group is a named set of covariate columns scored as one unit.
type Group struct {
	Name string
	Cols []int
}

// Recorder receives counters from the scorer. A nil Recorder disables
// instrumentation.
type Recorder interface {
	ImputationFitsInc()
	PermutationsInc()
	ScoreLatencyObserve(float64)
}

// Option configures a CPI scorer.
type Option func(*CPI)

// WithPermutations sets the number of residual permutations per group.
func WithPermutations(n int) Option {
	return func(c *CPI) { c.nPerm = n }
}

// WithGroups scores the given covariate groups instead of one group per
// column.
func WithGroups(groups []Group) Option {
	return func(c *CPI) { c.groups = groups }
}

// WithImputations supplies one imputation model per group instead of cloning
// a single prototype.
func WithImputations(models []estimator.Estimator) Option {
	return func(c *CPI) { c.imps = models }
}

// WithLoss sets the loss used to measure degradation.
func WithLoss(fn loss.Fn) Option {
	return func(c *CPI) { c.lossFn = fn }
}

// WithScoreProba evaluates the model through PredictProba instead of Predict.
func WithScoreProba() Option {
	return func(c *CPI) { c.scoreProba = true }
}

// WithSeed fixes the permutation random streams.
func WithSeed(seed int64) Option {
	return func(c *CPI) { c.seed = seed }
}

// WithWorkers sets the parallel worker count for per-group jobs.
func WithWorkers(n int) Option {
	return func(c *CPI) { c.workers = n }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec Recorder) Option {
	return func(c *CPI) { c.metrics = rec }
}

// CPI scores covariate-group importance for a fitted predictive model.
type CPI struct {
	model estimator.Predictor
	proto estimator.Estimator

	imps       []estimator.Estimator
	groups     []Group
	nPerm      int
	lossFn     loss.Fn
	scoreProba bool
	seed       int64
	workers    int
	metrics    Recorder

	fitted bool
}

// New creates a scorer for an already-fitted predictive model. The
// imputation argument is a prototype cloned once per group unless
// WithImputations provides explicit models.
func New(model estimator.Predictor, imputation estimator.Estimator, opts ...Option) (*CPI, error) {
	if model == nil {
		return nil, fmt.Errorf("cpi: predictive model is nil")
	}
	if err := estimator.CheckFitted(model); err != nil {
		return nil, fmt.Errorf("cpi: predictive model: %w", err)
	}

	c := &CPI{
		model:   model,
		proto:   imputation,
		nPerm:   50,
		lossFn:  loss.MSE,
		workers: 1,
	}
	for _, f := range opts {
		f(c)
	}

	if c.nPerm < 1 {
		return nil, fmt.Errorf("cpi: permutations must be >= 1, got %d", c.nPerm)
	}
	if c.scoreProba {
		if _, ok := model.(estimator.ProbaPredictor); !ok {
			return nil, fmt.Errorf("cpi: score_proba requested but model has no PredictProba")
		}
	}
	if c.proto == nil && len(c.imps) == 0 {
		return nil, fmt.Errorf("cpi: no imputation model provided")
	}
	return c, nil
}

// Fit trains one imputation model per covariate group to predict the group
// from the remaining columns. Groups default to one per column of X.
func (c *CPI) Fit(ctx context.Context, X *mat.Dense) error {
	_, d := X.Dims()
	if len(c.groups) == 0 {
		c.groups = make([]Group, d)
		for j := 0; j < d; j++ {
			c.groups[j] = Group{Name: fmt.Sprintf("x%d", j), Cols: []int{j}}
		}
	}
	for _, g := range c.groups {
		if err := matutil.ValidateCols(d, g.Cols); err != nil {
			return fmt.Errorf("cpi: group %q: %w", g.Name, err)
		}
		if len(g.Cols) >= d {
			return fmt.Errorf("cpi: group %q covers every column, nothing left to impute from", g.Name)
		}
	}

	if len(c.imps) > 0 {
		if len(c.imps) != len(c.groups) {
			return fmt.Errorf("cpi: %d imputation models for %d groups", len(c.imps), len(c.groups))
		}
	} else {
		cloner, ok := c.proto.(estimator.Cloner)
		if !ok {
			return fmt.Errorf("cpi: imputation prototype does not implement Clone")
		}
		c.imps = make([]estimator.Estimator, len(c.groups))
		for j := range c.groups {
			c.imps[j] = cloner.Clone()
		}
	}

	err := parallel.ForEach(ctx, c.workers, len(c.groups), func(_ context.Context, j int) error {
		g := c.groups[j]
		xj := matutil.TakeCols(X, g.Cols)
		rest := matutil.DropCols(X, g.Cols)
		if err := c.imps[j].Fit(rest, xj); err != nil {
			return fmt.Errorf("cpi: fit imputation for group %q: %w", g.Name, err)
		}
		if c.metrics != nil {
			c.metrics.ImputationFitsInc()
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.fitted = true
	return nil
}

// Permutations returns, for each group, the model predictions under every
// residual permutation: result[j][p] is the prediction matrix for group j,
// permutation p. The complement columns are carried over untouched, so only
// the group's conditional draw changes between permutations.
func (c *CPI) Permutations(ctx context.Context, X *mat.Dense) ([][]*mat.Dense, error) {
	if !c.fitted {
		return nil, fmt.Errorf("cpi: Fit must be called before Permutations")
	}
	for j, imp := range c.imps {
		if err := estimator.CheckFitted(imp); err != nil {
			return nil, fmt.Errorf("cpi: imputation model for group %q: %w", c.groups[j].Name, err)
		}
	}

	n, _ := X.Dims()
	out := make([][]*mat.Dense, len(c.groups))

	err := parallel.ForEach(ctx, c.workers, len(c.groups), func(_ context.Context, j int) error {
		g := c.groups[j]
		xj := matutil.TakeCols(X, g.Cols)
		rest := matutil.DropCols(X, g.Cols)

		xjHat, err := c.imps[j].Predict(rest)
		if err != nil {
			return fmt.Errorf("cpi: impute group %q: %w", g.Name, err)
		}
		hr, hc := xjHat.Dims()
		if hr != n || hc != len(g.Cols) {
			return fmt.Errorf("cpi: imputation for group %q returned %dx%d, want %dx%d", g.Name, hr, hc, n, len(g.Cols))
		}

		residual := mat.NewDense(n, len(g.Cols), nil)
		residual.Sub(xj, xjHat)

		// Independent stream per group keeps results identical for any
		// worker count.
		rng := rand.New(rand.NewSource(c.seed + int64(j+1)*0x9e3779b9))

		xPerm := mat.DenseCopyOf(X)
		permRes := mat.NewDense(n, len(g.Cols), nil)
		xjPerm := mat.NewDense(n, len(g.Cols), nil)

		preds := make([]*mat.Dense, c.nPerm)
		for p := 0; p < c.nPerm; p++ {
			matutil.PermuteRowsInto(permRes, residual, rng.Perm(n))
			xjPerm.Add(xjHat, permRes)
			matutil.SetCols(xPerm, g.Cols, xjPerm)

			pred, err := c.predict(xPerm)
			if err != nil {
				return fmt.Errorf("cpi: score permutation %d of group %q: %w", p, g.Name, err)
			}
			preds[p] = pred
			if c.metrics != nil {
				c.metrics.PermutationsInc()
			}
		}
		out[j] = preds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Result holds the scores of one importance run.
type Result struct {
	Groups        []string    `json:"groups"`
	LossReference float64     `json:"loss_reference"`
	LossPerm      [][]float64 `json:"loss_perm"`
	Importance    []float64   `json:"importance"`
}

// Score computes the reference loss on unpermuted data and, per group, the
// mean permuted loss. Importance is the degradation: mean permuted loss
// minus reference loss.
func (c *CPI) Score(ctx context.Context, X, y *mat.Dense) (*Result, error) {
	start := time.Now()
	if !c.fitted {
		return nil, fmt.Errorf("cpi: Fit must be called before Score")
	}

	refPred, err := c.predict(X)
	if err != nil {
		return nil, fmt.Errorf("cpi: reference prediction: %w", err)
	}
	lossRef := c.lossFn(y, refPred)

	perms, err := c.Permutations(ctx, X)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Groups:        make([]string, len(c.groups)),
		LossReference: lossRef,
		LossPerm:      make([][]float64, len(c.groups)),
		Importance:    make([]float64, len(c.groups)),
	}
	for j, g := range c.groups {
		res.Groups[j] = g.Name
		losses := make([]float64, c.nPerm)
		var sum float64
		for p, pred := range perms[j] {
			losses[p] = c.lossFn(y, pred)
			sum += losses[p]
		}
		res.LossPerm[j] = losses
		res.Importance[j] = sum/float64(c.nPerm) - lossRef
	}

	if c.metrics != nil {
		c.metrics.ScoreLatencyObserve(time.Since(start).Seconds())
	}
	return res, nil
}

// Groups returns the covariate groups in scoring order. Empty before Fit
// when defaulting to per-column groups.
func (c *CPI) Groups() []Group { return c.groups }

func (c *CPI) predict(X *mat.Dense) (*mat.Dense, error) {
	if c.scoreProba {
		return c.model.(estimator.ProbaPredictor).PredictProba(X)
	}
	return c.model.Predict(X)
}
