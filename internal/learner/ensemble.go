// Package learner implements the ensemble learner: a high-level wrapper that
// trains one sub-network ensemble per output column and averages their
// predictions. It plays the role of the opaque predictive model handed to
// the importance scorer, and implements the estimator contracts so either a
// local ensemble or a remote model can back a scoring run.
package learner

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
)

// Task selects the prediction problem kind.
type Task string

const (
	TaskRegression     Task = "regression"
	TaskClassification Task = "classification"
)

// Config holds the ensemble hyperparameters.
type Config struct {
	NEnsemble  int     `yaml:"nEnsemble"`  // sub-networks trained per output
	MinKeep    int     `yaml:"minKeep"`    // best sub-networks kept by validation loss
	Hidden     int     `yaml:"hidden"`     // hidden layer width
	Epochs     int     `yaml:"epochs"`     // training epochs per sub-network
	BatchSize  int     `yaml:"batchSize"`  // mini-batch size
	LR         float64 `yaml:"lr"`         // Adam learning rate
	Beta1      float64 `yaml:"beta1"`      // Adam first-moment decay
	Beta2      float64 `yaml:"beta2"`      // Adam second-moment decay
	Epsilon    float64 `yaml:"epsilon"`    // Adam denominator guard
	L1Weight   float64 `yaml:"l1Weight"`   // L1 weight penalty
	L2Weight   float64 `yaml:"l2Weight"`   // L2 weight penalty
	SplitRatio float64 `yaml:"splitRatio"` // train share of the train/validation cut
	Bootstrap  bool    `yaml:"bootstrap"`  // resample the train cut with replacement
	Task       Task    `yaml:"task"`
	Workers    int     `yaml:"workers"`
	Seed       int64   `yaml:"seed"`
}

// DefaultConfig mirrors the historical defaults of the method.
func DefaultConfig() Config {
	return Config{
		NEnsemble:  10,
		MinKeep:    10,
		Hidden:     50,
		Epochs:     200,
		BatchSize:  32,
		LR:         1e-2,
		Beta1:      0.9,
		Beta2:      0.999,
		Epsilon:    1e-8,
		L1Weight:   1e-2,
		L2Weight:   1e-2,
		SplitRatio: 0.8,
		Bootstrap:  true,
		Task:       TaskRegression,
		Workers:    1,
		Seed:       2023,
	}
}

func (c Config) validate() error {
	if c.NEnsemble < 1 {
		return fmt.Errorf("nEnsemble must be >= 1, got %d", c.NEnsemble)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("hidden width must be >= 1, got %d", c.Hidden)
	}
	if c.SplitRatio <= 0 || c.SplitRatio >= 1 {
		return fmt.Errorf("splitRatio must be in (0, 1), got %f", c.SplitRatio)
	}
	switch c.Task {
	case TaskRegression, TaskClassification:
	default:
		return fmt.Errorf("unknown task %q", c.Task)
	}
	return nil
}

var _ estimator.Estimator = (*Ensemble)(nil)
var _ estimator.Cloner = (*Ensemble)(nil)

// Ensemble trains one Single learner per output column of Y.
type Ensemble struct {
	estimator.Base

	cfg     Config
	singles []*Single
	encoder *LabelEncoder // classification only
}

// NewEnsemble creates an unfitted ensemble learner.
func NewEnsemble(cfg Config) *Ensemble {
	return &Ensemble{cfg: cfg}
}

// Clone returns a fresh unfitted ensemble with the same configuration.
func (e *Ensemble) Clone() estimator.Estimator {
	return &Ensemble{cfg: e.cfg}
}

// Config returns the ensemble hyperparameters.
func (e *Ensemble) Config() Config { return e.cfg }

// Fit trains per-output learners. For classification Y must hold one label
// column; labels are one-hot encoded internally.
func (e *Ensemble) Fit(X, Y *mat.Dense) error {
	return e.FitContext(context.Background(), X, Y)
}

// FitContext is Fit with cancellation for the sub-network training jobs.
func (e *Ensemble) FitContext(ctx context.Context, X, Y *mat.Dense) error {
	if err := e.cfg.validate(); err != nil {
		return fmt.Errorf("learner: %w", err)
	}
	n, _ := X.Dims()
	yn, k := Y.Dims()
	if n != yn {
		return fmt.Errorf("learner: X has %d rows, Y has %d", n, yn)
	}
	if n == 0 {
		return fmt.Errorf("learner: empty training set")
	}

	rows := denseToRows(X)

	if e.cfg.Task == TaskClassification {
		if k != 1 {
			return fmt.Errorf("learner: classification expects one label column, got %d", k)
		}
		labels := mat.Col(nil, 0, Y)
		e.encoder = &LabelEncoder{}
		e.encoder.FitLabels(labels)
		if len(e.encoder.Classes()) < 2 {
			return fmt.Errorf("learner: need at least two classes, got %d", len(e.encoder.Classes()))
		}
		oneHot, err := e.encoder.OneHot(labels)
		if err != nil {
			return fmt.Errorf("learner: %w", err)
		}
		s := NewSingle(e.cfg)
		if err := s.Fit(ctx, rows, oneHot); err != nil {
			return err
		}
		e.singles = []*Single{s}
		e.SetFitted()
		return nil
	}

	// Regression: one single learner per output column, each seeded from its
	// column index so multi-output fits are reproducible.
	e.singles = make([]*Single, k)
	for col := 0; col < k; col++ {
		cfg := e.cfg
		cfg.Seed = e.cfg.Seed + int64(col)*104729
		target := make([][]float64, n)
		for i := 0; i < n; i++ {
			target[i] = []float64{Y.At(i, col)}
		}
		s := NewSingle(cfg)
		if err := s.Fit(ctx, rows, target); err != nil {
			return err
		}
		e.singles[col] = s
	}
	e.SetFitted()
	return nil
}

// Predict returns point predictions: the averaged sub-network output per
// regression column, or the decoded argmax label for classification.
func (e *Ensemble) Predict(X *mat.Dense) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, estimator.ErrNotFitted
	}
	rows := denseToRows(X)

	if e.cfg.Task == TaskClassification {
		probs, err := e.singles[0].predictRows(rows)
		if err != nil {
			return nil, err
		}
		out := mat.NewDense(len(rows), 1, nil)
		for i, p := range probs {
			best, bestIdx := math.Inf(-1), 0
			for j, v := range p {
				if v > best {
					best, bestIdx = v, j
				}
			}
			out.Set(i, 0, e.encoder.Decode(bestIdx))
		}
		return out, nil
	}

	out := mat.NewDense(len(rows), len(e.singles), nil)
	for col, s := range e.singles {
		preds, err := s.predictRows(rows)
		if err != nil {
			return nil, err
		}
		for i, p := range preds {
			out.Set(i, col, p[0])
		}
	}
	return out, nil
}

// PredictProba returns averaged class probabilities. Classification only.
func (e *Ensemble) PredictProba(X *mat.Dense) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, estimator.ErrNotFitted
	}
	if e.cfg.Task != TaskClassification {
		return nil, fmt.Errorf("learner: PredictProba requires a classification task")
	}
	probs, err := e.singles[0].predictRows(denseToRows(X))
	if err != nil {
		return nil, err
	}
	return rowsToDense(probs), nil
}

// Classes returns the fitted label values for classification, nil otherwise.
func (e *Ensemble) Classes() []float64 {
	if e.encoder == nil {
		return nil
	}
	return e.encoder.Classes()
}
