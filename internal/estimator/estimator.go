// Package estimator defines the fit/predict contracts shared by every model
// in this repository. Predictive models, imputation models and the ensemble
// learner all speak in gonum dense matrices: rows are samples, columns are
// features or outputs. Targets are matrices too, so predicting a group of
// covariates works the same as predicting a single outcome.
package estimator

import "gonum.org/v1/gonum/mat"

// Fitter is a trainable model.
type Fitter interface {
	// Fit trains the model on X (samples x features) and Y (samples x outputs).
	Fit(X, Y *mat.Dense) error
}

// Predictor produces point predictions.
type Predictor interface {
	// Predict returns a (samples x outputs) prediction matrix.
	Predict(X *mat.Dense) (*mat.Dense, error)
}

// ProbaPredictor is a classifier that can emit class probabilities.
type ProbaPredictor interface {
	Predictor
	// PredictProba returns a (samples x classes) probability matrix.
	PredictProba(X *mat.Dense) (*mat.Dense, error)
}

// Estimator can both learn and predict.
type Estimator interface {
	Fitter
	Predictor
}

// Cloner returns a fresh, unfitted copy of the estimator carrying the same
// hyperparameters. Imputation-model prototypes must implement this so one
// prototype can be cloned per covariate group.
type Cloner interface {
	Clone() Estimator
}
