package estimator

import (
	"errors"
	"fmt"
)

// ErrNotFitted is returned when a model is used before Fit has been called.
var ErrNotFitted = errors.New("estimator is not fitted")

// State tracks whether a model has been trained.
type State int

const (
	// NotFitted means Fit has not completed yet.
	NotFitted State = iota
	// Fitted means the model is trained and ready to predict.
	Fitted
)

// Base carries the fitted state for concrete models. Embed it and call
// SetFitted at the end of Fit.
type Base struct {
	state State
}

// IsFitted reports whether the model has been trained.
func (b *Base) IsFitted() bool { return b.state == Fitted }

// SetFitted marks the model as trained.
func (b *Base) SetFitted() { b.state = Fitted }

// ResetState returns the model to the unfitted state.
func (b *Base) ResetState() { b.state = NotFitted }

// FitChecker is implemented by models that expose their fitted state.
type FitChecker interface {
	IsFitted() bool
}

// CheckFitted returns ErrNotFitted when the model exposes a fitted state and
// that state is unfitted. Models that do not expose a state (for example a
// remote model behind an HTTP endpoint) are assumed fitted; their own
// validation applies on use.
func CheckFitted(model interface{}) error {
	fc, ok := model.(FitChecker)
	if !ok {
		return nil
	}
	if !fc.IsFitted() {
		return fmt.Errorf("%w: call Fit first", ErrNotFitted)
	}
	return nil
}
