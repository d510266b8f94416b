package estimator

import (
	"errors"
	"testing"
)

type statefulModel struct {
	Base
}

type statelessModel struct{}

func TestBaseState(t *testing.T) {
	m := &statefulModel{}
	if m.IsFitted() {
		t.Error("new model must start unfitted")
	}
	m.SetFitted()
	if !m.IsFitted() {
		t.Error("SetFitted must mark the model fitted")
	}
	m.ResetState()
	if m.IsFitted() {
		t.Error("ResetState must return the model to unfitted")
	}
}

func TestCheckFitted(t *testing.T) {
	m := &statefulModel{}
	if err := CheckFitted(m); !errors.Is(err, ErrNotFitted) {
		t.Errorf("unfitted model: error = %v, want ErrNotFitted", err)
	}

	m.SetFitted()
	if err := CheckFitted(m); err != nil {
		t.Errorf("fitted model: unexpected error %v", err)
	}
}

func TestCheckFittedStateless(t *testing.T) {
	// Models without a fitted state, such as a remote endpoint, are assumed
	// ready.
	if err := CheckFitted(statelessModel{}); err != nil {
		t.Errorf("stateless model: unexpected error %v", err)
	}
}
