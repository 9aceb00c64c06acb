package batch

import (
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK(3, "doc-1")
	if r.ID() != "doc-1" || r.Index() != 3 {
		t.Errorf("ID()/Index() = %q/%d", r.ID(), r.Index())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("boom")
	r := NewError(1, err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}

func TestFailed(t *testing.T) {
	results := []Result{NewOK(0, "a"), NewError(1, errors.New("x")), NewOK(2, "b"), NewError(3, errors.New("y"))}
	failed := Failed(results)
	if len(failed) != 2 || failed[0].Index() != 1 || failed[1].Index() != 3 {
		t.Errorf("Failed() = %v", failed)
	}
}
