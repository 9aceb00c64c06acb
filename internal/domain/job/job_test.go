package job

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	j := New("j1", "u1")
	if j.Status != StatusPending || j.Errors == nil {
		t.Errorf("New() = %+v", j)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPending: false, StatusProcessing: false,
		StatusCompleted: true, StatusFailed: true, StatusNotFound: true,
	} {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, !want, want)
		}
	}
}

func TestClone(t *testing.T) {
	j := New("j1", "u1")
	j.Errors = append(j.Errors, "a")
	c := j.Clone()
	c.Errors[0] = "b"
	if j.Errors[0] != "a" {
		t.Error("Clone must copy errors")
	}
}

func TestChunkError(t *testing.T) {
	msg := ChunkError("Person", 2, 200, 299, errors.New("boom"))
	if !strings.Contains(msg, "Person chunk 2") || !strings.Contains(msg, "boom") {
		t.Errorf("ChunkError = %q", msg)
	}
}
