package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestPipelineError_Unwrap(t *testing.T) {
	base := errors.New("unsupported operator")
	err := NewPipelineError(base, "denoising_net", "convert")

	if !errors.Is(err, base) {
		t.Error("wrapped error not reachable via errors.Is")
	}
	if got := err.Error(); !strings.Contains(got, "denoising_net") || !strings.Contains(got, "convert") {
		t.Errorf("error message missing context: %q", got)
	}
}

func TestPipelineError_NoStage(t *testing.T) {
	err := NewPipelineError(errors.New("boom"), "", "compile")
	if got := err.Error(); !strings.HasPrefix(got, "compile: ") {
		t.Errorf("error message = %q", got)
	}
}

func TestPipelineError_NilUnderlying(t *testing.T) {
	err := &PipelineError{Action: "run"}
	if got := err.Error(); got != "unknown pipeline error" {
		t.Errorf("error message = %q", got)
	}
	if err.Unwrap() != nil {
		t.Error("Unwrap should return nil")
	}
}
