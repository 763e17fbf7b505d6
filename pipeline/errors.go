package pipeline

import "errors"

// Common errors for the pipeline system.
var (
	// Backend errors
	ErrBackendNotAvailable = errors.New("conversion backend is not available")
	ErrBackendUnknown      = errors.New("unknown conversion backend")

	// Conversion errors
	ErrInvalidRequest = errors.New("invalid conversion request")
	ErrNilModule      = errors.New("conversion request has no module")
	ErrEmptyDest      = errors.New("conversion request has no destination path")

	// Compilation errors
	ErrArtifactMissing = errors.New("IR artifact not found")
	ErrCompileFailed   = errors.New("artifact compilation failed")

	// Execution errors
	ErrNativeExecution = errors.New("native module execution is not supported; compile the IR first")
	ErrMissingInput    = errors.New("required input tensor missing")
	ErrShapeMismatch   = errors.New("input tensor shape mismatch")
	ErrStageNotWired   = errors.New("pipeline stage has no runnable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
	ErrUnknownDevice = errors.New("unknown device selector")
)

// PipelineError provides detailed error information.
type PipelineError struct {
	Err    error  // The underlying error
	Stage  string // Stage that generated the error, if any
	Action string // Action being performed when the error occurred
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		if e.Stage != "" {
			return e.Stage + ": " + e.Action + ": " + e.Err.Error()
		}
		return e.Action + ": " + e.Err.Error()
	}
	return "unknown pipeline error"
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new pipeline error with context.
func NewPipelineError(err error, stage, action string) *PipelineError {
	return &PipelineError{
		Err:    err,
		Stage:  stage,
		Action: action,
	}
}
