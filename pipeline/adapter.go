package pipeline

import (
	"context"
	"fmt"
)

// compiledAdapter wraps a compiled unit behind the Runnable interface,
// converting the backend's native output container back into Tensors.
type compiledAdapter struct {
	compiled Compiled
	stage    string
}

// NewCompiledAdapter wraps a compiled unit as a Runnable for the named stage.
func NewCompiledAdapter(compiled Compiled, stage string) Runnable {
	return &compiledAdapter{compiled: compiled, stage: stage}
}

// Run executes the compiled unit and converts its outputs.
func (a *compiledAdapter) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	native, err := a.compiled.Infer(ctx, inputs)
	if err != nil {
		return nil, NewPipelineError(err, a.stage, "infer")
	}

	outputs := make(map[string]*Tensor, len(native))
	for name, v := range native {
		outputs[name] = &Tensor{
			Shape: append(Shape(nil), v.Shape...),
			Data:  v.Data,
		}
	}
	return outputs, nil
}

// checkpointModule is a Module backed by a checkpoint on disk. It carries
// the source path for the conversion backend; the forward pass itself lives
// in the external toolchain, so native execution is refused.
type checkpointModule struct {
	name   string
	source string
}

// NewCheckpointModule creates a Module referencing a checkpoint sub-module.
func NewCheckpointModule(name, source string) Module {
	return &checkpointModule{name: name, source: source}
}

func (m *checkpointModule) Name() string   { return m.name }
func (m *checkpointModule) Source() string { return m.source }

func (m *checkpointModule) Run(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("%s: %w", m.name, ErrNativeExecution)
}
