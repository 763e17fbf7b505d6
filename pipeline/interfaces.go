package pipeline

import (
	"context"
)

// DynamicDim marks an axis as variable in a shape override, telling the
// conversion backend which dimensions may change between runs (e.g. image
// height and width).
const DynamicDim = -1

// Shape is a sequence of per-dimension sizes. A DynamicDim entry means the
// axis is dynamic.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// IsDynamic reports whether any axis is marked dynamic.
func (s Shape) IsDynamic() bool {
	for _, d := range s {
		if d == DynamicDim {
			return true
		}
	}
	return false
}

// NumElements returns the element count for a fully static shape, or -1 if
// any axis is dynamic.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		if d == DynamicDim {
			return -1
		}
		n *= d
	}
	return n
}

// Tensor is a dense float32 tensor passed between pipeline stages.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor allocates a zero-filled tensor with the given static shape.
func NewTensor(shape Shape) *Tensor {
	n := shape.NumElements()
	if n < 0 {
		n = 0
	}
	return &Tensor{
		Shape: append(Shape(nil), shape...),
		Data:  make([]float32, n),
	}
}

// Example is a structured example-input mapping used to trace a module
// during conversion.
type Example map[string]*Tensor

// Runnable is a forward-pass unit: named input tensors in, named output
// tensors out. The pipeline holds one Runnable per stage; it is either a
// source module or a compiled-artifact adapter, selected when the pipeline
// is constructed.
type Runnable interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
}

// Module is a runnable forward-pass unit eligible for conversion.
type Module interface {
	Runnable

	// Name identifies the module, e.g. "denoising_net".
	Name() string

	// Source returns the checkpoint path backing the module. Empty for
	// modules constructed in memory.
	Source() string
}

// NativeValue is one output in the backend's native output container.
type NativeValue struct {
	Shape []int
	Data  []float32
}

// NativeOutputs is the backend's native output container, keyed by output
// port name. Adapters convert it back into Tensors for the rest of the
// pipeline.
type NativeOutputs map[string]NativeValue

// Compiled is a device-compiled unit ready for execution. Outputs are in
// the backend's native container format.
type Compiled interface {
	// Infer executes the compiled unit.
	Infer(ctx context.Context, inputs map[string]*Tensor) (NativeOutputs, error)

	// Device returns the device selector the unit was compiled for.
	Device() string

	// Close releases the compiled unit's resources.
	Close() error
}

// Backend drives the external conversion and compilation toolchain.
type Backend interface {
	// Name identifies the backend, e.g. "ovc".
	Name() string

	// Convert traces the module with the example inputs and returns the
	// serialized IR. Shape overrides mark dynamic axes per input port.
	// The converter may intern process-wide registry state; callers must
	// pair every Convert with a Release.
	Convert(ctx context.Context, module Module, example Example, shapes map[string]Shape) ([]byte, error)

	// Compile loads a serialized IR from disk and prepares it for the
	// given device selector.
	Compile(ctx context.Context, irPath, device string) (Compiled, error)

	// Release clears process-wide registry state interned by Convert.
	// Safe to call when no state is held.
	Release()

	// Available reports whether the backend toolchain is usable.
	Available() bool
}
