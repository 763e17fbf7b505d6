// Package mock provides a mock conversion backend for testing.
package mock

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/animatekit/pipeline"
)

// irHeader marks serialized mock IR blobs.
const irHeader = "MOCKIR1"

// Backend implements the conversion backend interface for testing. It
// counts converter invocations so tests can assert the skip-if-exists
// behavior, and it models the converter's leaked class registry with an
// interned map that Release clears.
type Backend struct {
	mu sync.Mutex

	// Configuration
	delay time.Duration

	// Control for testing
	shouldFail   bool
	failureError error
	available    bool

	// Counters
	convertCalls int
	compileCalls int
	releases     int

	// registry models the converter's process-wide class cache.
	registry map[string]int
}

// New creates a new mock backend.
func New() *Backend {
	return &Backend{
		available: true,
		registry:  make(map[string]int),
	}
}

// Name identifies the backend.
func (b *Backend) Name() string { return "mock" }

// Available reports whether the backend is usable.
func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// irPayload is the gob-encoded body of a mock IR artifact.
type irPayload struct {
	Module string
	Inputs []irInput
}

type irInput struct {
	Name  string
	Shape []int
}

// Convert serializes a deterministic IR describing the module and its
// traced inputs. Every call interns a registry entry that stays until
// Release, mirroring the external converter's class-cache leak.
func (b *Backend) Convert(_ context.Context, module pipeline.Module, example pipeline.Example, shapes map[string]pipeline.Shape) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.convertCalls++
	b.registry[module.Name()]++

	if b.shouldFail {
		return nil, b.failureError
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	payload := irPayload{Module: module.Name()}
	names := make([]string, 0, len(example))
	for name := range example {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		shape := example[name].Shape
		if override, ok := shapes[name]; ok {
			shape = override
		}
		payload.Inputs = append(payload.Inputs, irInput{Name: name, Shape: shape})
	}

	var buf bytes.Buffer
	buf.WriteString(irHeader)
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encoding mock IR: %w", err)
	}
	return buf.Bytes(), nil
}

// Compile loads a mock IR artifact and returns a compiled unit that echoes
// input-shaped outputs.
func (b *Backend) Compile(_ context.Context, irPath, device string) (pipeline.Compiled, error) {
	b.mu.Lock()
	b.compileCalls++
	fail := b.shouldFail
	failErr := b.failureError
	b.mu.Unlock()

	if fail {
		return nil, failErr
	}

	data, err := os.ReadFile(irPath)
	if err != nil {
		return nil, fmt.Errorf("reading mock IR: %w", err)
	}
	if len(data) < len(irHeader) || string(data[:len(irHeader)]) != irHeader {
		return nil, fmt.Errorf("not a mock IR artifact: %s", irPath)
	}

	var payload irPayload
	if err := gob.NewDecoder(bytes.NewReader(data[len(irHeader):])).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding mock IR: %w", err)
	}

	return &compiledUnit{module: payload.Module, device: device}, nil
}

// Release clears the interned registry entries.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases++
	b.registry = make(map[string]int)
}

// compiledUnit is a mock compiled artifact. Its single output mirrors the
// shape of the first input, with values halved so runs are deterministic
// but not identity.
type compiledUnit struct {
	module string
	device string
	closed bool
}

func (c *compiledUnit) Device() string { return c.device }

func (c *compiledUnit) Infer(_ context.Context, inputs map[string]*pipeline.Tensor) (pipeline.NativeOutputs, error) {
	if c.closed {
		return nil, fmt.Errorf("%s: compiled unit is closed", c.module)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s: no inputs", c.module)
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	src := inputs[names[0]]
	out := pipeline.NativeValue{
		Shape: append([]int(nil), src.Shape...),
		Data:  make([]float32, len(src.Data)),
	}
	for i, v := range src.Data {
		out.Data[i] = v / 2
	}
	return pipeline.NativeOutputs{"output": out}, nil
}

func (c *compiledUnit) Close() error {
	c.closed = true
	return nil
}

// Test control methods

// SetDelay sets a simulated conversion delay.
func (b *Backend) SetDelay(delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = delay
}

// SetFailure configures the backend to fail with the given error.
func (b *Backend) SetFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shouldFail = true
	b.failureError = err
}

// ClearFailure resets the backend to normal operation.
func (b *Backend) ClearFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shouldFail = false
	b.failureError = nil
}

// SetAvailable overrides the availability state.
func (b *Backend) SetAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = available
}

// ConvertCalls returns the number of Convert invocations.
func (b *Backend) ConvertCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.convertCalls
}

// CompileCalls returns the number of Compile invocations.
func (b *Backend) CompileCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compileCalls
}

// Releases returns the number of Release invocations.
func (b *Backend) Releases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.releases
}

// RegistrySize returns the number of interned registry entries.
func (b *Backend) RegistrySize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registry)
}
