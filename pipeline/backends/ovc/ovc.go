// Package ovc drives the external model-conversion toolchain binary.
package ovc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/animatekit/pipeline"
)

// Backend implements the conversion backend interface by shelling out to
// the converter binary. A fresh process is used per conversion and per
// inference; the only state shared across calls is the converter's on-disk
// trace registry, which Release tears down.
type Backend struct {
	cfg pipeline.OVCConfig

	// registryDir holds the converter's interned trace state between
	// Convert and Release.
	registryDir string

	mu sync.Mutex
}

// New creates a backend for the configured toolchain binary.
func New(cfg pipeline.OVCConfig) *Backend {
	if cfg.Binary == "" {
		cfg.Binary = "ovc"
	}
	return &Backend{
		cfg:         cfg,
		registryDir: filepath.Join(os.TempDir(), fmt.Sprintf("animatekit-ovc-%d", os.Getpid())),
	}
}

// Name identifies the backend.
func (b *Backend) Name() string { return "ovc" }

// Available reports whether the toolchain binary can be found.
func (b *Backend) Available() bool {
	_, err := exec.LookPath(b.cfg.Binary)
	return err == nil
}

// exampleSpec is the JSON handed to the converter describing the tracing
// inputs and dynamic-axis overrides.
type exampleSpec struct {
	Inputs map[string]tensorSpec `json:"inputs"`
}

type tensorSpec struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data,omitempty"`
}

// Convert traces the module by invoking the converter binary and returns
// the serialized IR it produced.
func (b *Backend) Convert(ctx context.Context, module pipeline.Module, example pipeline.Example, shapes map[string]pipeline.Shape) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if module.Source() == "" {
		return nil, fmt.Errorf("module %s has no checkpoint source", module.Name())
	}

	if err := os.MkdirAll(b.registryDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create trace registry dir: %w", err)
	}

	spec := exampleSpec{Inputs: make(map[string]tensorSpec, len(example))}
	for name, t := range example {
		spec.Inputs[name] = tensorSpec{Shape: t.Shape, Data: t.Data}
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encoding example inputs: %w", err)
	}

	outPath := filepath.Join(b.registryDir, module.Name()+".xml")

	args := []string{
		"convert",
		"--source", module.Source(),
		"--module", module.Name(),
		"--registry-dir", b.registryDir,
		"--output", outPath,
	}
	for name, shape := range shapes {
		args = append(args, "--input-shape", name+":"+formatShape(shape))
	}
	args = append(args, b.cfg.ExtraArgs...)

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	cmd.Stdin = bytes.NewReader(specJSON)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("conversion timeout: %w", ctx.Err())
		}
		// The converter's own error is the error; no translation.
		return nil, fmt.Errorf("%s convert failed: %w: %s", b.cfg.Binary, err, strings.TrimSpace(stderr.String()))
	}

	ir, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("converter produced no IR: %w", err)
	}
	if len(ir) == 0 {
		return nil, errors.New("converter produced an empty IR")
	}
	return ir, nil
}

// Compile returns a compiled unit bound to the IR path and device. The
// actual device compilation happens inside the runner process on first
// inference.
func (b *Backend) Compile(ctx context.Context, irPath, device string) (pipeline.Compiled, error) {
	if _, err := os.Stat(irPath); err != nil {
		return nil, fmt.Errorf("IR artifact not readable: %w", err)
	}

	// Probe the runner once so bad device selectors fail at compile time,
	// not mid-animation.
	cmd := exec.CommandContext(ctx, b.cfg.Binary, "probe", "--ir", irPath, "--device", device)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s probe failed for device %s: %w: %s", b.cfg.Binary, device, err, strings.TrimSpace(stderr.String()))
	}

	return &compiledUnit{
		binary:  b.cfg.Binary,
		irPath:  irPath,
		device:  device,
		timeout: b.cfg.Timeout,
	}, nil
}

// Release removes the converter's on-disk trace registry. Safe to call when
// nothing was interned.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	os.RemoveAll(b.registryDir)
}

// formatShape renders a shape override for the converter CLI, with "?" as
// the dynamic-axis marker.
func formatShape(shape pipeline.Shape) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		if d == pipeline.DynamicDim {
			parts[i] = "?"
		} else {
			parts[i] = strconv.Itoa(d)
		}
	}
	return strings.Join(parts, ",")
}

// compiledUnit executes a compiled IR through the runner binary. Outputs
// come back in the runner's native JSON container.
type compiledUnit struct {
	binary  string
	irPath  string
	device  string
	timeout time.Duration
	closed  bool
	mu      sync.Mutex
}

func (c *compiledUnit) Device() string { return c.device }

// Infer runs one forward pass.
func (c *compiledUnit) Infer(ctx context.Context, inputs map[string]*pipeline.Tensor) (pipeline.NativeOutputs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("compiled unit is closed")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	spec := exampleSpec{Inputs: make(map[string]tensorSpec, len(inputs))}
	for name, t := range inputs {
		spec.Inputs[name] = tensorSpec{Shape: t.Shape, Data: t.Data}
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encoding inputs: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.binary, "infer", "--ir", c.irPath, "--device", c.device)
	cmd.Stdin = bytes.NewReader(specJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s infer failed: %w: %s", c.binary, err, strings.TrimSpace(stderr.String()))
	}

	var raw map[string]tensorSpec
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("decoding runner output: %w", err)
	}

	outputs := make(pipeline.NativeOutputs, len(raw))
	for name, t := range raw {
		outputs[name] = pipeline.NativeValue{Shape: t.Shape, Data: t.Data}
	}
	return outputs, nil
}

func (c *compiledUnit) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
