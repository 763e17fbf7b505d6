package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// ConvertRequest describes one module-to-IR conversion. It is constructed
// once per call and discarded after use.
type ConvertRequest struct {
	// Module is the forward-pass unit to convert.
	Module Module

	// Dest is the destination file path for the serialized IR.
	Dest string

	// Example is the example input used to trace the module. It must be
	// shape and type compatible with the module's expected input.
	Example Example

	// Shapes optionally overrides input shapes, with DynamicDim marking
	// variable axes. Keyed by input port name.
	Shapes map[string]Shape
}

// Converter memoizes module-to-IR conversion on the filesystem: if the
// destination artifact already exists the conversion is skipped outright.
// There is no staleness check, so a changed module with an unchanged path
// reuses the existing artifact. Invalidation is manual, by deleting files.
type Converter struct {
	backend Backend
}

// NewConverter creates a converter on top of the given backend.
func NewConverter(backend Backend) *Converter {
	return &Converter{backend: backend}
}

// Convert produces the serialized IR at req.Dest, skipping work if the
// artifact already exists. The parent directory is created if missing. The
// backend's interned registry state is released on exit, success or failure.
// Backend errors propagate untranslated; there is no retry.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) error {
	if req.Dest == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrEmptyDest)
	}
	if req.Module == nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrNilModule)
	}

	// Cache hit: artifact exists, nothing to validate.
	if _, err := os.Stat(req.Dest); err == nil {
		log.Debug("IR artifact exists, skipping conversion",
			"module", req.Module.Name(), "path", req.Dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return fmt.Errorf("unable to create artifact directory: %w", err)
	}

	ir, err := c.trace(ctx, req)
	if err != nil {
		return err
	}

	// Temp file plus rename keeps a crashed write from leaving a partial
	// artifact that later runs would treat as present.
	if err := writeFileAtomic(req.Dest, ir); err != nil {
		return fmt.Errorf("unable to write IR artifact: %w", err)
	}

	log.Debug("IR artifact written",
		"module", req.Module.Name(), "path", req.Dest, "bytes", len(ir))
	return nil
}

// trace runs the backend conversion inside a scope that releases the
// converter's process-wide registry state on exit.
func (c *Converter) trace(ctx context.Context, req ConvertRequest) ([]byte, error) {
	defer c.backend.Release()
	return c.backend.Convert(ctx, req.Module, req.Example, req.Shapes)
}

// ConvertAll runs the conversions sequentially, reporting each result to
// onDone when set. It stops at the first error.
func (c *Converter) ConvertAll(ctx context.Context, reqs []ConvertRequest, onDone func(req ConvertRequest, err error)) error {
	for _, req := range reqs {
		err := c.Convert(ctx, req)
		if onDone != nil {
			onDone(req, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	closeErr := f.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
