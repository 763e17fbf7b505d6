package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// CompileStages compiles the IR artifact of every spec for the given device
// and wraps each compiled unit in a Runnable adapter. All artifacts must
// exist; run the conversions first.
func CompileStages(ctx context.Context, backend Backend, modelsDir, device string, specs []StageSpec) (map[StageID]Runnable, error) {
	if !backend.Available() {
		return nil, ErrBackendNotAvailable
	}

	stages := make(map[StageID]Runnable, len(specs))
	for _, spec := range specs {
		path := spec.ArtifactPath(modelsDir)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrArtifactMissing)
		}

		compiled, err := backend.Compile(ctx, path, device)
		if err != nil {
			return nil, NewPipelineError(fmt.Errorf("%w: %w", ErrCompileFailed, err), spec.ID.String(), "compile")
		}

		log.Debug("artifact compiled", "stage", spec.ID, "device", device, "path", path)
		stages[spec.ID] = NewCompiledAdapter(compiled, spec.ID.String())
	}
	return stages, nil
}
