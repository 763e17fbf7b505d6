package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/animatekit/internal/artifacts"
	"github.com/dgnsrekt/animatekit/pipeline"
	"github.com/dgnsrekt/animatekit/ui"
)

var convertNoTUI bool

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the checkpoint stages to IR",
	Long: paragraph(
		fmt.Sprintf("\nConvert each pipeline stage to IR under the models directory. Stages whose artifact already exists are %s; delete the file to force a re-conversion.", keyword("skipped")),
	),
	Example: paragraph("animatekit convert\nanimatekit convert --backend mock\nanimatekit convert --no-tui"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}

		backend, err := newBackend(cfg)
		if err != nil {
			return err
		}
		if !backend.Available() {
			return fmt.Errorf("%w: %s", pipeline.ErrBackendNotAvailable, backend.Name())
		}

		store, err := artifacts.NewStore(cfg.ModelsDir)
		if err != nil {
			return err
		}
		defer store.Close()

		// One converter per process; the store lock keeps concurrent CLI
		// invocations from racing on the same artifacts.
		if err := store.Lock(); err != nil {
			return err
		}
		defer store.Unlock()

		if convertNoTUI {
			return convertPlain(cmd.Context(), cfg, backend, store)
		}
		return convertTUI(cmd.Context(), cfg, backend, store)
	},
}

func init() {
	convertCmd.Flags().BoolVar(&convertNoTUI, "no-tui", false, "print progress lines instead of the TUI")
}

// convertStages runs the five conversions in order, notifying began/done
// around each stage.
func convertStages(
	ctx context.Context,
	cfg pipeline.Config,
	backend pipeline.Backend,
	store *artifacts.Store,
	began func(spec pipeline.StageSpec),
	done func(spec pipeline.StageSpec, skipped bool, size int64, err error),
) error {
	converter := pipeline.NewConverter(backend)
	source := checkpointDir(cfg)

	for _, spec := range pipeline.StageSpecs() {
		began(spec)

		dest := spec.ArtifactPath(cfg.ModelsDir)
		_, statErr := os.Stat(dest)
		skipped := statErr == nil

		err := converter.Convert(ctx, pipeline.ConvertRequest{
			Module:  pipeline.NewCheckpointModule(spec.ID.String(), source),
			Dest:    dest,
			Example: spec.Example(),
			Shapes:  spec.Shapes,
		})

		var size int64
		if info, err := os.Stat(dest); err == nil {
			size = info.Size()
		}

		done(spec, skipped && err == nil, size, err)
		if err != nil {
			return err
		}
	}

	return store.Refresh()
}

// runConversion performs a headless conversion pass, used by watch mode.
func runConversion(ctx context.Context, cfg pipeline.Config, backend pipeline.Backend) error {
	store, err := artifacts.NewStore(cfg.ModelsDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	return convertPlain(ctx, cfg, backend, store)
}

// convertPlain prints one line per stage.
func convertPlain(ctx context.Context, cfg pipeline.Config, backend pipeline.Backend, store *artifacts.Store) error {
	return convertStages(ctx, cfg, backend, store,
		func(spec pipeline.StageSpec) {
			fmt.Printf("converting %s...\n", spec.ID)
		},
		func(spec pipeline.StageSpec, skipped bool, size int64, err error) {
			switch {
			case err != nil:
				fmt.Printf("  %s: failed: %v\n", spec.ID, err)
			case skipped:
				fmt.Printf("  %s: cached at %s\n", spec.ID, spec.ArtifactPath(cfg.ModelsDir))
			default:
				fmt.Printf("  %s: wrote %s (%d bytes)\n", spec.ID, spec.ArtifactPath(cfg.ModelsDir), size)
			}
		},
	)
}

// convertTUI drives the conversion from a goroutine and renders progress
// with Bubble Tea.
func convertTUI(ctx context.Context, cfg pipeline.Config, backend pipeline.Backend, store *artifacts.Store) error {
	specs := pipeline.StageSpecs()
	program := ui.NewProgram(ui.Config{
		ModelsDir:   cfg.ModelsDir,
		Device:      cfg.Device,
		EnableMouse: mouse,
	}, specs)

	go func() {
		err := convertStages(ctx, cfg, backend, store,
			func(spec pipeline.StageSpec) {
				program.Send(ui.StageBeganMsg{ID: spec.ID})
			},
			func(spec pipeline.StageSpec, skipped bool, size int64, err error) {
				program.Send(ui.StageDoneMsg{ID: spec.ID, Skipped: skipped, Size: size, Err: err})
			},
		)
		program.Send(ui.RunFinishedMsg{Err: err})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	log.Debug("conversion run finished", "models_dir", cfg.ModelsDir)
	return nil
}
