package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/animatekit/pipeline"
)

var (
	runInput  string
	runOutput string
	runSteps  int
	runSeed   int64
)

// runRequest is the JSON input file format for the run command: a flattened
// reference image plus one flattened pose map per frame.
type runRequest struct {
	Reference []float32   `json:"reference"`
	Poses     [][]float32 `json:"poses"`
	Shape     []int       `json:"shape"`
}

type runResult struct {
	Frames [][]float32 `json:"frames"`
	Shape  []int       `json:"shape"`
	Took   string      `json:"took"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Animate a reference image with a pose sequence",
	Long: paragraph(
		fmt.Sprintf("\nCompile the converted IR for the configured device and run the %s pipeline on the given inputs.", keyword("animation")),
	),
	Example: paragraph("animatekit run --input request.json\nanimatekit run --input request.json --device GPU --steps 10"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}

		pipe, err := buildPipeline(cmd, cfg)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(runInput)
		if err != nil {
			return fmt.Errorf("unable to open file: %w", err)
		}
		var req runRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decoding %s: %w", runInput, err)
		}
		if len(req.Shape) == 0 {
			req.Shape = []int{1, 3, 512, 512}
		}

		shape := pipeline.Shape(req.Shape)
		poses := make([]*pipeline.Tensor, len(req.Poses))
		for i, p := range req.Poses {
			poses[i] = &pipeline.Tensor{Shape: shape, Data: p}
		}

		start := time.Now()
		animation, err := pipe.Animate(cmd.Context(), pipeline.AnimateRequest{
			Reference: &pipeline.Tensor{Shape: shape, Data: req.Reference},
			Poses:     poses,
			Steps:     runSteps,
			Seed:      runSeed,
		})
		if err != nil {
			return err
		}
		took := time.Since(start)

		out := runOutput
		if out == "" {
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			out = filepath.Join(cfg.OutputDir, "animation.json")
		}

		result := runResult{Shape: req.Shape, Took: took.Round(time.Millisecond).String()}
		for _, frame := range animation.Frames {
			result.Frames = append(result.Frames, frame.Data)
		}

		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if err := os.WriteFile(out, encoded, 0o644); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}

		fmt.Printf("Wrote %d frames to %s (%s)\n", len(result.Frames), out, result.Took)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "JSON file with reference image and pose sequence")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (default <output_dir>/animation.json)")
	runCmd.Flags().IntVar(&runSteps, "steps", 0, "denoising steps (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "noise seed (overrides config)")
	_ = runCmd.MarkFlagRequired("input")
}

// buildPipeline compiles every stage artifact and wires the stage set. The
// Runnable behind each slot is fixed here at construction; nothing swaps
// implementations at call time.
func buildPipeline(cmd *cobra.Command, cfg pipeline.Config) (*pipeline.Pipeline, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	stages, err := pipeline.CompileStages(cmd.Context(), backend, cfg.ModelsDir, cfg.Device, pipeline.StageSpecs())
	if err != nil {
		return nil, err
	}
	log.Debug("compiled stages", "device", cfg.Device, "count", len(stages))

	return pipeline.New(cfg, pipeline.StageSet{
		ImageEncoder: stages[pipeline.StageImageEncoder],
		PoseGuider:   stages[pipeline.StagePoseGuider],
		ReferenceNet: stages[pipeline.StageReferenceNet],
		DenoisingNet: stages[pipeline.StageDenoisingNet],
		VAEDecoder:   stages[pipeline.StageVAEDecoder],
	})
}
