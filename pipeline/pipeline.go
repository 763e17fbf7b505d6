// Package pipeline prepares and runs the image-animation diffusion pipeline:
// checkpoint sub-modules are converted to a serialized intermediate
// representation, compiled for a target device, and wired back together
// behind Runnable adapters.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
)

// StageSet holds the five runnables the pipeline is built from. Each slot
// is either a source module or a compiled-artifact adapter; the choice is
// made here, at construction time.
type StageSet struct {
	ImageEncoder Runnable
	PoseGuider   Runnable
	ReferenceNet Runnable
	DenoisingNet Runnable
	VAEDecoder   Runnable
}

// runnable returns the slot for the given stage.
func (s StageSet) runnable(id StageID) Runnable {
	switch id {
	case StageImageEncoder:
		return s.ImageEncoder
	case StagePoseGuider:
		return s.PoseGuider
	case StageReferenceNet:
		return s.ReferenceNet
	case StageDenoisingNet:
		return s.DenoisingNet
	case StageVAEDecoder:
		return s.VAEDecoder
	default:
		return nil
	}
}

// Pipeline is the assembled animation pipeline. Execution is sequential and
// synchronous; the compiled units' internal parallelism is opaque to it.
type Pipeline struct {
	cfg    Config
	stages StageSet
}

// New constructs a pipeline from the configuration and stage set. Every
// stage slot must be wired.
func New(cfg Config, stages StageSet) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, id := range AllStages() {
		if stages.runnable(id) == nil {
			return nil, fmt.Errorf("%s: %w", id, ErrStageNotWired)
		}
	}
	return &Pipeline{cfg: cfg, stages: stages}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// AnimateRequest describes one animation run.
type AnimateRequest struct {
	// Reference is the reference image, shaped [1, 3, H, W].
	Reference *Tensor

	// Poses is the driving pose sequence, one [1, 3, H, W] tensor per frame.
	Poses []*Tensor

	// Steps overrides the configured denoising step count when positive.
	Steps int

	// Seed overrides the configured noise seed when non-zero.
	Seed int64
}

// Animation is the result of a pipeline run.
type Animation struct {
	// Frames are the decoded image frames, shaped like the pose inputs.
	Frames []*Tensor
}

// Animate runs the fixed linear sequence: encode the reference image,
// extract reference features, then per pose frame guide, denoise and decode.
func (p *Pipeline) Animate(ctx context.Context, req AnimateRequest) (*Animation, error) {
	if req.Reference == nil {
		return nil, fmt.Errorf("reference image: %w", ErrMissingInput)
	}
	if len(req.Poses) == 0 {
		return nil, fmt.Errorf("pose sequence: %w", ErrMissingInput)
	}

	steps := req.Steps
	if steps <= 0 {
		steps = p.cfg.Steps
	}
	seed := req.Seed
	if seed == 0 {
		seed = p.cfg.Seed
	}

	embedding, err := p.runSingle(ctx, StageImageEncoder, map[string]*Tensor{
		"image": req.Reference,
	})
	if err != nil {
		return nil, err
	}

	refLatent := latentFromImage(req.Reference)
	features, err := p.runSingle(ctx, StageReferenceNet, map[string]*Tensor{
		"latent":    refLatent,
		"embedding": embedding,
	})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	frames := make([]*Tensor, 0, len(req.Poses))

	for i, pose := range req.Poses {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		guided, err := p.runSingle(ctx, StagePoseGuider, map[string]*Tensor{
			"pose": pose,
		})
		if err != nil {
			return nil, err
		}

		latent := noiseLatent(latentFromImage(pose).Shape, rng)
		for step := steps; step > 0; step-- {
			timestep := &Tensor{Shape: Shape{1}, Data: []float32{float32(step)}}
			noise, err := p.runSingle(ctx, StageDenoisingNet, map[string]*Tensor{
				"latent":   latent,
				"pose":     guided,
				"features": features,
				"timestep": timestep,
			})
			if err != nil {
				return nil, err
			}
			latent = denoiseStep(latent, noise, float32(p.cfg.GuidanceScale)/float32(steps))
		}

		frame, err := p.runSingle(ctx, StageVAEDecoder, map[string]*Tensor{
			"latent": latent,
		})
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	return &Animation{Frames: frames}, nil
}

// runSingle runs a stage and returns its sole output tensor.
func (p *Pipeline) runSingle(ctx context.Context, id StageID, inputs map[string]*Tensor) (*Tensor, error) {
	outputs, err := p.stages.runnable(id).Run(ctx, inputs)
	if err != nil {
		return nil, NewPipelineError(err, id.String(), "run")
	}
	for _, t := range outputs {
		return t, nil
	}
	return nil, NewPipelineError(fmt.Errorf("stage produced no outputs"), id.String(), "run")
}

// latentScale is the spatial downscale factor between image and latent space.
const latentScale = 8

// latentFromImage average-pools an image tensor into latent space.
func latentFromImage(img *Tensor) *Tensor {
	if img.Shape.Rank() != 4 {
		return NewTensor(Shape{1, latentChannels, 64, 64})
	}
	h := img.Shape[2] / latentScale
	w := img.Shape[3] / latentScale
	if h < 1 {
		h = 1
	}
	if w < 1 {
		w = 1
	}

	latent := NewTensor(Shape{1, latentChannels, h, w})
	channels := img.Shape[1]
	imgH, imgW := img.Shape[2], img.Shape[3]

	for c := 0; c < latentChannels; c++ {
		src := c % channels
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum float32
				var n int
				for dy := 0; dy < latentScale; dy++ {
					for dx := 0; dx < latentScale; dx++ {
						sy, sx := y*latentScale+dy, x*latentScale+dx
						if sy < imgH && sx < imgW {
							sum += img.Data[(src*imgH+sy)*imgW+sx]
							n++
						}
					}
				}
				if n > 0 {
					latent.Data[(c*h+y)*w+x] = sum / float32(n)
				}
			}
		}
	}
	return latent
}

// noiseLatent fills a latent tensor with seeded gaussian noise.
func noiseLatent(shape Shape, rng *rand.Rand) *Tensor {
	t := NewTensor(shape)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

// denoiseStep subtracts the scaled noise prediction from the latent.
func denoiseStep(latent, noise *Tensor, scale float32) *Tensor {
	out := &Tensor{
		Shape: append(Shape(nil), latent.Shape...),
		Data:  make([]float32, len(latent.Data)),
	}
	for i := range latent.Data {
		n := float32(0)
		if i < len(noise.Data) {
			n = noise.Data[i]
		}
		out.Data[i] = latent.Data[i] - scale*n
	}
	return out
}
