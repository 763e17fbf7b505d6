package pipeline

import "path/filepath"

// StageID identifies one of the five sub-modules of the animation pipeline.
type StageID int

const (
	// StageImageEncoder embeds the reference image.
	StageImageEncoder StageID = iota
	// StagePoseGuider encodes the driving pose sequence.
	StagePoseGuider
	// StageReferenceNet extracts reference features for the denoiser.
	StageReferenceNet
	// StageDenoisingNet predicts noise residuals per diffusion step.
	StageDenoisingNet
	// StageVAEDecoder decodes latents into image frames.
	StageVAEDecoder
)

// stageCount is the number of pipeline stages.
const stageCount = 5

// String returns the canonical stage name, which is also the module name
// inside the checkpoint.
func (s StageID) String() string {
	switch s {
	case StageImageEncoder:
		return "image_encoder"
	case StagePoseGuider:
		return "pose_guider"
	case StageReferenceNet:
		return "reference_net"
	case StageDenoisingNet:
		return "denoising_net"
	case StageVAEDecoder:
		return "vae_decoder"
	default:
		return "unknown"
	}
}

// AllStages returns the stage IDs in conversion order.
func AllStages() []StageID {
	return []StageID{
		StageImageEncoder,
		StagePoseGuider,
		StageReferenceNet,
		StageDenoisingNet,
		StageVAEDecoder,
	}
}

// StageSpec describes how one stage is converted: where its IR lives, the
// example input that traces it, and which axes stay dynamic.
type StageSpec struct {
	ID       StageID
	Artifact string            // IR filename relative to the models dir
	Shapes   map[string]Shape  // dynamic-axis overrides, nil when fully static
	Example  func() Example    // builds the tracing input
}

// ArtifactPath returns the absolute artifact path under modelsDir.
func (s StageSpec) ArtifactPath(modelsDir string) string {
	return filepath.Join(modelsDir, s.Artifact)
}

// latentChannels is the channel count of the diffusion latent space.
const latentChannels = 4

// StageSpecs returns the five conversion specs. Image height and width are
// left dynamic on the spatial stages so one artifact serves any input size.
func StageSpecs() []StageSpec {
	return []StageSpec{
		{
			ID:       StageImageEncoder,
			Artifact: "image_encoder.xml",
			Example: func() Example {
				return Example{"image": NewTensor(Shape{1, 3, 224, 224})}
			},
		},
		{
			ID:       StagePoseGuider,
			Artifact: "pose_guider.xml",
			Shapes: map[string]Shape{
				"pose": {1, 3, DynamicDim, DynamicDim},
			},
			Example: func() Example {
				return Example{"pose": NewTensor(Shape{1, 3, 512, 512})}
			},
		},
		{
			ID:       StageReferenceNet,
			Artifact: "reference_net.xml",
			Shapes: map[string]Shape{
				"latent": {1, latentChannels, DynamicDim, DynamicDim},
			},
			Example: func() Example {
				return Example{
					"latent":    NewTensor(Shape{1, latentChannels, 64, 64}),
					"embedding": NewTensor(Shape{1, 768}),
				}
			},
		},
		{
			ID:       StageDenoisingNet,
			Artifact: "denoising_net.xml",
			Shapes: map[string]Shape{
				"latent": {1, latentChannels, DynamicDim, DynamicDim},
				"pose":   {1, latentChannels, DynamicDim, DynamicDim},
			},
			Example: func() Example {
				return Example{
					"latent":    NewTensor(Shape{1, latentChannels, 64, 64}),
					"pose":      NewTensor(Shape{1, latentChannels, 64, 64}),
					"features":  NewTensor(Shape{1, 768}),
					"timestep":  NewTensor(Shape{1}),
				}
			},
		},
		{
			ID:       StageVAEDecoder,
			Artifact: "vae_decoder.xml",
			Shapes: map[string]Shape{
				"latent": {1, latentChannels, DynamicDim, DynamicDim},
			},
			Example: func() Example {
				return Example{"latent": NewTensor(Shape{1, latentChannels, 64, 64})}
			},
		},
	}
}
