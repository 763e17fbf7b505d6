package pipeline

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// echoStage returns a single output mirroring its lexicographically first
// input.
type echoStage struct {
	calls int
	fail  error
}

func (e *echoStage) Run(_ context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return map[string]*Tensor{}, nil
	}
	t := inputs[names[0]]
	out := &Tensor{Shape: append(Shape(nil), t.Shape...), Data: append([]float32(nil), t.Data...)}
	return map[string]*Tensor{"output": out}, nil
}

func testStageSet() (StageSet, map[StageID]*echoStage) {
	stages := map[StageID]*echoStage{
		StageImageEncoder: {},
		StagePoseGuider:   {},
		StageReferenceNet: {},
		StageDenoisingNet: {},
		StageVAEDecoder:   {},
	}
	return StageSet{
		ImageEncoder: stages[StageImageEncoder],
		PoseGuider:   stages[StagePoseGuider],
		ReferenceNet: stages[StageReferenceNet],
		DenoisingNet: stages[StageDenoisingNet],
		VAEDecoder:   stages[StageVAEDecoder],
	}, stages
}

func TestNew_RequiresAllStages(t *testing.T) {
	cfg := DefaultConfig()

	set, _ := testStageSet()
	set.DenoisingNet = nil

	_, err := New(cfg, set)
	if !errors.Is(err, ErrStageNotWired) {
		t.Errorf("expected ErrStageNotWired, got %v", err)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "TPU"

	set, _ := testStageSet()
	_, err := New(cfg, set)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestAnimate_ProducesFramePerPose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 2

	set, stages := testStageSet()
	p, err := New(cfg, set)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := AnimateRequest{
		Reference: NewTensor(Shape{1, 3, 64, 64}),
		Poses: []*Tensor{
			NewTensor(Shape{1, 3, 64, 64}),
			NewTensor(Shape{1, 3, 64, 64}),
			NewTensor(Shape{1, 3, 64, 64}),
		},
	}

	anim, err := p.Animate(context.Background(), req)
	if err != nil {
		t.Fatalf("Animate failed: %v", err)
	}
	if len(anim.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(anim.Frames))
	}

	// Encoder and reference net run once; pose guider and decoder run per
	// frame; denoiser runs steps times per frame.
	if got := stages[StageImageEncoder].calls; got != 1 {
		t.Errorf("image encoder calls = %d, want 1", got)
	}
	if got := stages[StageReferenceNet].calls; got != 1 {
		t.Errorf("reference net calls = %d, want 1", got)
	}
	if got := stages[StagePoseGuider].calls; got != 3 {
		t.Errorf("pose guider calls = %d, want 3", got)
	}
	if got := stages[StageDenoisingNet].calls; got != 6 {
		t.Errorf("denoising net calls = %d, want 6", got)
	}
	if got := stages[StageVAEDecoder].calls; got != 3 {
		t.Errorf("vae decoder calls = %d, want 3", got)
	}
}

func TestAnimate_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 1
	cfg.Seed = 7

	run := func() *Animation {
		set, _ := testStageSet()
		p, err := New(cfg, set)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		anim, err := p.Animate(context.Background(), AnimateRequest{
			Reference: NewTensor(Shape{1, 3, 32, 32}),
			Poses:     []*Tensor{NewTensor(Shape{1, 3, 32, 32})},
		})
		if err != nil {
			t.Fatalf("Animate failed: %v", err)
		}
		return anim
	}

	a, b := run(), run()
	if len(a.Frames[0].Data) != len(b.Frames[0].Data) {
		t.Fatal("frame sizes differ across runs")
	}
	for i := range a.Frames[0].Data {
		if a.Frames[0].Data[i] != b.Frames[0].Data[i] {
			t.Fatalf("frame data differs at %d with the same seed", i)
		}
	}
}

func TestAnimate_StageErrorSurfacesWithStage(t *testing.T) {
	cfg := DefaultConfig()

	set, stages := testStageSet()
	stages[StagePoseGuider].fail = errors.New("device lost")

	p, err := New(cfg, set)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.Animate(context.Background(), AnimateRequest{
		Reference: NewTensor(Shape{1, 3, 32, 32}),
		Poses:     []*Tensor{NewTensor(Shape{1, 3, 32, 32})},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PipelineError, got %T", err)
	}
	if perr.Stage != "pose_guider" {
		t.Errorf("error stage = %q, want pose_guider", perr.Stage)
	}
}

func TestAnimate_RequiresInputs(t *testing.T) {
	set, _ := testStageSet()
	p, err := New(DefaultConfig(), set)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := p.Animate(context.Background(), AnimateRequest{}); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}

	_, err = p.Animate(context.Background(), AnimateRequest{Reference: NewTensor(Shape{1, 3, 8, 8})})
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput for empty poses, got %v", err)
	}
}

func TestLatentFromImage_Shape(t *testing.T) {
	img := NewTensor(Shape{1, 3, 64, 48})
	latent := latentFromImage(img)

	want := Shape{1, latentChannels, 8, 6}
	if len(latent.Shape) != len(want) {
		t.Fatalf("latent rank = %d, want %d", len(latent.Shape), len(want))
	}
	for i := range want {
		if latent.Shape[i] != want[i] {
			t.Errorf("latent shape[%d] = %d, want %d", i, latent.Shape[i], want[i])
		}
	}
}
