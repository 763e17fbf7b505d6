package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/animatekit/pipeline"
)

// echoStage returns its lexicographically first input, so runs are
// deterministic regardless of map order.
type echoStage struct{}

func (echoStage) Run(_ context.Context, inputs map[string]*pipeline.Tensor) (map[string]*pipeline.Tensor, error) {
	var first string
	for name := range inputs {
		if first == "" || name < first {
			first = name
		}
	}
	return map[string]*pipeline.Tensor{"output": inputs[first]}, nil
}

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	cfg := pipeline.DefaultConfig()
	cfg.Steps = 2

	pipe, err := pipeline.New(cfg, pipeline.StageSet{
		ImageEncoder: echoStage{},
		PoseGuider:   echoStage{},
		ReferenceNet: echoStage{},
		DenoisingNet: echoStage{},
		VAEDecoder:   echoStage{},
	})
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	return pipe
}

func testServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := New(cfg, testPipeline(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func postAnimate(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/animate", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleAnimate(rec, req)
	return rec
}

func flat(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i) / float32(n)
	}
	return data
}

func TestServer_Animate(t *testing.T) {
	s := testServer(t, Config{})

	shape := []int{1, 3, 16, 16}
	n := 3 * 16 * 16

	rec := postAnimate(t, s, animateRequest{
		Reference: flat(n),
		Poses:     [][]float32{flat(n), flat(n)},
		Shape:     shape,
		Steps:     1,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp animateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Frames) != 2 {
		t.Errorf("frames = %d, want one per pose", len(resp.Frames))
	}
}

func TestServer_AnimateRejectsBadShape(t *testing.T) {
	s := testServer(t, Config{})

	rec := postAnimate(t, s, animateRequest{
		Reference: flat(10),
		Poses:     [][]float32{flat(10)},
		Shape:     []int{1, 3, 16, 16},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Error("error body missing")
	}
}

func TestServer_AnimateRejectsMissingInputs(t *testing.T) {
	s := testServer(t, Config{})

	rec := postAnimate(t, s, animateRequest{Shape: []int{1, 3, 16, 16}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_AnimateRejectsBadJSON(t *testing.T) {
	s := testServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/animate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.handleAnimate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_IndexRendersModelCard(t *testing.T) {
	s := testServer(t, Config{ModelCard: []byte("# Animate Anyone\n\nA pose-driven animation model.")})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Animate Anyone</h1>") {
		t.Error("model card markdown not rendered to HTML")
	}
}

func TestServer_Health(t *testing.T) {
	s := testServer(t, Config{})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestServer_BindAddr(t *testing.T) {
	local := testServer(t, Config{Host: "127.0.0.1", Port: 7860})
	if got := local.bindAddr(); got != "127.0.0.1:7860" {
		t.Errorf("local bindAddr = %q", got)
	}

	// Sharing is explicit. A local server never widens its bind address
	// on its own.
	shared := testServer(t, Config{Host: "127.0.0.1", Port: 7860, Share: true})
	if got := shared.bindAddr(); got != "0.0.0.0:7860" {
		t.Errorf("shared bindAddr = %q", got)
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	s := testServer(t, Config{Host: "127.0.0.1", Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	addr := s.Addr()
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("ListenAndServe returned %v", err)
	}
}

func TestNew_RejectsNilPipeline(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("nil pipeline accepted")
	}
}

func TestNew_RejectsBadPort(t *testing.T) {
	if _, err := New(Config{Port: 70000}, testPipeline(t)); err == nil {
		t.Error("invalid port accepted")
	}
}
