// Package server runs the animation demo over HTTP: upload a reference
// image and a pose sequence, get frames back from the compiled pipeline.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/yuin/goldmark"

	"github.com/dgnsrekt/animatekit/pipeline"
)

// Config holds demo server settings, populated from flags and the
// environment.
type Config struct {
	// Host is the local bind address.
	Host string `env:"ANIMATEKIT_DEMO_HOST" envDefault:"127.0.0.1"`

	// Port is the local bind port. Zero picks a free port.
	Port int `env:"ANIMATEKIT_DEMO_PORT" envDefault:"7860"`

	// Share exposes the server on all interfaces. Local serving never
	// falls back to sharing; exposure is an explicit choice.
	Share bool `env:"ANIMATEKIT_DEMO_SHARE"`

	// ModelCard is the checkpoint's model card markdown, rendered on the
	// index page when set. Populated by the caller, not the environment.
	ModelCard []byte
}

// Server serves the animation demo.
type Server struct {
	cfg  Config
	pipe *pipeline.Pipeline
	http *http.Server

	addr chan string
}

// New creates a demo server around a ready pipeline.
func New(cfg Config, pipe *pipeline.Pipeline) (*Server, error) {
	if pipe == nil {
		return nil, errors.New("server: nil pipeline")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("server: invalid port %d", cfg.Port)
	}

	s := &Server{
		cfg:  cfg,
		pipe: pipe,
		addr: make(chan string, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /animate", s.handleAnimate)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// bindAddr returns the address to listen on. Sharing binds all interfaces;
// otherwise the configured host stays local.
func (s *Server) bindAddr() string {
	host := s.cfg.Host
	if s.cfg.Share {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.cfg.Port)
}

// ListenAndServe runs the server until the context is cancelled. Bind
// failures surface to the caller instead of being papered over with a
// different exposure mode.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bindAddr())
	if err != nil {
		return fmt.Errorf("server: binding %s: %w", s.bindAddr(), err)
	}
	s.addr <- listener.Addr().String()

	if s.cfg.Share {
		log.Warn("demo exposed on all interfaces", "addr", listener.Addr())
	} else {
		log.Info("demo listening", "addr", listener.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() string {
	return <-s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleIndex renders the landing page with the model card, when present.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var card bytes.Buffer
	if len(s.cfg.ModelCard) > 0 {
		if err := goldmark.Convert(s.cfg.ModelCard, &card); err != nil {
			log.Error("rendering model card", "error", err)
			card.Reset()
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexTemplate, card.String())
}

// animateRequest is the JSON body of POST /animate.
type animateRequest struct {
	// Reference is the flattened reference image, row major.
	Reference []float32 `json:"reference"`

	// Poses are the flattened pose maps, one per output frame.
	Poses [][]float32 `json:"poses"`

	// Shape describes both the reference and pose tensors. Defaults to
	// [1, 3, 512, 512].
	Shape []int `json:"shape,omitempty"`

	// Steps overrides the configured denoising step count when positive.
	Steps int `json:"steps,omitempty"`

	// Seed overrides the configured noise seed when non-zero.
	Seed int64 `json:"seed,omitempty"`
}

type animateResponse struct {
	Frames [][]float32 `json:"frames"`
	Took   string      `json:"took"`
}

// handleAnimate runs the pipeline on the posted inputs. Errors return real
// status codes with the underlying message; nothing is retried silently.
func (s *Server) handleAnimate(w http.ResponseWriter, r *http.Request) {
	var req animateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	shape := req.Shape
	if len(shape) == 0 {
		shape = []int{1, 3, 512, 512}
	}

	poses := make([]*pipeline.Tensor, len(req.Poses))
	for i, data := range req.Poses {
		tensor, err := tensorFrom(data, shape)
		if err != nil {
			httpError(w, http.StatusBadRequest, fmt.Errorf("pose %d: %w", i, err))
			return
		}
		poses[i] = tensor
	}

	reference, err := tensorFrom(req.Reference, shape)
	if err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("reference: %w", err))
		return
	}

	start := time.Now()
	animation, err := s.pipe.Animate(r.Context(), pipeline.AnimateRequest{
		Reference: reference,
		Poses:     poses,
		Steps:     req.Steps,
		Seed:      req.Seed,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrMissingInput) || errors.Is(err, pipeline.ErrShapeMismatch) {
			status = http.StatusBadRequest
		}
		httpError(w, status, err)
		return
	}

	resp := animateResponse{Took: time.Since(start).Round(time.Millisecond).String()}
	for _, frame := range animation.Frames {
		resp.Frames = append(resp.Frames, frame.Data)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func tensorFrom(data []float32, shape []int) (*pipeline.Tensor, error) {
	if len(data) == 0 {
		return nil, errors.New("empty tensor data")
	}
	s := pipeline.Shape(shape)
	if len(data) != s.NumElements() {
		return nil, fmt.Errorf("%w: got %d values, want %d", pipeline.ErrShapeMismatch, len(data), s.NumElements())
	}
	return &pipeline.Tensor{Shape: s, Data: data}, nil
}

func httpError(w http.ResponseWriter, status int, err error) {
	log.Error("request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>animatekit demo</title></head>
<body>
<h1>animatekit demo</h1>
<p>POST a reference image and pose sequence to <code>/animate</code>.</p>
%s
</body>
</html>
`
