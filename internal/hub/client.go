// Package hub downloads pretrained checkpoints from the model registry:
// manifest fetch, parallel verified file download, and a compressed local
// cache so interrupted pulls don't refetch.
package hub

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the hub client.
type Config struct {
	// RegistryURL is the base URL of the checkpoint registry.
	RegistryURL string `yaml:"registry_url" env:"ANIMATEKIT_REGISTRY_URL" envDefault:"https://hub.animatekit.dev"`

	// CacheDir is the local file cache directory. Empty disables caching.
	CacheDir string `yaml:"cache_dir" env:"ANIMATEKIT_HUB_CACHE_DIR"`

	// Concurrency is the number of parallel download workers.
	Concurrency int `yaml:"concurrency" env:"ANIMATEKIT_HUB_CONCURRENCY" envDefault:"4"`

	// RateLimit caps download throughput in bytes per second. Zero means
	// unlimited.
	RateLimit int `yaml:"rate_limit" env:"ANIMATEKIT_HUB_RATE_LIMIT"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout" env:"ANIMATEKIT_HUB_TIMEOUT" envDefault:"5m"`
}

// DefaultConfig returns hub defaults.
func DefaultConfig() Config {
	return Config{
		RegistryURL: "https://hub.animatekit.dev",
		Concurrency: 4,
		Timeout:     5 * time.Minute,
	}
}

// Client talks to the checkpoint registry.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a registry client.
func NewClient(cfg Config) *Client {
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultConfig().RegistryURL
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// fileURL builds the registry URL for a checkpoint file.
func (c *Client) fileURL(ref Ref, path string) string {
	revision := ref.Revision
	if revision == "" {
		revision = "main"
	}
	return c.cfg.RegistryURL + "/" +
		url.PathEscape(ref.Org) + "/" +
		url.PathEscape(ref.Name) + "/" +
		url.PathEscape(revision) + "/" + path
}

// FetchManifest retrieves and decodes the checkpoint manifest.
func (c *Client) FetchManifest(ctx context.Context, ref Ref) (Manifest, error) {
	var manifest Manifest

	body, err := c.get(ctx, c.fileURL(ref, "manifest.json"))
	if err != nil {
		return manifest, err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(&manifest); err != nil {
		return manifest, fmt.Errorf("decoding manifest for %s: %w", ref, err)
	}
	if len(manifest.Files) == 0 {
		return manifest, fmt.Errorf("%s: %w", ref, ErrManifestEmpty)
	}

	// The manifest comes from the network; entries are validated before any
	// path or hash is acted on.
	for _, entry := range manifest.Files {
		if entry.Path == "" {
			return manifest, fmt.Errorf("%s: entry with empty path: %w", ref, ErrManifestInvalid)
		}
		if !validDigest(entry.SHA256) {
			return manifest, fmt.Errorf("%s: %s: bad sha256 %q: %w", ref, entry.Path, entry.SHA256, ErrManifestInvalid)
		}
	}
	return manifest, nil
}

// validDigest reports whether s is a lowercase hex sha256 digest.
func validDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// FetchModelCard retrieves the checkpoint's model card markdown.
func (c *Client) FetchModelCard(ctx context.Context, ref Ref) ([]byte, error) {
	body, err := c.get(ctx, c.fileURL(ref, "README.md"))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// fetchFile downloads one checkpoint file, invoking onRead with byte deltas
// as data arrives.
func (c *Client) fetchFile(ctx context.Context, ref Ref, path string, onRead func(int64)) ([]byte, error) {
	body, err := c.get(ctx, c.fileURL(ref, path))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := io.Reader(body)
	if onRead != nil || c.limiter != nil {
		reader = &meteredReader{ctx: ctx, r: body, limiter: c.limiter, onRead: onRead}
	}
	return io.ReadAll(reader)
}

// get issues a GET and returns the body on HTTP 200. A 404 on a manifest
// means the ref is unknown; suggestions help with typos.
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP 404 for %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP status %d for %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// meteredReader throttles reads through the rate limiter and reports byte
// deltas.
type meteredReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
	onRead  func(int64)
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		if m.limiter != nil {
			if waitErr := waitN(m.ctx, m.limiter, n); waitErr != nil {
				return n, waitErr
			}
		}
		if m.onRead != nil {
			m.onRead(int64(n))
		}
	}
	return n, err
}

// waitN waits for n tokens, splitting requests larger than the limiter's
// burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
