package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Ref
		wantErr bool
	}{
		{
			name:  "org and name",
			input: "moore/animate-anyone",
			want:  Ref{Org: "moore", Name: "animate-anyone"},
		},
		{
			name:  "with revision",
			input: "moore/animate-anyone@v2",
			want:  Ref{Org: "moore", Name: "animate-anyone", Revision: "v2"},
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no slash",
			input:   "animate-anyone",
			wantErr: true,
		},
		{
			name:    "too many segments",
			input:   "a/b/c",
			wantErr: true,
		},
		{
			name:    "empty org",
			input:   "/animate-anyone",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRef) {
					t.Fatalf("ParseRef(%q) error = %v, want ErrInvalidRef", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRefString(t *testing.T) {
	ref := Ref{Org: "moore", Name: "animate-anyone"}
	if got := ref.String(); got != "moore/animate-anyone" {
		t.Errorf("String() = %q", got)
	}

	ref.Revision = "v2"
	if got := ref.String(); got != "moore/animate-anyone@v2" {
		t.Errorf("String() with revision = %q", got)
	}
}

func TestSuggest(t *testing.T) {
	suggestions := Suggest("animate-anyone")
	if len(suggestions) == 0 {
		t.Fatal("no suggestions for close match")
	}
	if len(suggestions) > 3 {
		t.Errorf("too many suggestions: %d", len(suggestions))
	}

	if got := Suggest("zzzzzz"); len(got) != 0 {
		t.Errorf("suggestions for gibberish: %v", got)
	}
}

func TestSuggestError(t *testing.T) {
	err := SuggestError("more/animate-anyone")
	if !errors.Is(err, ErrUnknownRef) {
		t.Fatalf("error = %v, want ErrUnknownRef", err)
	}
}

// testRegistry serves a checkpoint with the given files and counts hits
// per path.
func testRegistry(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	manifest := Manifest{Ref: "moore/animate-anyone"}
	for path, data := range files {
		sum := sha256.Sum256(data)
		manifest.Files = append(manifest.Files, FileEntry{
			Path:   path,
			Size:   int64(len(data)),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}

	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case filepath.Base(r.URL.Path) == "manifest.json":
			json.NewEncoder(w).Encode(manifest)
		default:
			name := filepath.Base(r.URL.Path)
			data, ok := files[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fetches.Add(1)
			w.Write(data)
		}
	}))
	t.Cleanup(server.Close)

	return server, &fetches
}

func TestPull_DownloadsAndVerifies(t *testing.T) {
	files := map[string][]byte{
		"unet.bin":    []byte("unet-weights"),
		"vae.bin":     []byte("vae-weights"),
		"config.json": []byte(`{"channels": 4}`),
	}
	server, _ := testRegistry(t, files)

	client := NewClient(Config{RegistryURL: server.URL, Concurrency: 2})
	dest := t.TempDir()

	ref := Ref{Org: "moore", Name: "animate-anyone"}
	manifest, err := client.Pull(context.Background(), ref, dest, nil)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(manifest.Files) != 3 {
		t.Errorf("manifest lists %d files, want 3", len(manifest.Files))
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Errorf("reading %s: %v", name, err)
			continue
		}
		if string(got) != string(want) {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestPull_SkipsPresentFiles(t *testing.T) {
	files := map[string][]byte{"unet.bin": []byte("unet-weights")}
	server, fetches := testRegistry(t, files)

	client := NewClient(Config{RegistryURL: server.URL})
	dest := t.TempDir()
	ref := Ref{Org: "moore", Name: "animate-anyone"}

	if _, err := client.Pull(context.Background(), ref, dest, nil); err != nil {
		t.Fatalf("first Pull failed: %v", err)
	}
	if _, err := client.Pull(context.Background(), ref, dest, nil); err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("file fetched %d times, want 1", got)
	}
}

func TestPull_RedownloadsCorruptFiles(t *testing.T) {
	files := map[string][]byte{"unet.bin": []byte("unet-weights")}
	server, _ := testRegistry(t, files)

	client := NewClient(Config{RegistryURL: server.URL})
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "unet.bin"), []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	ref := Ref{Org: "moore", Name: "animate-anyone"}
	if _, err := client.Pull(context.Background(), ref, dest, nil); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "unet.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "unet-weights" {
		t.Errorf("corrupt file not repaired, got %q", got)
	}
}

// manifestServer serves a fixed manifest and "data" for every other path.
func manifestServer(t *testing.T, manifest Manifest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == "manifest.json" {
			json.NewEncoder(w).Encode(manifest)
			return
		}
		w.Write([]byte("data"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPull_HashMismatch(t *testing.T) {
	wrongDigest := strings.Repeat("0", 64)
	server := manifestServer(t, Manifest{
		Ref: "moore/animate-anyone",
		Files: []FileEntry{
			{Path: "unet.bin", Size: 4, SHA256: wrongDigest},
		},
	})

	client := NewClient(Config{RegistryURL: server.URL})
	ref := Ref{Org: "moore", Name: "animate-anyone"}
	_, err := client.Pull(context.Background(), ref, t.TempDir(), nil)
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Pull error = %v, want ErrHashMismatch", err)
	}
}

func TestPull_RejectsMalformedManifestDigests(t *testing.T) {
	tests := []struct {
		name   string
		sha256 string
	}{
		{name: "empty", sha256: ""},
		{name: "too short", sha256: "ab"},
		{name: "wrong length", sha256: strings.Repeat("0", 32)},
		{name: "not hex", sha256: strings.Repeat("z", 64)},
		{name: "uppercase", sha256: strings.Repeat("A", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := manifestServer(t, Manifest{
				Ref: "moore/animate-anyone",
				Files: []FileEntry{
					{Path: "unet.bin", Size: 4, SHA256: tt.sha256},
				},
			})

			// CacheDir on: the cache keys files by digest, so malformed
			// digests must be rejected before it is consulted.
			client := NewClient(Config{RegistryURL: server.URL, CacheDir: t.TempDir()})
			ref := Ref{Org: "moore", Name: "animate-anyone"}
			_, err := client.Pull(context.Background(), ref, t.TempDir(), nil)
			if !errors.Is(err, ErrManifestInvalid) {
				t.Errorf("Pull error = %v, want ErrManifestInvalid", err)
			}
		})
	}
}

func TestPull_RejectsEmptyEntryPath(t *testing.T) {
	server := manifestServer(t, Manifest{
		Ref: "moore/animate-anyone",
		Files: []FileEntry{
			{Path: "", Size: 4, SHA256: strings.Repeat("0", 64)},
		},
	})

	client := NewClient(Config{RegistryURL: server.URL})
	ref := Ref{Org: "moore", Name: "animate-anyone"}
	_, err := client.Pull(context.Background(), ref, t.TempDir(), nil)
	if !errors.Is(err, ErrManifestInvalid) {
		t.Errorf("Pull error = %v, want ErrManifestInvalid", err)
	}
}

func TestPull_UsesCacheAcrossDestinations(t *testing.T) {
	files := map[string][]byte{"unet.bin": []byte("unet-weights")}
	server, fetches := testRegistry(t, files)

	client := NewClient(Config{RegistryURL: server.URL, CacheDir: t.TempDir()})
	ref := Ref{Org: "moore", Name: "animate-anyone"}

	if _, err := client.Pull(context.Background(), ref, t.TempDir(), nil); err != nil {
		t.Fatalf("first Pull failed: %v", err)
	}
	if _, err := client.Pull(context.Background(), ref, t.TempDir(), nil); err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("file fetched %d times, want cache hit on second pull", got)
	}
}

func TestPull_ReportsProgress(t *testing.T) {
	files := map[string][]byte{
		"unet.bin": []byte("unet-weights"),
		"vae.bin":  []byte("vae-weights"),
	}
	server, _ := testRegistry(t, files)

	client := NewClient(Config{RegistryURL: server.URL, Concurrency: 1})

	var last Progress
	ref := Ref{Org: "moore", Name: "animate-anyone"}
	_, err := client.Pull(context.Background(), ref, t.TempDir(), func(p Progress) { last = p })
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if last.Phase != "done" {
		t.Errorf("final phase = %q, want done", last.Phase)
	}
	if last.FilesCompleted != 2 || last.FilesTotal != 2 {
		t.Errorf("files %d/%d, want 2/2", last.FilesCompleted, last.FilesTotal)
	}
	if last.BytesDownloaded == 0 {
		t.Error("no bytes reported")
	}
}

func TestFetchManifest_EmptyManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Manifest{Ref: "moore/empty"})
	}))
	defer server.Close()

	client := NewClient(Config{RegistryURL: server.URL})
	_, err := client.FetchManifest(context.Background(), Ref{Org: "moore", Name: "empty"})
	if !errors.Is(err, ErrManifestEmpty) {
		t.Errorf("error = %v, want ErrManifestEmpty", err)
	}
}
