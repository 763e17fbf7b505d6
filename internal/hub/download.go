package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// Pull downloads a checkpoint into destDir, skipping files already present
// with matching hashes. onProgress, when non-nil, receives snapshots as the
// pull advances.
func (c *Client) Pull(ctx context.Context, ref Ref, destDir string, onProgress func(Progress)) (Manifest, error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	report(Progress{Phase: "manifest"})

	manifest, err := c.FetchManifest(ctx, ref)
	if err != nil {
		return Manifest{}, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("creating destination directory: %w", err)
	}

	var (
		mu       sync.Mutex
		progress = Progress{
			Phase:      "files",
			FilesTotal: len(manifest.Files),
			BytesTotal: manifest.TotalSize(),
		}
	)

	onRead := func(delta int64) {
		mu.Lock()
		progress.BytesDownloaded += delta
		snapshot := progress
		mu.Unlock()
		report(snapshot)
	}

	fileDone := func(path string) {
		mu.Lock()
		progress.FilesCompleted++
		progress.CurrentFile = path
		snapshot := progress
		mu.Unlock()
		report(snapshot)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.Concurrency)

	for _, entry := range manifest.Files {
		entry := entry
		group.Go(func() error {
			if err := c.pullFile(ctx, ref, entry, destDir, onRead); err != nil {
				return err
			}
			fileDone(entry.Path)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return manifest, err
	}

	mu.Lock()
	progress.Phase = "done"
	snapshot := progress
	mu.Unlock()
	report(snapshot)

	return manifest, nil
}

// pullFile fetches one manifest entry, preferring the local file then the
// cache before hitting the registry. Fetched bytes are verified against the
// manifest hash before being written.
func (c *Client) pullFile(ctx context.Context, ref Ref, entry FileEntry, destDir string, onRead func(int64)) error {
	dest := filepath.Join(destDir, filepath.FromSlash(entry.Path))

	if fileMatches(dest, entry.SHA256) {
		return nil
	}

	if data, ok := c.cacheGet(entry.SHA256); ok {
		return writeVerified(dest, data, entry)
	}

	data, err := c.fetchFile(ctx, ref, entry.Path, onRead)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", entry.Path, err)
	}

	if err := writeVerified(dest, data, entry); err != nil {
		return err
	}

	c.cachePut(entry.SHA256, data)
	return nil
}

// fileMatches reports whether the file at path exists with the given hash.
func fileMatches(path, wantHash string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return hashBytes(data) == wantHash
}

// writeVerified checks the payload hash and writes it atomically.
func writeVerified(dest string, data []byte, entry FileEntry) error {
	if got := hashBytes(data); got != entry.SHA256 {
		return fmt.Errorf("%s: got %s, want %s: %w", entry.Path, got, entry.SHA256, ErrHashMismatch)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", entry.Path, err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", entry.Path, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing %s: %w", entry.Path, err)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// cachePath maps a content hash to its cache file. Cached payloads are zstd
// compressed; checkpoint weights compress well.
func (c *Client) cachePath(hash string) string {
	return filepath.Join(c.cfg.CacheDir, hash[:2], hash+".zst")
}

// cacheGet returns the cached payload for a hash. Corrupt entries are
// dropped and treated as misses.
func (c *Client) cacheGet(hash string) ([]byte, bool) {
	if c.cfg.CacheDir == "" {
		return nil, false
	}

	compressed, err := os.ReadFile(c.cachePath(hash))
	if err != nil {
		return nil, false
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil || hashBytes(data) != hash {
		os.Remove(c.cachePath(hash))
		return nil, false
	}
	return data, true
}

// cachePut stores a payload under its hash. Cache writes are best effort.
func (c *Client) cachePut(hash string, data []byte) {
	if c.cfg.CacheDir == "" {
		return
	}

	path := c.cachePath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return
	}
	compressed := encoder.EncodeAll(data, nil)
	encoder.Close()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
	}
}
