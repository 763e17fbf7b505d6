// Package artifacts tracks serialized IR artifacts on disk. Existence of a
// file is the only state that matters to the conversion step; the store adds
// an index for listing and stats, and a lock so two converters don't race on
// the same directory.
package artifacts

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// indexFile is the gob-encoded artifact index inside the store directory.
const indexFile = "artifacts.index"

// lockFile guards the store directory against concurrent converters.
const lockFile = ".lock"

// lockTimeout is the maximum wait for the store lock.
const lockTimeout = 30 * time.Second

// Store manages IR artifacts under a base directory.
type Store struct {
	baseDir string

	mu    sync.RWMutex
	index map[string]Info
	lock  *fileLock
}

// NewStore opens (creating if needed) an artifact store at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create artifact directory: %w", err)
	}

	s := &Store{
		baseDir: baseDir,
		index:   make(map[string]Info),
	}

	// A missing or corrupt index is rebuilt from the directory.
	if err := s.loadIndex(); err != nil {
		s.index = make(map[string]Info)
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}

	return s, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.baseDir }

// Path returns the absolute path for a named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// Exists reports whether the named artifact is present on disk. This is the
// cache check the conversion step relies on; presence is the only state, no
// checksum or staleness validation happens here.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// Write stores artifact data atomically via a temp file and rename, then
// records it in the index.
func (s *Store) Write(name string, data []byte) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create artifact directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	closeErr := f.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	s.mu.Lock()
	s.index[name] = Info{Name: name, Size: int64(len(data)), ModTime: time.Now()}
	s.mu.Unlock()

	return s.saveIndex()
}

// Remove deletes the named artifact. Removing a missing artifact is not an
// error.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}

	s.mu.Lock()
	delete(s.index, name)
	s.mu.Unlock()

	return s.saveIndex()
}

// Clear deletes every tracked artifact.
func (s *Store) Clear() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	s.index = make(map[string]Info)
	s.mu.Unlock()

	for _, name := range names {
		if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return s.saveIndex()
}

// List returns the tracked artifacts sorted by name.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.index))
	for _, info := range s.index {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stats returns store-wide totals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Count: len(s.index)}
	for _, info := range s.index {
		stats.TotalSize += info.Size
	}
	return stats
}

// Refresh rescans the directory, picking up artifacts written directly to
// disk (the converter writes its own files) and dropping index entries whose
// files disappeared.
func (s *Store) Refresh() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("unable to read artifact directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]Info, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == indexFile || name == lockFile || strings.HasSuffix(name, ".tmp") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		fresh[name] = Info{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}
	}
	s.index = fresh
	return nil
}

// Lock acquires the store's directory lock, blocking up to the lock timeout.
func (s *Store) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		lock, err := newFileLock(filepath.Join(s.baseDir, lockFile), lockTimeout)
		if err != nil {
			return err
		}
		s.lock = lock
	}
	return s.lock.Lock()
}

// Unlock releases the store's directory lock. Safe to call when unlocked.
func (s *Store) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil
	}
	err := s.lock.Unlock()
	s.lock = nil
	return err
}

// Close persists the index.
func (s *Store) Close() error {
	if err := s.Unlock(); err != nil {
		return err
	}
	return s.saveIndex()
}

func (s *Store) loadIndex() error {
	f, err := os.Open(filepath.Join(s.baseDir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	return gob.NewDecoder(f).Decode(&s.index)
}

func (s *Store) saveIndex() error {
	s.mu.RLock()
	snapshot := make(map[string]Info, len(s.index))
	for k, v := range s.index {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	indexPath := filepath.Join(s.baseDir, indexFile)
	tempPath := indexPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(f).Encode(snapshot)
	closeErr := f.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, indexPath)
}
