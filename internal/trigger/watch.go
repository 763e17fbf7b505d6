package trigger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/gitcha"
)

// notebookGlobs are the file names gitcha scans for when seeding a watch.
var notebookGlobs = []string{"*.ipynb", "requirements.txt"}

// debounceWindow coalesces bursts of filesystem events. Editors often write
// a file several times in quick succession.
const debounceWindow = 500 * time.Millisecond

// Watcher re-runs the pipeline when watched files change.
type Watcher struct {
	root     string
	filter   *Filter
	onChange func(paths []string)

	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over root. onChange receives the batch of
// matching paths after each debounce window.
func NewWatcher(root string, filter *Filter, onChange func(paths []string)) (*Watcher, error) {
	if filter == nil {
		filter = NewFilter(nil)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		filter:   filter,
		onChange: onChange,
		watcher:  fsw,
	}

	if err := w.addDirs(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Scan enumerates files under the root that the filter matches, respecting
// gitignore rules.
func (w *Watcher) Scan() ([]string, error) {
	ch, err := gitcha.FindFilesExcept(w.root, notebookGlobs, nil)
	if err != nil {
		return nil, err
	}

	var found []string
	for res := range ch {
		rel, err := filepath.Rel(w.root, res.Path)
		if err != nil {
			continue
		}
		if w.filter.Match(rel) {
			found = append(found, filepath.ToSlash(rel))
		}
	}
	return found, nil
}

// addDirs registers every directory under the root. fsnotify watches are
// per-directory, not recursive.
func (w *Watcher) addDirs() error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name == ".git" || name == "node_modules" {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Error("error adding dir to fsnotify watcher", "dir", path, "error", err)
			return err
		}
		return nil
	})
}

// Run processes filesystem events until the context is cancelled. Matching
// events within the debounce window are delivered as one batch.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info("fsnotify watching", "root", w.root)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		fire = nil
		if len(paths) > 0 && w.onChange != nil {
			w.onChange(w.filter.Matching(paths))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}

			// New directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						log.Error("error watching new dir", "dir", event.Name, "error", err)
					}
					continue
				}
			}

			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			if !w.filter.Match(rel) {
				continue
			}

			log.Debug("fsnotify event", "file", rel, "event", event.Op)
			pending[filepath.ToSlash(rel)] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
			fire = timer.C

		case <-fire:
			flush()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "root", w.root, "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
