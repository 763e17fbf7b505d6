package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// setupLog configures the global logger. With ANIMATEKIT_LOGFILE set, debug
// logs go to a file under the user cache dir; otherwise logging goes to
// stderr at the configured level.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	if os.Getenv("ANIMATEKIT_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
	}

	if os.Getenv("ANIMATEKIT_LOGFILE") == "" {
		return func() error { return nil }, nil
	}

	scope := gap.NewScope(gap.User, "animatekit")
	dir, err := scope.CacheDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "animatekit.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}
