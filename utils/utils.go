// Package utils provides small helpers shared across the CLI.
package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and environment variables in a path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		path = s
	}
	return os.ExpandEnv(path)
}

// IsNotebookFile reports whether the path looks like a notebook.
func IsNotebookFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ipynb")
}
