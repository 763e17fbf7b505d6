package hub

import (
	"errors"
	"strings"
)

// Errors returned by the hub client.
var (
	ErrInvalidRef      = errors.New("invalid checkpoint reference")
	ErrUnknownRef      = errors.New("unknown checkpoint reference")
	ErrHashMismatch    = errors.New("checkpoint file hash mismatch")
	ErrManifestEmpty   = errors.New("checkpoint manifest lists no files")
	ErrManifestInvalid = errors.New("checkpoint manifest entry invalid")
)

// Ref identifies a checkpoint in the model hub, e.g. "moore/animate-anyone".
type Ref struct {
	// Org is the publishing organization.
	Org string

	// Name is the checkpoint name within the organization.
	Name string

	// Revision is an optional revision tag; empty means the default.
	Revision string
}

// String returns the canonical form "org/name" or "org/name@revision".
func (r Ref) String() string {
	s := r.Org + "/" + r.Name
	if r.Revision != "" {
		s += "@" + r.Revision
	}
	return s
}

// ParseRef parses "org/name" or "org/name@revision" into a Ref.
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return Ref{}, ErrInvalidRef
	}

	var revision string
	if idx := strings.Index(s, "@"); idx != -1 {
		revision = s[idx+1:]
		s = s[:idx]
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, ErrInvalidRef
	}

	return Ref{Org: parts[0], Name: parts[1], Revision: revision}, nil
}

// FileEntry describes one file inside a checkpoint manifest.
type FileEntry struct {
	// Path is the file path relative to the checkpoint root.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// SHA256 is the lowercase hex digest of the file contents.
	SHA256 string `json:"sha256"`
}

// Manifest lists the files of one checkpoint revision.
type Manifest struct {
	// Ref is the canonical checkpoint reference.
	Ref string `json:"ref"`

	// Files are the checkpoint's files.
	Files []FileEntry `json:"files"`

	// Metadata holds optional arbitrary registry metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TotalSize returns the combined size of all manifest files.
func (m Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Progress reports download progress during a pull.
type Progress struct {
	// Phase is "manifest", "files" or "done".
	Phase string

	// FilesTotal and FilesCompleted count manifest files.
	FilesTotal     int
	FilesCompleted int

	// BytesTotal and BytesDownloaded track the transfer. Cached files
	// count toward BytesTotal but not BytesDownloaded.
	BytesTotal      int64
	BytesDownloaded int64

	// CurrentFile is the most recently finished file.
	CurrentFile string
}
