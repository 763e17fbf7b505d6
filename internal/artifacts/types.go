package artifacts

import "time"

// Info describes one IR artifact tracked by the store.
type Info struct {
	// Name is the artifact filename relative to the store directory.
	Name string

	// Size is the artifact size in bytes.
	Size int64

	// ModTime is the artifact's last modification time.
	ModTime time.Time
}

// Stats reports store-wide totals.
type Stats struct {
	// Count is the number of tracked artifacts.
	Count int

	// TotalSize is the combined size in bytes.
	TotalSize int64
}
