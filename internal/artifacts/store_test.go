package artifacts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_WriteAndExists(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if store.Exists("unet.xml") {
		t.Error("artifact reported present before write")
	}

	if err := store.Write("unet.xml", []byte("ir-bytes")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if !store.Exists("unet.xml") {
		t.Error("artifact missing after write")
	}

	data, err := os.ReadFile(store.Path("unet.xml"))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "ir-bytes" {
		t.Errorf("artifact content = %q", data)
	}
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Write("a.xml", []byte("a")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestStore_RefreshPicksUpExternalWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	// The converter writes artifacts directly, bypassing the store.
	if err := os.WriteFile(filepath.Join(dir, "pose_guider.xml"), []byte("ir"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	infos := store.List()
	if len(infos) != 1 || infos[0].Name != "pose_guider.xml" {
		t.Errorf("List = %+v", infos)
	}
}

func TestStore_RefreshIgnoresBookkeepingFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Write("x.xml", []byte("ir")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "partial.xml.tmp"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	for _, info := range store.List() {
		if info.Name != "x.xml" {
			t.Errorf("bookkeeping file tracked: %s", info.Name)
		}
	}
}

func TestStore_RemoveAndStats(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	store.Write("a.xml", make([]byte, 10))
	store.Write("b.xml", make([]byte, 30))

	stats := store.Stats()
	if stats.Count != 2 || stats.TotalSize != 40 {
		t.Errorf("Stats = %+v, want 2 artifacts / 40 bytes", stats)
	}

	if err := store.Remove("a.xml"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if store.Exists("a.xml") {
		t.Error("artifact exists after Remove")
	}

	// Removing a missing artifact is not an error.
	if err := store.Remove("a.xml"); err != nil {
		t.Errorf("double Remove failed: %v", err)
	}
}

func TestStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	store.Write("kept.xml", []byte("ir"))
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if !reopened.Exists("kept.xml") {
		t.Error("artifact lost across reopen")
	}
	if got := reopened.Stats().Count; got != 1 {
		t.Errorf("Count after reopen = %d, want 1", got)
	}
}

func TestStore_LockUnlock(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := store.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	// Unlock when unlocked is safe.
	if err := store.Unlock(); err != nil {
		t.Errorf("second Unlock failed: %v", err)
	}
}

func TestStore_Clear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	store.Write("a.xml", []byte("a"))
	store.Write("b.xml", []byte("b"))

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.Exists("a.xml") || store.Exists("b.xml") {
		t.Error("artifacts survive Clear")
	}
	if got := store.Stats().Count; got != 0 {
		t.Errorf("Count after Clear = %d, want 0", got)
	}
}
