package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"likegrab/pkg/models"
)

func TestMergeDeduplicates(t *testing.T) {
	direct := []models.ManifestEntry{
		{ItemID: "100", MediaIndex: 0, Path: "downloads/100_0.jpg", Provenance: "scrape"},
	}
	cdn := []models.ManifestEntry{
		{ItemID: "100", MediaIndex: 0, Path: "downloads/100_0.png", Provenance: "api_resolved"},
		{ItemID: "101", MediaIndex: 0, Path: "downloads/101_0.jpg", Provenance: "api_resolved"},
	}

	merged := Merge(direct, cdn)
	if len(merged) != 2 {
		t.Fatalf("Expected 2 entries after merge, got %d", len(merged))
	}
	// The direct-download set was passed first, so it wins the collision.
	if merged[0].Provenance != "scrape" {
		t.Errorf("Expected first set to win for duplicate key, got provenance %q", merged[0].Provenance)
	}
	if merged[1].ItemID != "101" {
		t.Errorf("Expected non-colliding entry to survive, got %+v", merged[1])
	}
}

func TestMergeWithinOneSet(t *testing.T) {
	set := []models.ManifestEntry{
		{ItemID: "100", MediaIndex: 0, Path: "a.jpg"},
		{ItemID: "100", MediaIndex: 1, Path: "b.jpg"},
		{ItemID: "100", MediaIndex: 0, Path: "c.jpg"},
	}

	merged := Merge(set)
	if len(merged) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(merged))
	}
	if merged[0].Path != "a.jpg" {
		t.Errorf("Expected first occurrence to win, got %q", merged[0].Path)
	}
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil, []models.ManifestEntry{})
	if merged == nil {
		t.Fatal("Expected empty slice, not nil")
	}
	if len(merged) != 0 {
		t.Errorf("Expected 0 entries, got %d", len(merged))
	}
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "manifest.json")
	entries := []models.ManifestEntry{
		{ItemID: "100", MediaIndex: 0, Path: "downloads/100_0.jpg", Author: "alice", Date: "2024-03-01", Provenance: "twikit"},
		{ItemID: "101", MediaIndex: 1, Path: "downloads/101_1.png", Author: "bob", Provenance: "scrape"},
	}

	if err := Write(path, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(loaded))
	}
	if loaded[0] != entries[0] || loaded[1] != entries[1] {
		t.Errorf("Roundtrip mismatch: %+v", loaded)
	}
}

func TestWriteNilProducesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := Write(path, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", string(data))
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := Write(path, []models.ManifestEntry{{ItemID: "old", MediaIndex: 0}}); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, []models.ManifestEntry{{ItemID: "new", MediaIndex: 0}}); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ItemID != "new" {
		t.Errorf("Expected replacement to win, got %+v", loaded)
	}

	// No temp files left behind.
	dirEntries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(dirEntries) != 1 {
		t.Errorf("Expected only the manifest in the directory, found %d entries", len(dirEntries))
	}
}

func TestLoadMissingFile(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Expected missing manifest to load as empty, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected 0 entries, got %d", len(entries))
	}
}
