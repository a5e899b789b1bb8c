// Package manifest reads, merges and atomically writes the output manifest.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"likegrab/pkg/models"
)

// Merge combines entry sets into one list, deduplicating by
// (item_id, media_index) and keeping the first occurrence. Callers pass sets
// in precedence order: direct-download sources before CDN downloads, since
// the former already represent a completed fetch.
func Merge(sets ...[]models.ManifestEntry) []models.ManifestEntry {
	merged := make([]models.ManifestEntry, 0)
	seen := make(map[models.EntryKey]bool)
	for _, set := range sets {
		for _, entry := range set {
			key := entry.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, entry)
		}
	}
	return merged
}

// Write persists entries to path atomically: the JSON is written to a temp
// file in the same directory and renamed over the target, so concurrent
// readers never see a half-written manifest. An empty entry list produces a
// valid empty JSON array.
func Write(path string, entries []models.ManifestEntry) error {
	if entries == nil {
		entries = []models.ManifestEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// Load reads a manifest file. A missing file yields an empty list.
func Load(path string) ([]models.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []models.ManifestEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var entries []models.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return entries, nil
}
