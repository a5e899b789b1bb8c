package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// Record is the canonical unit of work: one liked item, possibly with media
// already located. A record with no media locations is unresolved; resolution
// only ever adds locations, it never removes them.
type Record struct {
	ItemID         string   `json:"item_id"`
	Author         string   `json:"author"`
	Date           string   `json:"date"`
	MediaLocations []string `json:"media_locations"`
	Caption        string   `json:"caption"`
	Provenance     string   `json:"provenance"`
}

// Resolved reports whether the record carries media locations.
func (r Record) Resolved() bool {
	return len(r.MediaLocations) > 0
}

// ManifestEntry describes one downloaded media file. Entries are keyed by
// (item_id, media_index); the key is unique across the manifest lifetime,
// including repeated runs against the same staging directory.
type ManifestEntry struct {
	ItemID     string `json:"item_id"`
	MediaIndex int    `json:"media_index"`
	Path       string `json:"path"`
	Author     string `json:"author"`
	Date       string `json:"date"`
	Caption    string `json:"caption"`
	Provenance string `json:"provenance"`
}

// EntryKey identifies a manifest entry.
type EntryKey struct {
	ItemID     string
	MediaIndex int
}

// Key returns the entry's identity.
func (e ManifestEntry) Key() EntryKey {
	return EntryKey{ItemID: e.ItemID, MediaIndex: e.MediaIndex}
}

// EntryFor builds a manifest entry copying the owning record's metadata.
func EntryFor(rec Record, index int, path string) ManifestEntry {
	return ManifestEntry{
		ItemID:     rec.ItemID,
		MediaIndex: index,
		Path:       path,
		Author:     rec.Author,
		Date:       rec.Date,
		Caption:    rec.Caption,
		Provenance: rec.Provenance,
	}
}

// ValidateRecord checks a record at the input boundary and applies defaults.
// Records without an item ID are rejected.
func ValidateRecord(r *Record) error {
	if r.ItemID == "" {
		return fmt.Errorf("record missing item_id")
	}
	if r.Author == "" {
		r.Author = "unknown"
	}
	return nil
}

// LoadRecords reads a JSON array of records from path, validating each entry.
// Malformed records are dropped and counted rather than failing the batch;
// the second return value is the number of rejected records.
func LoadRecords(path string) ([]Record, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read records file: %w", err)
	}

	var raw []Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse records file: %w", err)
	}

	records := make([]Record, 0, len(raw))
	rejected := 0
	seen := make(map[string]bool, len(raw))
	for i := range raw {
		if err := ValidateRecord(&raw[i]); err != nil {
			rejected++
			continue
		}
		// Dedupe by item ID across input sources; first occurrence wins.
		if seen[raw[i].ItemID] {
			continue
		}
		seen[raw[i].ItemID] = true
		records = append(records, raw[i])
	}
	return records, rejected, nil
}

// Partition splits records into those that already carry media locations and
// those that are identifier-only.
func Partition(records []Record) (resolved, unresolved []Record) {
	for _, r := range records {
		if r.Resolved() {
			resolved = append(resolved, r)
		} else {
			unresolved = append(unresolved, r)
		}
	}
	return resolved, unresolved
}
