package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolved(t *testing.T) {
	unresolved := Record{ItemID: "100"}
	if unresolved.Resolved() {
		t.Error("Expected record without media locations to be unresolved")
	}

	resolved := Record{ItemID: "100", MediaLocations: []string{"https://pbs.twimg.com/media/a.jpg"}}
	if !resolved.Resolved() {
		t.Error("Expected record with media locations to be resolved")
	}
}

func TestValidateRecord(t *testing.T) {
	missing := Record{}
	if err := ValidateRecord(&missing); err == nil {
		t.Error("Expected record without item_id to be rejected")
	}

	rec := Record{ItemID: "100"}
	if err := ValidateRecord(&rec); err != nil {
		t.Fatalf("Expected valid record to pass, got %v", err)
	}
	if rec.Author != "unknown" {
		t.Errorf("Expected missing author to default to unknown, got %q", rec.Author)
	}

	named := Record{ItemID: "101", Author: "alice"}
	if err := ValidateRecord(&named); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if named.Author != "alice" {
		t.Errorf("Expected author to be preserved, got %q", named.Author)
	}
}

func TestLoadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	data := `[
		{"item_id": "100", "author": "alice", "media_locations": ["https://pbs.twimg.com/media/a.jpg"]},
		{"item_id": "", "author": "nobody"},
		{"item_id": "101"},
		{"item_id": "100", "author": "duplicate"}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	records, rejected, err := LoadRecords(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rejected != 1 {
		t.Errorf("Expected 1 rejected record, got %d", rejected)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records after dedup, got %d", len(records))
	}
	if records[0].ItemID != "100" || records[0].Author != "alice" {
		t.Errorf("Expected first occurrence to win the dedup, got %+v", records[0])
	}
	if records[1].Author != "unknown" {
		t.Errorf("Expected defaulted author, got %q", records[1].Author)
	}
}

func TestLoadRecordsMissingFile(t *testing.T) {
	if _, _, err := LoadRecords(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing records file")
	}
}

func TestLoadRecordsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadRecords(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestPartition(t *testing.T) {
	records := []Record{
		{ItemID: "1", MediaLocations: []string{"https://pbs.twimg.com/media/a.jpg"}},
		{ItemID: "2"},
		{ItemID: "3", MediaLocations: []string{"https://pbs.twimg.com/media/b.jpg", "https://pbs.twimg.com/media/c.jpg"}},
		{ItemID: "4"},
	}

	resolved, unresolved := Partition(records)
	if len(resolved) != 2 {
		t.Errorf("Expected 2 resolved records, got %d", len(resolved))
	}
	if len(unresolved) != 2 {
		t.Errorf("Expected 2 unresolved records, got %d", len(unresolved))
	}
	if unresolved[0].ItemID != "2" || unresolved[1].ItemID != "4" {
		t.Error("Expected partition to preserve input order")
	}
}

func TestEntryFor(t *testing.T) {
	rec := Record{
		ItemID:     "100",
		Author:     "alice",
		Date:       "2024-03-01",
		Caption:    "hello",
		Provenance: "api_resolved",
	}

	entry := EntryFor(rec, 2, "downloads/100_2.jpg")
	if entry.Key() != (EntryKey{ItemID: "100", MediaIndex: 2}) {
		t.Errorf("Unexpected entry key: %+v", entry.Key())
	}
	if entry.Path != "downloads/100_2.jpg" || entry.Author != "alice" || entry.Provenance != "api_resolved" {
		t.Errorf("Expected entry to copy record metadata, got %+v", entry)
	}
}
