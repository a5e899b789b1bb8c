package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"likegrab/pkg/config"
	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
)

func TestScrapeSetupMissingBinary(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewScrapeStrategy(cfg, nil)
	s.lookPath = func(file string) (string, error) {
		return "", fmt.Errorf("executable file not found in $PATH")
	}

	err := s.Setup(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeSetup))
}

func TestScrapeSetupBinaryPresent(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewScrapeStrategy(cfg, nil)
	s.lookPath = func(file string) (string, error) {
		assert.Equal(t, "gallery-dl", file)
		return "/usr/bin/gallery-dl", nil
	}

	assert.NoError(t, s.Setup(context.Background()))
}

func TestItemURL(t *testing.T) {
	assert.Equal(t, "https://x.com/i/web/status/100", itemURL("100"))
}

func TestCollectEntries(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	write("100_1.jpg", "img")
	write("100_1.jpg.json", `{
		"author": {"name": "Alice A", "screen_name": "alice"},
		"date": "2024-03-01 12:00:00",
		"content": "hello from the sidecar"
	}`)
	write("100_2.png", "img")
	write("200_1.webp", "img")
	write("300_1.jpg", "img")
	write("junk.txt", "not media")
	write("100_0.jpg", "zero index is not a tool output")
	write("nounderscore.jpg", "img")

	byID := map[string]models.Record{
		"100": {ItemID: "100", Author: "fallback", Date: "2023-01-01", Caption: "original"},
		"200": {ItemID: "200", Author: "bob"},
	}

	entries := collectEntries(dir, byID, logger.GetLogger())
	require.Len(t, entries, 3, "only requested items with a valid 1-based index count")

	first := entries[0]
	assert.Equal(t, "100", first.ItemID)
	assert.Equal(t, 0, first.MediaIndex, "the tool's 1-based index maps to 0-based")
	assert.Equal(t, "Alice A", first.Author, "sidecar metadata wins")
	assert.Equal(t, "2024-03-01", first.Date)
	assert.Equal(t, "hello from the sidecar", first.Caption)
	assert.Equal(t, "scrape", first.Provenance)
	assert.Equal(t, filepath.Join(dir, "100_1.jpg"), first.Path)

	second := entries[1]
	assert.Equal(t, "100", second.ItemID)
	assert.Equal(t, 1, second.MediaIndex)
	assert.Equal(t, "fallback", second.Author, "without a sidecar the record metadata applies")
	assert.Equal(t, "original", second.Caption)

	third := entries[2]
	assert.Equal(t, "200", third.ItemID)
	assert.Equal(t, "bob", third.Author)
}

func TestCollectEntriesScreenNameFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "100_1.jpg"), []byte("img"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "100_1.jpg.json"),
		[]byte(`{"user": {"screen_name": "alice"}}`), 0644))

	byID := map[string]models.Record{"100": {ItemID: "100"}}
	entries := collectEntries(dir, byID, logger.GetLogger())
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Author)
}

func TestCollectEntriesUnknownAuthor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "100_1.jpg"), []byte("img"), 0644))

	byID := map[string]models.Record{"100": {ItemID: "100"}}
	entries := collectEntries(dir, byID, logger.GetLogger())
	require.Len(t, entries, 1)
	assert.Equal(t, "unknown", entries[0].Author)
}

func TestScrapeResolveMarksAllAttempted(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Download.StagingDir = t.TempDir()
	s := NewScrapeStrategy(cfg, nil)
	// A binary that exits immediately keeps the test hermetic; the strategy
	// treats a failed run as zero entries, not an error.
	s.binary = "false"

	result, err := s.Resolve(context.Background(), idRecords("100", "101"))
	require.NoError(t, err)
	assert.Len(t, result.Attempted, 2)
	assert.Empty(t, result.Entries)
}

func TestTailLines(t *testing.T) {
	lines := tailLines("a\nb\nc\nd\ne\nf\ng", 5)
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, lines)

	lines = tailLines("only", 5)
	assert.Equal(t, []string{"only"}, lines)
}
