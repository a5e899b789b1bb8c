// Package storage manages the staging directory that holds downloaded media.
// Files are named deterministically as {item_id}_{media_index}.{ext} so a run
// pointed at an existing staging directory resumes instead of re-fetching.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"likegrab/pkg/errors"
)

// imageExtensions is ordered; ExistingPath tries extensions in this order so
// the returned path is stable when a pair has files under more than one.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

func isImageExtension(ext string) bool {
	for _, e := range imageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Manager owns the staging directory. It tracks which (item, index) pairs
// already have a file on disk and performs atomic writes.
type Manager struct {
	dir      string
	existing map[string]bool // "{item_id}_{index}" -> present
	mu       sync.RWMutex
}

// NewManager creates the staging directory if needed and scans it for
// already-downloaded files.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	m := &Manager{
		dir:      dir,
		existing: make(map[string]bool),
	}
	if err := m.scanExisting(); err != nil {
		return nil, fmt.Errorf("failed to scan staging directory: %w", err)
	}
	return m, nil
}

// scanExisting records every {item_id}_{index}.{ext} file already present.
func (m *Manager) scanExisting() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !isImageExtension(strings.ToLower(ext)) {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		idx := strings.LastIndex(stem, "_")
		if idx <= 0 {
			continue
		}
		if _, err := strconv.Atoi(stem[idx+1:]); err != nil {
			continue
		}
		m.existing[stem] = true
	}
	return nil
}

// validateItemID rejects identifiers that could escape the staging
// directory. Containment is enforced here, at the lowest layer.
func validateItemID(itemID string) error {
	if itemID == "" {
		return errors.New(errors.ErrorTypeValidation, "empty item id")
	}
	if strings.ContainsAny(itemID, "/\\") || strings.Contains(itemID, "..") {
		return errors.Newf(errors.ErrorTypeValidation, "item id %q would escape staging directory", itemID)
	}
	return nil
}

func stemKey(itemID string, index int) string {
	return fmt.Sprintf("%s_%d", itemID, index)
}

// Path returns the deterministic staging path for a media item.
func (m *Manager) Path(itemID string, index int, ext string) (string, error) {
	if err := validateItemID(itemID); err != nil {
		return "", err
	}
	return filepath.Join(m.dir, fmt.Sprintf("%s.%s", stemKey(itemID, index), ext)), nil
}

// Exists reports whether a file for the (item, index) pair is already in
// staging, regardless of extension.
func (m *Manager) Exists(itemID string, index int) bool {
	m.mu.RLock()
	present := m.existing[stemKey(itemID, index)]
	m.mu.RUnlock()
	return present
}

// ExistingPath returns the on-disk path for an already-staged pair, trying
// each known extension.
func (m *Manager) ExistingPath(itemID string, index int) (string, bool) {
	if !m.Exists(itemID, index) {
		return "", false
	}
	stem := stemKey(itemID, index)
	for _, ext := range imageExtensions {
		p := filepath.Join(m.dir, stem+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Save streams content to the staging path for (item, index). The write goes
// through a temp file and an atomic rename; a failed write never clobbers a
// pre-existing file.
func (m *Manager) Save(r io.Reader, itemID string, index int, ext string) (string, error) {
	dest, err := m.Path(itemID, index, ext)
	if err != nil {
		return "", err
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write media: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize media file: %w", err)
	}

	m.mu.Lock()
	m.existing[stemKey(itemID, index)] = true
	m.mu.Unlock()

	return dest, nil
}

// Dir returns the staging directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// Count returns the number of staged (item, index) pairs.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.existing)
}
