package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"likegrab/pkg/config"
	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
)

const (
	scrapeProvenance  = "scrape"
	scrapeBaseTimeout = 300 * time.Second
	scrapePerItem     = 15 * time.Second
)

var scrapeImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ScrapeStrategy resolves items by shelling out to gallery-dl with browser
// cookies. Unlike the other strategies it downloads media directly into the
// staging directory as a side effect; its results carry manifest entries
// instead of resolved URLs, and those entries bypass the download engine.
// The source browser must be closed during the run because Chromium locks
// its cookie database while open.
type ScrapeStrategy struct {
	binary  string
	browser string
	staging string
	logger  logger.Logger

	// lookPath is swappable for tests.
	lookPath func(file string) (string, error)
}

// NewScrapeStrategy builds the gallery-dl strategy.
func NewScrapeStrategy(cfg *config.Config, log logger.Logger) *ScrapeStrategy {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ScrapeStrategy{
		binary:   cfg.Scrape.Binary,
		browser:  cfg.Scrape.Browser,
		staging:  cfg.Download.StagingDir,
		logger:   log.WithField("strategy", "scrape"),
		lookPath: exec.LookPath,
	}
}

// Name implements Strategy.
func (s *ScrapeStrategy) Name() string { return "scrape" }

// Setup verifies the external resolver tool exists. A missing executable is
// fatal for this stage only.
func (s *ScrapeStrategy) Setup(ctx context.Context) error {
	if _, err := s.lookPath(s.binary); err != nil {
		return errors.Wrap(errors.ErrorTypeSetup, err,
			fmt.Sprintf("%s not found on PATH", s.binary))
	}
	return nil
}

// Resolve feeds item URLs to gallery-dl and recovers manifest entries from
// the staging directory afterwards. Every offered item is marked attempted
// whether or not the tool succeeded; a timeout resolves nothing but still
// collects whatever was downloaded before the deadline.
func (s *ScrapeStrategy) Resolve(ctx context.Context, batch []models.Record) (*Result, error) {
	result := NewResult()
	if len(batch) == 0 {
		return result, nil
	}

	byID := make(map[string]models.Record, len(batch))
	urls := make([]string, 0, len(batch))
	for _, rec := range batch {
		result.MarkAttempted(rec.ItemID)
		byID[rec.ItemID] = rec
		urls = append(urls, itemURL(rec.ItemID))
	}

	if err := os.MkdirAll(s.staging, 0755); err != nil {
		return result, errors.Wrap(errors.ErrorTypeSetup, err, "failed to create staging directory")
	}

	urlFile := filepath.Join(s.staging, "_gdl_urls.txt")
	if err := os.WriteFile(urlFile, []byte(strings.Join(urls, "\n")+"\n"), 0644); err != nil {
		return result, errors.Wrap(errors.ErrorTypeSetup, err, "failed to write url list")
	}
	defer os.Remove(urlFile)

	configFile := filepath.Join(s.staging, "_gdl_config.json")
	if err := os.WriteFile(configFile, gdlConfig(), 0644); err != nil {
		return result, errors.Wrap(errors.ErrorTypeSetup, err, "failed to write gallery-dl config")
	}
	defer os.Remove(configFile)

	deadline := scrapeBaseTimeout + time.Duration(len(batch))*scrapePerItem
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.binary,
		"--cookies-from-browser", s.browser,
		"--dest", s.staging,
		"--config", configFile,
		"--input-file", urlFile,
	)

	s.logger.InfoWithFields("running external resolver", map[string]interface{}{
		"items":   len(batch),
		"browser": s.browser,
		"timeout": deadline,
	})

	output, err := cmd.CombinedOutput()
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		s.logger.WarnWithFields("external resolver timed out", map[string]interface{}{
			"timeout": deadline,
		})
	case err != nil:
		lines := tailLines(string(output), 5)
		s.logger.WarnWithFields("external resolver exited with error", map[string]interface{}{
			"error":  err.Error(),
			"output": lines,
		})
	}

	result.Entries = collectEntries(s.staging, byID, s.logger)

	s.logger.InfoWithFields("external resolver finished", map[string]interface{}{
		"entries": len(result.Entries),
	})
	return result, nil
}

// itemURL builds the status URL gallery-dl resolves.
func itemURL(itemID string) string {
	return "https://x.com/i/web/status/" + itemID
}

// gdlConfig returns a minimal gallery-dl config: flat output directory, a
// filename template carrying item id and index, and the metadata
// postprocessor so author/date/caption can be read back after the run.
func gdlConfig() []byte {
	cfg := map[string]interface{}{
		"extractor": map[string]interface{}{
			"twitter": map[string]interface{}{
				"filename":  "{tweet_id}_{num}.{extension}",
				"directory": []string{},
				"postprocessors": []map[string]string{
					{"name": "metadata", "mode": "json"},
				},
			},
		},
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return data
}

// sidecarMeta is the shape of gallery-dl's metadata postprocessor output,
// reduced to the fields the manifest needs.
type sidecarMeta struct {
	Author  *sidecarAuthor `json:"author"`
	User    *sidecarAuthor `json:"user"`
	Date    string         `json:"date"`
	Content string         `json:"content"`
}

type sidecarAuthor struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// collectEntries scans the staging directory for files the external resolver
// produced for the requested items and builds manifest entries from their
// metadata sidecars, falling back to the original record for missing fields.
// The tool's index is 1-based; manifest indices are 0-based.
func collectEntries(dir string, byID map[string]models.Record, log logger.Logger) []models.ManifestEntry {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).Warn("failed to scan staging directory")
		return nil
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	var entries []models.ManifestEntry
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if !scrapeImageExts[ext] {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		cut := strings.LastIndex(stem, "_")
		if cut <= 0 {
			continue
		}
		itemID := stem[:cut]
		num, err := strconv.Atoi(stem[cut+1:])
		if err != nil || num < 1 {
			continue
		}
		orig, ok := byID[itemID]
		if !ok {
			continue
		}

		entry := models.ManifestEntry{
			ItemID:     itemID,
			MediaIndex: num - 1,
			Path:       filepath.Join(dir, name),
			Author:     orig.Author,
			Date:       orig.Date,
			Caption:    orig.Caption,
			Provenance: scrapeProvenance,
		}

		metaPath := filepath.Join(dir, name+".json")
		if data, err := os.ReadFile(metaPath); err == nil {
			var meta sidecarMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				log.WarnWithFields("unreadable metadata sidecar", map[string]interface{}{
					"path":  metaPath,
					"error": err.Error(),
				})
			} else {
				author := meta.Author
				if author == nil {
					author = meta.User
				}
				if author != nil {
					if author.Name != "" {
						entry.Author = author.Name
					} else if author.ScreenName != "" {
						entry.Author = author.ScreenName
					}
				}
				if len(meta.Date) >= 10 {
					entry.Date = meta.Date[:10]
				} else if meta.Date != "" {
					entry.Date = meta.Date
				}
				if meta.Content != "" {
					entry.Caption = meta.Content
				}
			}
		}

		if entry.Author == "" {
			entry.Author = "unknown"
		}
		entries = append(entries, entry)
	}
	return entries
}

func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
