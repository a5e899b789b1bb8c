// Package downloader fetches resolved media into the staging directory with
// a bounded worker pool. Acquisition is at-most-once per (item_id,
// media_index): the dedup key is computed before any network call, and files
// already staged are recorded without re-fetching.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"likegrab/pkg/config"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
	"likegrab/pkg/storage"
)

// progressEvery controls how often a progress line is emitted.
const progressEvery = 25

// defaultAllowedHosts is the fixed set of content-delivery hosts media may
// be fetched from. Anything else is rejected before the network is touched.
var defaultAllowedHosts = map[string]bool{
	"pbs.twimg.com":   true,
	"ton.twimg.com":   true,
	"video.twimg.com": true,
}

type job struct {
	record models.Record
	index  int
	url    string
}

type jobResult struct {
	key   models.EntryKey
	entry models.ManifestEntry
	ok    bool
}

// Engine downloads media for resolved records.
type Engine struct {
	staging      *storage.Manager
	httpClient   *http.Client
	workers      int
	skipExisting bool
	allowedHosts map[string]bool
	logger       logger.Logger

	// progress receives the periodic progress lines. It is a diagnostic
	// stream, never mixed with manifest data.
	progress io.Writer
}

// NewEngine creates a download engine over the given staging manager.
func NewEngine(staging *storage.Manager, cfg config.DownloadConfig, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	workers := cfg.ConcurrentDownloads
	if workers < 1 {
		workers = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		staging:      staging,
		httpClient:   &http.Client{Timeout: timeout},
		workers:      workers,
		skipExisting: cfg.SkipExisting,
		allowedHosts: defaultAllowedHosts,
		logger:       log,
		progress:     os.Stderr,
	}
}

// Acquire fetches every media location of every record, deduplicating by
// (item_id, media_index). Workers run concurrently against distinct
// destination files; the returned entries follow input record order then
// media index order so repeated runs produce identical manifests.
func (e *Engine) Acquire(ctx context.Context, records []models.Record) []models.ManifestEntry {
	jobs := e.buildJobs(records)
	if len(jobs) == 0 {
		return []models.ManifestEntry{}
	}

	jobCh := make(chan job)
	resultCh := make(chan jobResult, len(jobs))
	var wg sync.WaitGroup
	var processed atomic.Int64
	total := len(jobs)

	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				res := e.process(ctx, j)
				n := processed.Add(1)
				if n%progressEvery == 1 || n == int64(total) {
					fmt.Fprintf(e.progress, "  downloading %d/%d...\n", n, total)
				}
				resultCh <- res
			}
		}()
	}

	// Feed jobs; stop issuing new ones once the run is cancelled, but let
	// in-flight fetches finish cleanly.
feed:
	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobCh)
	wg.Wait()
	close(resultCh)

	byKey := make(map[models.EntryKey]models.ManifestEntry, len(jobs))
	for res := range resultCh {
		if res.ok {
			byKey[res.key] = res.entry
		}
	}

	// Manifest assembly happens only after all workers complete, in the
	// deterministic job order.
	entries := make([]models.ManifestEntry, 0, len(byKey))
	for _, j := range jobs {
		key := models.EntryKey{ItemID: j.record.ItemID, MediaIndex: j.index}
		if entry, ok := byKey[key]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// buildJobs flattens records into per-media jobs, computing the dedup key
// before any network activity. The first occurrence of a key wins.
func (e *Engine) buildJobs(records []models.Record) []job {
	var jobs []job
	seen := make(map[models.EntryKey]bool)
	for _, rec := range records {
		if rec.ItemID == "" || len(rec.MediaLocations) == 0 {
			continue
		}
		for index, loc := range rec.MediaLocations {
			key := models.EntryKey{ItemID: rec.ItemID, MediaIndex: index}
			if seen[key] {
				continue
			}
			seen[key] = true
			jobs = append(jobs, job{record: rec, index: index, url: loc})
		}
	}
	return jobs
}

// process handles one media item: idempotent skip, allowlist check, fetch.
func (e *Engine) process(ctx context.Context, j job) jobResult {
	key := models.EntryKey{ItemID: j.record.ItemID, MediaIndex: j.index}
	res := jobResult{key: key}

	ext := ExtensionFromURL(j.url)

	if e.skipExisting {
		if path, ok := e.staging.ExistingPath(j.record.ItemID, j.index); ok {
			res.entry = models.EntryFor(j.record, j.index, path)
			res.ok = true
			return res
		}
	}

	if !e.allowed(j.url) {
		e.logger.WarnWithFields("blocked download from disallowed location", map[string]interface{}{
			"item_id": j.record.ItemID,
			"url":     j.url,
		})
		return res
	}

	path, err := e.fetch(ctx, j.url, j.record.ItemID, j.index, ext)
	if err != nil {
		e.logger.WarnWithFields("download failed", map[string]interface{}{
			"item_id": j.record.ItemID,
			"index":   j.index,
			"url":     j.url,
			"error":   err.Error(),
		})
		return res
	}

	res.entry = models.EntryFor(j.record, j.index, path)
	res.ok = true
	return res
}

// allowed reports whether the media location may be fetched: http/https
// scheme and a host on the allowlist. This defends against local-file and
// internal-network redirection.
func (e *Engine) allowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return e.allowedHosts[u.Hostname()]
}

// fetch streams the media to staging. Content is written incrementally so
// large media never sits whole in memory; a failed fetch leaves any
// pre-existing file untouched.
func (e *Engine) fetch(ctx context.Context, rawURL, itemID string, index int, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "likegrab/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return e.staging.Save(resp.Body, itemID, index, ext)
}

// ExtensionFromURL infers a file extension from the URL path. Recognized
// image extensions pass through (jpeg normalizes to jpg); anything else
// defaults to jpg.
func ExtensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "jpg"
	}
	path := u.Path
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return "jpg"
	}
	switch strings.ToLower(path[dot+1:]) {
	case "jpeg", "jpg":
		return "jpg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		return "jpg"
	}
}
