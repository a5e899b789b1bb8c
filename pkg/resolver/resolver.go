// Package resolver implements the backend strategies that turn
// identifier-only records into media-bearing records. Strategies share one
// contract so the cascade stays backend-agnostic; adding a backend means
// adding an implementation, not changing the orchestrator.
package resolver

import (
	"context"

	"likegrab/pkg/models"
)

// Result is what one strategy produced for a batch of item IDs.
type Result struct {
	// Resolved holds records that now carry media locations, tagged with
	// the strategy's provenance.
	Resolved []models.Record

	// Attempted marks items the caller must not re-offer to this strategy
	// within the run. It marks "tried", not "succeeded": failed items
	// belong here too, unless the strategy intends to retry them itself.
	Attempted map[string]struct{}

	// Entries holds manifest entries for strategies that download media as
	// a side effect of resolving. These bypass the download engine and are
	// merged ahead of CDN downloads.
	Entries []models.ManifestEntry
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{Attempted: make(map[string]struct{})}
}

// MarkAttempted records items as tried.
func (r *Result) MarkAttempted(ids ...string) {
	for _, id := range ids {
		r.Attempted[id] = struct{}{}
	}
}

// Strategy is one backend-specific resolution procedure.
type Strategy interface {
	// Name identifies the strategy in logs and reports.
	Name() string

	// Setup prepares authentication/session state. An auth_unavailable or
	// setup error means the cascade skips this stage; it is not fatal for
	// the run.
	Setup(ctx context.Context) error

	// Resolve attempts to produce media-bearing records for the given
	// identifier-only records. Per-item failures are reflected in the
	// result, not returned as errors; a returned error abandons the stage.
	Resolve(ctx context.Context, batch []models.Record) (*Result, error)
}
