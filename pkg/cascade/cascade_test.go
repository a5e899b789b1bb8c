package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"likegrab/pkg/errors"
	"likegrab/pkg/models"
	"likegrab/pkg/resolver"
)

// fakeStrategy resolves a fixed set of item IDs and records what it was
// offered.
type fakeStrategy struct {
	name     string
	setupErr error
	resolves map[string]bool
	entries  []models.ManifestEntry
	offered  [][]string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Setup(ctx context.Context) error { return f.setupErr }

func (f *fakeStrategy) Resolve(ctx context.Context, batch []models.Record) (*resolver.Result, error) {
	var ids []string
	result := resolver.NewResult()
	for _, rec := range batch {
		ids = append(ids, rec.ItemID)
		result.MarkAttempted(rec.ItemID)
		if f.resolves[rec.ItemID] {
			result.Resolved = append(result.Resolved, models.Record{
				ItemID:         rec.ItemID,
				Author:         "author",
				MediaLocations: []string{"https://pbs.twimg.com/media/" + rec.ItemID + ".jpg"},
				Provenance:     f.name,
			})
		}
	}
	result.Entries = f.entries
	f.offered = append(f.offered, ids)
	return result, nil
}

func records(ids ...string) []models.Record {
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Record{ItemID: id})
	}
	return out
}

func TestCascadeResolvesAcrossStages(t *testing.T) {
	first := &fakeStrategy{name: "first", resolves: map[string]bool{"100": true}}
	second := &fakeStrategy{name: "second", resolves: map[string]bool{"101": true}}

	c := New([]resolver.Strategy{first, second}, 0, nil)
	outcome, err := c.Run(context.Background(), records("100", "101", "102"))
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.Report.Offered)
	assert.Equal(t, 1, outcome.Report.ResolvedBy["first"])
	assert.Equal(t, 1, outcome.Report.ResolvedBy["second"])
	assert.Equal(t, 1, outcome.Report.Exhausted)

	require.Len(t, first.offered, 1)
	assert.Equal(t, []string{"100", "101", "102"}, first.offered[0])
	require.Len(t, second.offered, 1)
	assert.Equal(t, []string{"101", "102"}, second.offered[0],
		"a resolved item is never offered to a later stage")

	require.Len(t, outcome.Resolved, 2)
	assert.Equal(t, ResolvedBy("first"), outcome.States["100"])
	assert.Equal(t, ResolvedBy("second"), outcome.States["101"])
	assert.Equal(t, StateExhausted, outcome.States["102"])
}

func TestCascadeSkipsFailedSetup(t *testing.T) {
	skipped := &fakeStrategy{
		name:     "skipped",
		setupErr: errors.New(errors.ErrorTypeAuthUnavailable, "no credentials"),
		resolves: map[string]bool{"100": true},
	}
	working := &fakeStrategy{name: "working", resolves: map[string]bool{"100": true}}

	c := New([]resolver.Strategy{skipped, working}, 0, nil)
	outcome, err := c.Run(context.Background(), records("100"))
	require.NoError(t, err)

	assert.Empty(t, skipped.offered, "a skipped stage never sees the population")
	assert.Equal(t, []string{"skipped"}, outcome.Report.Skipped)
	assert.Equal(t, 1, outcome.Report.ResolvedBy["working"])
	assert.Zero(t, outcome.Report.Exhausted)
}

func TestCascadeAllStagesSkipped(t *testing.T) {
	setupErr := errors.New(errors.ErrorTypeSetup, "binary missing")
	a := &fakeStrategy{name: "a", setupErr: setupErr}
	b := &fakeStrategy{name: "b", setupErr: setupErr}

	c := New([]resolver.Strategy{a, b}, 0, nil)
	outcome, err := c.Run(context.Background(), records("100", "101"))
	require.NoError(t, err, "skipping every stage is not fatal for the run")

	assert.Equal(t, 2, outcome.Report.Exhausted)
	assert.Equal(t, StateExhausted, outcome.States["100"])
	assert.Equal(t, StateExhausted, outcome.States["101"])
}

func TestCascadeExpensiveLimit(t *testing.T) {
	cheap := &fakeStrategy{name: "cheap"}
	expensive := &fakeStrategy{name: "expensive", resolves: map[string]bool{"100": true, "101": true, "102": true}}

	c := New([]resolver.Strategy{cheap, expensive}, 2, nil)
	outcome, err := c.Run(context.Background(), records("100", "101", "102"))
	require.NoError(t, err)

	require.Len(t, cheap.offered, 1)
	assert.Len(t, cheap.offered[0], 3, "the cap applies only to the final strategy")
	require.Len(t, expensive.offered, 1)
	assert.Len(t, expensive.offered[0], 2)

	assert.Equal(t, 2, outcome.Report.ResolvedBy["expensive"])
	assert.Equal(t, 1, outcome.Report.Exhausted, "held-back items count as exhausted this run")
}

func TestCascadeDirectEntriesCountAsResolved(t *testing.T) {
	direct := &fakeStrategy{
		name: "direct",
		entries: []models.ManifestEntry{
			{ItemID: "100", MediaIndex: 0, Path: "downloads/100_1.jpg", Provenance: "direct"},
		},
	}

	c := New([]resolver.Strategy{direct}, 0, nil)
	outcome, err := c.Run(context.Background(), records("100", "101"))
	require.NoError(t, err)

	assert.Empty(t, outcome.Resolved, "a direct entry needs no download")
	require.Len(t, outcome.Entries, 1)
	assert.Equal(t, ResolvedBy("direct"), outcome.States["100"])
	assert.Equal(t, 1, outcome.Report.ResolvedBy["direct"])
	assert.Equal(t, 1, outcome.Report.Exhausted)
	assert.Equal(t, StateExhausted, outcome.States["101"])
}

func TestCascadeDropsUnresolvedRecords(t *testing.T) {
	// A strategy handing back a record without media locations is a bug on
	// its side; the cascade must not propagate it.
	bad := &badStrategy{}
	c := New([]resolver.Strategy{bad}, 0, nil)

	outcome, err := c.Run(context.Background(), records("100"))
	require.NoError(t, err)
	assert.Empty(t, outcome.Resolved)
	assert.Equal(t, 1, outcome.Report.Exhausted)
}

type badStrategy struct{}

func (b *badStrategy) Name() string                    { return "bad" }
func (b *badStrategy) Setup(ctx context.Context) error { return nil }
func (b *badStrategy) Resolve(ctx context.Context, batch []models.Record) (*resolver.Result, error) {
	result := resolver.NewResult()
	for _, rec := range batch {
		result.Resolved = append(result.Resolved, models.Record{ItemID: rec.ItemID})
	}
	return result, nil
}

func TestCascadeContextCancellation(t *testing.T) {
	s := &fakeStrategy{name: "s", resolves: map[string]bool{"100": true}}
	c := New([]resolver.Strategy{s}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, records("100"))
	require.Error(t, err)
	assert.Empty(t, s.offered)
}
