// Package cascade orchestrates the resolver strategies over the population
// of unresolved records: each stage is offered what the previous stages left
// unresolved, and whatever survives every stage is reported as exhausted,
// never silently dropped.
package cascade

import (
	"context"

	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
	"likegrab/pkg/resolver"
)

// State is the per-run resolution state of one item.
type State string

const (
	StateUnresolved State = "unresolved"
	StateExhausted  State = "exhausted"
	// Resolved items carry "resolved_by:<strategy>".
)

// ResolvedBy returns the state for an item resolved by the named strategy.
func ResolvedBy(strategy string) State {
	return State("resolved_by:" + strategy)
}

// Report summarizes one cascade run.
type Report struct {
	// Offered is the number of identifier-only records that entered the
	// cascade.
	Offered int
	// ResolvedBy counts resolutions per strategy name.
	ResolvedBy map[string]int
	// Exhausted counts items no strategy could resolve.
	Exhausted int
	// Skipped lists strategies whose setup failed.
	Skipped []string
}

// Outcome carries everything the cascade produced.
type Outcome struct {
	// Resolved holds records that now have media locations and should go
	// through the download engine.
	Resolved []models.Record
	// Entries holds manifest entries from strategies that download
	// directly; they bypass the download engine.
	Entries []models.ManifestEntry
	// States maps each offered item ID to its final state.
	States map[string]State
	Report Report
}

// Cascade runs resolver strategies in priority order.
type Cascade struct {
	strategies []resolver.Strategy
	// expensiveLimit caps how many items are offered to the final (most
	// expensive) strategy; 0 means no cap.
	expensiveLimit int
	logger         logger.Logger
}

// New builds a cascade over the given strategies, tried in order.
func New(strategies []resolver.Strategy, expensiveLimit int, log logger.Logger) *Cascade {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Cascade{
		strategies:     strategies,
		expensiveLimit: expensiveLimit,
		logger:         log,
	}
}

// Run offers the unresolved population to each strategy in turn. An item is
// removed from the population the first time any strategy resolves it and is
// never handed to a later strategy. A strategy whose setup fails is skipped;
// its absence only forfeits that stage's chance at resolution.
func (c *Cascade) Run(ctx context.Context, unresolved []models.Record) (*Outcome, error) {
	outcome := &Outcome{
		States: make(map[string]State, len(unresolved)),
	}
	outcome.Report.ResolvedBy = make(map[string]int)
	outcome.Report.Offered = len(unresolved)

	remaining := make([]models.Record, len(unresolved))
	copy(remaining, unresolved)
	for _, rec := range remaining {
		outcome.States[rec.ItemID] = StateUnresolved
	}

	for i, strategy := range c.strategies {
		if len(remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		log := c.logger.WithField("strategy", strategy.Name())

		if err := strategy.Setup(ctx); err != nil {
			switch errors.TypeOf(err) {
			case errors.ErrorTypeAuthUnavailable:
				log.WithError(err).Info("strategy unavailable, skipping stage")
			case errors.ErrorTypeSetup:
				log.WithError(err).Warn("strategy setup failed, skipping stage")
			default:
				log.WithError(err).Warn("strategy setup failed, skipping stage")
			}
			outcome.Report.Skipped = append(outcome.Report.Skipped, strategy.Name())
			continue
		}

		offer := remaining
		if c.expensiveLimit > 0 && i == len(c.strategies)-1 && len(offer) > c.expensiveLimit {
			log.InfoWithFields("capping items offered to final strategy", map[string]interface{}{
				"offered": c.expensiveLimit,
				"held":    len(offer) - c.expensiveLimit,
			})
			offer = offer[:c.expensiveLimit]
		}

		log.InfoWithFields("offering unresolved items", map[string]interface{}{
			"items": len(offer),
		})

		result, err := strategy.Resolve(ctx, offer)
		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			log.WithError(err).Warn("stage abandoned")
		}
		if result == nil {
			continue
		}

		resolvedIDs := make(map[string]bool, len(result.Resolved))
		for _, rec := range result.Resolved {
			if !rec.Resolved() {
				// A strategy must not hand back an unresolved record.
				continue
			}
			if resolvedIDs[rec.ItemID] {
				continue
			}
			resolvedIDs[rec.ItemID] = true
			outcome.Resolved = append(outcome.Resolved, rec)
			outcome.States[rec.ItemID] = ResolvedBy(strategy.Name())
		}
		// Items with direct-download entries count as resolved too.
		for _, entry := range result.Entries {
			if !resolvedIDs[entry.ItemID] {
				resolvedIDs[entry.ItemID] = true
				outcome.States[entry.ItemID] = ResolvedBy(strategy.Name())
			}
		}
		outcome.Entries = append(outcome.Entries, result.Entries...)
		outcome.Report.ResolvedBy[strategy.Name()] = len(resolvedIDs)

		next := remaining[:0]
		for _, rec := range remaining {
			if !resolvedIDs[rec.ItemID] {
				next = append(next, rec)
			}
		}
		remaining = next

		log.InfoWithFields("stage complete", map[string]interface{}{
			"resolved":  len(resolvedIDs),
			"remaining": len(remaining),
		})
	}

	for _, rec := range remaining {
		outcome.States[rec.ItemID] = StateExhausted
	}
	outcome.Report.Exhausted = len(remaining)

	if outcome.Report.Exhausted > 0 {
		c.logger.WarnWithFields("items exhausted after all strategies", map[string]interface{}{
			"exhausted": outcome.Report.Exhausted,
		})
	}
	return outcome, nil
}
