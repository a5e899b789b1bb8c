package resolver

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strings"
	"time"

	"likegrab/pkg/config"
	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
	"likegrab/pkg/retry"
	"likegrab/pkg/xapi"
)

const (
	sessionProvenance    = "twikit"
	sessionFailureLimit  = 3
	sessionBatchInterval = time.Second
)

// SessionStrategy resolves items through the internal API surface using a
// persisted session cookie jar, the way the web client does. It is free but
// fragile: three consecutive batch failures stop the stage for the rest of
// the run, and throttling triggers exponential backoff capped at 900s during
// which the batch stays unattempted and is retried.
type SessionStrategy struct {
	client    *xapi.Client
	baseURL   string
	cookies   string // path to the cookie jar
	batchSize int
	logger    logger.Logger

	backoff retry.BackoffStrategy
	// sleep is swappable so tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSessionStrategy builds the session strategy. The client gets a retry
// ceiling of one so throttling surfaces immediately and this strategy can
// apply its own batch-level backoff.
func NewSessionStrategy(cfg *config.Config, log logger.Logger) *SessionStrategy {
	if log == nil {
		log = logger.GetLogger()
	}
	rl := cfg.RateLimit
	rl.MaxAttempts = 1

	return &SessionStrategy{
		client:    xapi.NewClient(rl, cfg.Download.Timeout, log),
		baseURL:   cfg.Session.BaseURL,
		cookies:   cfg.Session.CookiesPath,
		batchSize: cfg.Session.BatchSize,
		logger:    log.WithField("strategy", "session"),
		backoff:   retry.ThrottleBackoff(),
		sleep:     retry.Wait,
	}
}

// Name implements Strategy.
func (s *SessionStrategy) Name() string { return "session" }

// Setup loads the persisted cookie jar. A missing jar means this strategy
// has nothing to authenticate with and the cascade moves on.
func (s *SessionStrategy) Setup(ctx context.Context) error {
	data, err := os.ReadFile(s.cookies)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeAuthUnavailable, err, "no saved session cookies")
	}

	var jar map[string]string
	if err := json.Unmarshal(data, &jar); err != nil {
		return errors.Wrap(errors.ErrorTypeAuthUnavailable, err, "unreadable session cookies")
	}
	if len(jar) == 0 {
		return errors.New(errors.ErrorTypeAuthUnavailable, "session cookie jar is empty")
	}

	pairs := make([]string, 0, len(jar))
	for name, value := range jar {
		pairs = append(pairs, name+"="+value)
	}
	s.client.SetHeader("Cookie", strings.Join(pairs, "; "))
	if csrf, ok := jar["ct0"]; ok {
		s.client.SetHeader("x-csrf-token", csrf)
	}
	return nil
}

// Resolve looks items up in batches. A successful batch marks all its items
// attempted whether or not they yielded media; a throttled batch backs off
// and is retried; any other failure counts toward the consecutive-failure
// stop.
func (s *SessionStrategy) Resolve(ctx context.Context, batch []models.Record) (*Result, error) {
	result := NewResult()
	ids := itemIDs(batch)
	total := len(ids)
	streak := 0

	for start := 0; start < total; {
		end := start + s.batchSize
		if end > total {
			end = total
		}
		chunk := ids[start:end]

		tweets, err := s.lookup(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			streak++
			if streak >= sessionFailureLimit {
				s.logger.WarnWithFields("too many consecutive failures, stopping stage", map[string]interface{}{
					"failures": streak,
					"resolved": len(result.Resolved),
					"total":    total,
				})
				return result, nil
			}
			if errors.Is(err, errors.ErrorTypeRateLimited) {
				// First throttle waits 120s, then doubles, capped at 900s.
				wait := s.backoff.NextDelay(streak + 1)
				s.logger.WarnWithFields("throttled, backing off", map[string]interface{}{
					"wait":  wait,
					"batch": start / s.batchSize,
				})
				if serr := s.sleep(ctx, wait); serr != nil {
					return result, serr
				}
				// The batch was not attempted; retry it after backoff.
				continue
			}
			s.logger.WarnWithFields("batch lookup failed", map[string]interface{}{
				"error": err.Error(),
				"batch": start / s.batchSize,
			})
			start = end
			continue
		}

		streak = 0
		result.MarkAttempted(chunk...)
		for _, tweet := range tweets {
			if rec := xapi.ParseLegacyTweet(tweet, sessionProvenance); rec != nil {
				result.Resolved = append(result.Resolved, *rec)
			}
		}

		s.logger.DebugWithFields("batch resolved", map[string]interface{}{
			"looked_up":  end,
			"total":      total,
			"with_media": len(result.Resolved),
		})

		start = end
		if start < total {
			if err := s.sleep(ctx, sessionBatchInterval); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (s *SessionStrategy) lookup(ctx context.Context, ids []string) ([]xapi.LegacyTweet, error) {
	params := url.Values{
		"id":         {strings.Join(ids, ",")},
		"tweet_mode": {"extended"},
	}
	var tweets []xapi.LegacyTweet
	if err := s.client.GetJSON(ctx, s.baseURL+"/statuses/lookup.json", params, &tweets); err != nil {
		return nil, err
	}
	return tweets, nil
}

func itemIDs(records []models.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.ItemID != "" {
			ids = append(ids, r.ItemID)
		}
	}
	return ids
}
