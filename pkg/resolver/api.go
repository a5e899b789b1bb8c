package resolver

import (
	"context"
	"net/url"
	"strings"

	"likegrab/pkg/config"
	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/models"
	"likegrab/pkg/xapi"
)

const (
	apiProvenance = "api_resolved"
	apiBatchSize  = 100
)

// APIStrategy resolves items through the official paid API (GET /2/tweets,
// batches of 100). It leans on the request client's retry policy for
// throttling; each batch is attempted exactly once regardless of per-item
// success. The media-kind filter excludes videos and animated media by
// policy, not capability.
type APIStrategy struct {
	client     *xapi.Client
	baseURL    string
	api        config.APIConfig
	photosOnly bool
	logger     logger.Logger
}

// NewAPIStrategy builds the paid API strategy.
func NewAPIStrategy(cfg *config.Config, log logger.Logger) *APIStrategy {
	if log == nil {
		log = logger.GetLogger()
	}
	return &APIStrategy{
		client:     xapi.NewClient(cfg.RateLimit, cfg.Download.Timeout, log),
		baseURL:    cfg.API.BaseURL,
		api:        cfg.API,
		photosOnly: true,
		logger:     log.WithField("strategy", "api"),
	}
}

// Name implements Strategy.
func (s *APIStrategy) Name() string { return "api" }

// Setup wires credentials into the client: a bearer token when available,
// otherwise the OAuth 1.0a quadruple. Neither configured means the stage is
// skipped.
func (s *APIStrategy) Setup(ctx context.Context) error {
	switch {
	case s.api.HasBearer():
		s.client.SetHeader("Authorization", "Bearer "+s.api.BearerToken)
	case s.api.HasOAuth1():
		s.client.SetHTTPClient(xapi.OAuth1HTTPClient(s.api, 0))
	default:
		return errors.New(errors.ErrorTypeAuthUnavailable,
			"no bearer token and no OAuth 1.0a credentials configured")
	}
	return nil
}

// Resolve looks items up in batches of 100.
func (s *APIStrategy) Resolve(ctx context.Context, batch []models.Record) (*Result, error) {
	result := NewResult()
	ids := itemIDs(batch)

	for start := 0; start < len(ids); start += apiBatchSize {
		end := start + apiBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		result.MarkAttempted(chunk...)

		params := url.Values{
			"ids":          {strings.Join(chunk, ",")},
			"expansions":   {"attachments.media_keys,author_id"},
			"tweet.fields": {"created_at,author_id,attachments"},
			"user.fields":  {"username"},
			"media.fields": {"url,type"},
		}

		var resp xapi.TweetLookupResponse
		if err := s.client.GetJSON(ctx, s.baseURL+"/tweets", params, &resp); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if errors.Is(err, errors.ErrorTypeAuthUnavailable) {
				// Credentials were rejected; the rest of the stage
				// cannot succeed either.
				return result, err
			}
			s.logger.WarnWithFields("batch lookup failed", map[string]interface{}{
				"error": err.Error(),
				"batch": start / apiBatchSize,
			})
			continue
		}

		usersByID := resp.Includes.UsersByID()
		mediaByKey := resp.Includes.MediaByKey()
		for _, tweet := range resp.Data {
			if rec := xapi.ParseAPITweet(tweet, usersByID, mediaByKey, s.photosOnly, apiProvenance); rec != nil {
				result.Resolved = append(result.Resolved, *rec)
			}
		}

		s.logger.DebugWithFields("batch resolved", map[string]interface{}{
			"looked_up":  end,
			"total":      len(ids),
			"with_media": len(result.Resolved),
		})
	}
	return result, nil
}
