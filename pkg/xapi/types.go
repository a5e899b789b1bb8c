package xapi

import (
	"time"

	"likegrab/pkg/models"
)

// TweetLookupResponse is the shape of X API v2 tweet lookup responses
// (GET /2/tweets, GET /2/users/:id/liked_tweets).
type TweetLookupResponse struct {
	Data     []APITweet `json:"data"`
	Includes Includes   `json:"includes"`
	Meta     Meta       `json:"meta"`
}

// APITweet is one tweet object in a v2 response.
type APITweet struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	CreatedAt   string      `json:"created_at"`
	AuthorID    string      `json:"author_id"`
	Attachments Attachments `json:"attachments"`
}

// Attachments references media objects in the response includes.
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Includes carries the expanded user and media objects.
type Includes struct {
	Users []APIUser  `json:"users"`
	Media []APIMedia `json:"media"`
}

// APIUser is an expanded author object.
type APIUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// APIMedia is an expanded media object.
type APIMedia struct {
	MediaKey string `json:"media_key"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

// Meta carries pagination state.
type Meta struct {
	NextToken string `json:"next_token"`
}

// UsersByID indexes the expanded user objects.
func (i Includes) UsersByID() map[string]APIUser {
	m := make(map[string]APIUser, len(i.Users))
	for _, u := range i.Users {
		m[u.ID] = u
	}
	return m
}

// MediaByKey indexes the expanded media objects.
func (i Includes) MediaByKey() map[string]APIMedia {
	m := make(map[string]APIMedia, len(i.Media))
	for _, md := range i.Media {
		m[md.MediaKey] = md
	}
	return m
}

// ParseAPITweet converts a v2 tweet object into a Record using the includes
// lookups. Returns nil if the tweet has no media matching the filter; when
// photosOnly is set, video and animated media are excluded by policy.
func ParseAPITweet(tweet APITweet, usersByID map[string]APIUser, mediaByKey map[string]APIMedia, photosOnly bool, provenance string) *models.Record {
	var urls []string
	for _, key := range tweet.Attachments.MediaKeys {
		media, ok := mediaByKey[key]
		if !ok {
			continue
		}
		if photosOnly && media.Type != "photo" {
			continue
		}
		if media.URL != "" {
			urls = append(urls, media.URL)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	author := "unknown"
	if u, ok := usersByID[tweet.AuthorID]; ok && u.Username != "" {
		author = u.Username
	}

	date := ""
	if len(tweet.CreatedAt) >= 10 {
		date = tweet.CreatedAt[:10]
	}

	return &models.Record{
		ItemID:         tweet.ID,
		Author:         author,
		Date:           date,
		MediaLocations: urls,
		Caption:        tweet.Text,
		Provenance:     provenance,
	}
}

// LegacyTweet is one tweet object from the v1.1 statuses/lookup surface used
// by the session strategy.
type LegacyTweet struct {
	IDStr            string          `json:"id_str"`
	FullText         string          `json:"full_text"`
	CreatedAt        string          `json:"created_at"`
	User             *LegacyUser     `json:"user"`
	ExtendedEntities *LegacyEntities `json:"extended_entities"`
}

// LegacyUser is the embedded author object.
type LegacyUser struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// LegacyEntities carries the media list.
type LegacyEntities struct {
	Media []LegacyMedia `json:"media"`
}

// LegacyMedia is one media object.
type LegacyMedia struct {
	MediaURLHTTPS string `json:"media_url_https"`
	Type          string `json:"type"`
}

// ParseLegacyTweet converts a v1.1 tweet object into a Record. Returns nil
// if the tweet has no photo media.
func ParseLegacyTweet(tweet LegacyTweet, provenance string) *models.Record {
	var urls []string
	if tweet.ExtendedEntities != nil {
		for _, m := range tweet.ExtendedEntities.Media {
			if m.Type != "photo" || m.MediaURLHTTPS == "" {
				continue
			}
			urls = append(urls, m.MediaURLHTTPS)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	author := "unknown"
	if tweet.User != nil {
		if tweet.User.ScreenName != "" {
			author = tweet.User.ScreenName
		} else if tweet.User.Name != "" {
			author = tweet.User.Name
		}
	}

	date := ""
	if tweet.CreatedAt != "" {
		if t, err := time.Parse(time.RubyDate, tweet.CreatedAt); err == nil {
			date = t.Format("2006-01-02")
		}
	}

	return &models.Record{
		ItemID:         tweet.IDStr,
		Author:         author,
		Date:           date,
		MediaLocations: urls,
		Caption:        tweet.FullText,
		Provenance:     provenance,
	}
}
