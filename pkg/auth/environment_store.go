package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads credentials from environment variables. It is
// read-only and exists so CI and one-off runs work without a keychain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-backed store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve builds a profile from the environment.
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	profile := &Profile{
		Name:         name,
		BearerToken:  os.Getenv("TWITTER_BEARER_TOKEN"),
		APIKey:       os.Getenv("TWITTER_API_KEY"),
		APISecret:    os.Getenv("TWITTER_API_SECRET"),
		AccessToken:  os.Getenv("TWITTER_ACCESS_TOKEN"),
		AccessSecret: os.Getenv("TWITTER_ACCESS_SECRET"),
		CookiesPath:  os.Getenv("LIKEGRAB_COOKIES"),
		Browser:      os.Getenv("LIKEGRAB_BROWSER"),
		LastModified: time.Now(),
	}
	if profile.Name == "" {
		profile.Name = "default"
	}
	if !profile.HasAnyCredential() {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// List returns one profile when environment credentials are set.
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}
