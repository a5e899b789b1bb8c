// Package auth stores resolver credentials outside the repository: the
// system keychain when available, an encrypted file as fallback, and
// environment variables as a read-only last resort.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrInvalidProfile means the profile is missing required fields.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrProfileNotFound means no store holds the requested profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrStoreUnavailable means the store cannot perform the operation.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Profile bundles the credentials one account needs across the resolver
// strategies: API tokens for the paid strategy, the cookie jar path for the
// session strategy, and the browser gallery-dl extracts cookies from.
type Profile struct {
	Name         string    `json:"name"`
	BearerToken  string    `json:"bearer_token,omitempty"`
	APIKey       string    `json:"api_key,omitempty"`
	APISecret    string    `json:"api_secret,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	AccessSecret string    `json:"access_secret,omitempty"`
	CookiesPath  string    `json:"cookies_path,omitempty"`
	Browser      string    `json:"browser,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// HasAnyCredential reports whether the profile carries at least one usable
// credential.
func (p *Profile) HasAnyCredential() bool {
	return p.BearerToken != "" ||
		(p.APIKey != "" && p.APISecret != "" && p.AccessToken != "" && p.AccessSecret != "") ||
		p.CookiesPath != ""
}

// Store is the interface credential backends implement.
type Store interface {
	Store(profile *Profile) error
	Retrieve(name string) (*Profile, error)
	List() ([]*Profile, error)
	Delete(name string) error
}

// Manager fans out over the available stores with fallback: keychain first,
// encrypted file second, environment variables last.
type Manager struct {
	stores []Store
}

// NewManager builds a manager with every store that is available on this
// machine.
func NewManager() (*Manager, error) {
	var stores []Store

	if kr, err := NewKeyringStore(); err == nil {
		stores = append(stores, kr)
	}

	configDir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	enc, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, enc)
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the profile in the first store that accepts it.
func (m *Manager) Store(profile *Profile) error {
	if profile == nil || profile.Name == "" {
		return ErrInvalidProfile
	}
	if !profile.HasAnyCredential() {
		return fmt.Errorf("%w: no credentials set", ErrInvalidProfile)
	}
	profile.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(profile); err == nil {
			return nil
		} else if !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store profile: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve returns the profile from the first store that has it.
func (m *Manager) Retrieve(name string) (*Profile, error) {
	for _, store := range m.stores {
		if profile, err := store.Retrieve(name); err == nil && profile != nil {
			return profile, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// List returns all profiles across stores, most recently modified winning on
// name collisions.
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)
	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}
	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	return result, nil
}

// Delete removes the profile from every store that holds it.
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}
	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete profile: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// configDir returns the directory for likegrab configuration files.
func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "likegrab"), nil
}
