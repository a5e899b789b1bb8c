package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "likegrab"
	keyringPrefix  = "profile_"
	keyringIndex   = "profile_index"
)

// KeyringStore keeps profiles in the system keychain.
type KeyringStore struct{}

// NewKeyringStore probes the system keychain and returns a store when it is
// usable.
func NewKeyringStore() (*KeyringStore, error) {
	probe := "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

// Store saves a profile to the keychain and records its name in the index
// entry so List can find it again.
func (k *KeyringStore) Store(profile *Profile) error {
	if profile == nil || profile.Name == "" {
		return ErrInvalidProfile
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+profile.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	names := k.indexNames()
	for _, n := range names {
		if n == profile.Name {
			return nil
		}
	}
	names = append(names, profile.Name)
	return keyring.Set(keyringService, keyringIndex, strings.Join(names, "\n"))
}

// Retrieve loads a profile from the keychain.
func (k *KeyringStore) Retrieve(name string) (*Profile, error) {
	if name == "" {
		return nil, ErrInvalidProfile
	}
	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if err != nil {
		return nil, ErrProfileNotFound
	}
	var profile Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to parse stored profile: %w", err)
	}
	return &profile, nil
}

// List returns every profile recorded in the index entry.
func (k *KeyringStore) List() ([]*Profile, error) {
	var profiles []*Profile
	for _, name := range k.indexNames() {
		if p, err := k.Retrieve(name); err == nil {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Delete removes a profile from the keychain and the index.
func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidProfile
	}
	if err := keyring.Delete(keyringService, keyringPrefix+name); err != nil {
		return ErrProfileNotFound
	}

	var kept []string
	for _, n := range k.indexNames() {
		if n != name {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		_ = keyring.Delete(keyringService, keyringIndex)
		return nil
	}
	return keyring.Set(keyringService, keyringIndex, strings.Join(kept, "\n"))
}

func (k *KeyringStore) indexNames() []string {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if err != nil || raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
