package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	t.Setenv("LIKEGRAB_VAULT_KEY", "test-vault-key")
	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundtrip(t *testing.T) {
	store := testStore(t)

	profile := &Profile{
		Name:        "default",
		BearerToken: "bearer-secret",
		APIKey:      "key",
		CookiesPath: "/home/me/cookies.json",
		Browser:     "firefox",
	}
	require.NoError(t, store.Store(profile))

	loaded, err := store.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, profile.BearerToken, loaded.BearerToken)
	assert.Equal(t, profile.CookiesPath, loaded.CookiesPath)
	assert.Equal(t, profile.Browser, loaded.Browser)
}

func TestEncryptedStoreFileIsOpaque(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Store(&Profile{Name: "default", BearerToken: "very-secret-token"}))

	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-token",
		"secrets never appear in plaintext on disk")

	var file vaultFile
	require.NoError(t, json.Unmarshal(raw, &file), "the vault envelope itself is JSON")
	assert.NotEmpty(t, file.Salt)
	assert.NotEmpty(t, file.Encrypted)

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEncryptedStoreWrongKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	t.Setenv("LIKEGRAB_VAULT_KEY", "right-key")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Profile{Name: "default", BearerToken: "x"}))

	t.Setenv("LIKEGRAB_VAULT_KEY", "wrong-key")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = other.Retrieve("default")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decrypt"))
}

func TestEncryptedStoreMultipleProfiles(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.Store(&Profile{Name: "work", BearerToken: "a"}))
	require.NoError(t, store.Store(&Profile{Name: "personal", BearerToken: "b"}))

	profiles, err := store.List()
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	work, err := store.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "a", work.BearerToken)
}

func TestEncryptedStoreDelete(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.Store(&Profile{Name: "a", BearerToken: "x"}))
	require.NoError(t, store.Store(&Profile{Name: "b", BearerToken: "y"}))

	require.NoError(t, store.Delete("a"))
	_, err := store.Retrieve("a")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	// Deleting the last profile removes the vault file.
	require.NoError(t, store.Delete("b"))
	_, err = os.Stat(store.path)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, store.Delete("ghost"), ErrProfileNotFound)
}

func TestEncryptedStoreEmptyState(t *testing.T) {
	store := testStore(t)

	_, err := store.Retrieve("default")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	profiles, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, profiles)

	assert.ErrorIs(t, store.Store(nil), ErrInvalidProfile)
	assert.ErrorIs(t, store.Store(&Profile{}), ErrInvalidProfile)
}

func TestHasAnyCredential(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		expected bool
	}{
		{"empty", Profile{Name: "p"}, false},
		{"bearer", Profile{Name: "p", BearerToken: "t"}, true},
		{"cookies", Profile{Name: "p", CookiesPath: "/jar.json"}, true},
		{"partial oauth", Profile{Name: "p", APIKey: "k", APISecret: "s"}, false},
		{"full oauth", Profile{Name: "p", APIKey: "k", APISecret: "s", AccessToken: "at", AccessSecret: "as"}, true},
		{"browser only", Profile{Name: "p", Browser: "brave"}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.profile.HasAnyCredential())
		})
	}
}
