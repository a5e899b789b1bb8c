package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore keeps profiles in a single AES-GCM encrypted file for
// machines without a usable keychain. The key is derived from a passphrase
// via PBKDF2 with a per-file random salt.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore creates the store at path, deriving the passphrase
// from LIKEGRAB_VAULT_KEY or, absent that, from stable machine identity.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &EncryptedFileStore{
		path:       path,
		passphrase: derivePassphrase(),
	}, nil
}

func derivePassphrase() string {
	if key := os.Getenv("LIKEGRAB_VAULT_KEY"); key != "" {
		return key
	}
	// Machine-derived fallback. Not secret against a local attacker, but
	// keeps credentials out of plaintext files.
	host, _ := os.Hostname()
	name := "likegrab"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return fmt.Sprintf("likegrab:%s:%s", host, name)
}

// Store saves a profile into the encrypted file.
func (e *EncryptedFileStore) Store(profile *Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if profile == nil || profile.Name == "" {
		return ErrInvalidProfile
	}

	profiles, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load store: %w", err)
	}
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	profiles[profile.Name] = *profile
	return e.save(profiles)
}

// Retrieve loads one profile.
func (e *EncryptedFileStore) Retrieve(name string) (*Profile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidProfile
	}
	profiles, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	profile, ok := profiles[name]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &profile, nil
}

// List returns all stored profiles.
func (e *EncryptedFileStore) List() ([]*Profile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	profiles, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*Profile{}, nil
		}
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	result := make([]*Profile, 0, len(profiles))
	for name := range profiles {
		p := profiles[name]
		result = append(result, &p)
	}
	return result, nil
}

// Delete removes a profile; the file is removed entirely when the last
// profile goes.
func (e *EncryptedFileStore) Delete(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return ErrInvalidProfile
	}
	profiles, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to load store: %w", err)
	}
	if _, ok := profiles[name]; !ok {
		return ErrProfileNotFound
	}
	delete(profiles, name)
	if len(profiles) == 0 {
		return os.Remove(e.path)
	}
	return e.save(profiles)
}

type vaultFile struct {
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

func (e *EncryptedFileStore) load() (map[string]Profile, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	plaintext, err := decrypt(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt store: %w", err)
	}

	var profiles map[string]Profile
	if err := json.Unmarshal(plaintext, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return profiles, nil
}

func (e *EncryptedFileStore) save(profiles map[string]Profile) error {
	plaintext, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	ciphertext, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt profiles: %w", err)
	}

	data, err := json.MarshalIndent(vaultFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store file: %w", err)
	}
	return os.WriteFile(e.path, data, 0600)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, payload := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, payload, nil)
}
