package adminauth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const keyJWTSecret = "jwt-secret"

// SecretStore wraps the OS keychain with an optional file fallback.
// Fallback is intended for servers where no system keyring is available.
type SecretStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewSecretStore creates a keyring wrapper.
func NewSecretStore(serviceName, fallbackPath string) *SecretStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "mindtrap"
	}
	return &SecretStore{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// Get reads a secret. It returns keyring.ErrNotFound when neither the
// keyring nor the fallback file has it.
func (k *SecretStore) Get(name string) (string, error) {
	val, err := keyring.Get(k.service, name)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("adminauth: keyring get %s: %w", name, err)
	}

	fallback, ferr := k.getFallback(name)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

// Set writes a secret to the keyring, or the fallback file if the keyring
// is unavailable.
func (k *SecretStore) Set(name, value string) error {
	if err := keyring.Set(k.service, name, value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("adminauth: keyring set %s: %w", name, err)
	}
	return k.setFallback(name, value)
}

// Delete removes a secret from both places.
func (k *SecretStore) Delete(name string) error {
	if err := keyring.Delete(k.service, name); err != nil &&
		!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("adminauth: keyring delete %s: %w", name, err)
	}
	return k.deleteFallback(name)
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (k *SecretStore) setFallback(name, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("adminauth: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[name] = value
	return k.writeFallbackUnlocked(data)
}

func (k *SecretStore) getFallback(name string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("adminauth: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[name]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (k *SecretStore) deleteFallback(name string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	delete(data, name)
	return k.writeFallbackUnlocked(data)
}

func (k *SecretStore) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("adminauth: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("adminauth: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (k *SecretStore) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("adminauth: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("adminauth: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("adminauth: write fallback secrets: %w", err)
	}
	return nil
}

// SecretSource says where the signing secret came from.
type SecretSource string

const (
	SourceConfig    SecretSource = "config"
	SourceKeyring   SecretSource = "keyring"
	SourceGenerated SecretSource = "generated"
	SourceEphemeral SecretSource = "ephemeral"
)

// ResolveSecret picks the token signing secret: the configured value, else
// the stored one, else a new random secret that is stored for next time.
// If storing fails the secret only lives for this process, so tokens stop
// working on restart.
func ResolveSecret(configured string, store *SecretStore) ([]byte, SecretSource, error) {
	if configured != "" {
		return []byte(configured), SourceConfig, nil
	}
	if store == nil {
		s, err := randomSecret()
		return s, SourceEphemeral, err
	}

	existing, err := store.Get(keyJWTSecret)
	if err == nil && existing != "" {
		return []byte(existing), SourceKeyring, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return nil, "", err
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, "", err
	}
	if err := store.Set(keyJWTSecret, string(secret)); err != nil {
		return secret, SourceEphemeral, nil
	}
	return secret, SourceGenerated, nil
}

func randomSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("adminauth: generate secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}
