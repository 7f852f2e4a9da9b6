package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neboloop/clawreach/internal/defaults"
	"github.com/neboloop/clawreach/internal/keyring"
)

// Secrets stores the bearer token in the OS keychain, or in a 0600 file in
// the data directory when no keychain is available.
type Secrets struct {
	path       string
	useKeyring bool
}

// NewSecrets probes the keychain once and picks a backend.
func NewSecrets(dir string) *Secrets {
	return &Secrets{
		path:       filepath.Join(dir, defaults.TokenFile),
		useKeyring: keyring.Available(),
	}
}

// Backend names the storage in use.
func (s *Secrets) Backend() string {
	if s.useKeyring {
		return "keychain"
	}
	return "file"
}

// Token returns the stored token, or "" when none is stored.
func (s *Secrets) Token() (string, error) {
	if s.useKeyring {
		tok, err := keyring.Get()
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return tok, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetToken stores token.
func (s *Secrets) SetToken(token string) error {
	if s.useKeyring {
		return keyring.Set(token)
	}
	if err := os.WriteFile(s.path, []byte(token), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// ClearToken removes the stored token.
func (s *Secrets) ClearToken() error {
	if s.useKeyring {
		return keyring.Delete()
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
