package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store reads and writes config.yaml. The token never touches the YAML file
// once saved; it lives in Secrets.
type Store struct {
	path    string
	secrets *Secrets
	logger  *slog.Logger
}

// NewStore returns a store for the config file at path.
func NewStore(path string, secrets *Secrets) *Store {
	return &Store{
		path:    path,
		secrets: secrets,
		logger:  slog.Default().With("component", "config"),
	}
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// Secrets returns the token storage.
func (s *Store) Secrets() *Secrets { return s.secrets }

// Load reads the config file. A missing file yields the defaults. A token
// written by hand into the YAML file wins over the stored one.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if cfg.Token == "" && s.secrets != nil {
		tok, err := s.secrets.Token()
		if err != nil {
			s.logger.Warn("token unavailable", "backend", s.secrets.Backend(), "error", err)
		}
		cfg.Token = tok
	}
	return cfg, nil
}

// Save validates cfg and writes it. A non-empty token is moved to Secrets;
// an empty token leaves the stored one in place.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := *cfg
	if s.secrets != nil {
		if cfg.Token != "" {
			if err := s.secrets.SetToken(cfg.Token); err != nil {
				return err
			}
		}
		out.Token = ""
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write then rename so watchers never read a half-written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ClearToken removes the stored token and any token in the file.
func (s *Store) ClearToken() error {
	cfg, err := s.Load()
	if err != nil {
		return err
	}
	if s.secrets != nil {
		if err := s.secrets.ClearToken(); err != nil {
			return err
		}
	}
	cfg.Token = ""
	return s.Save(cfg)
}
