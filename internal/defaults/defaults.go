// Package defaults provides the data directory and the embedded default
// configuration copied into it on first run.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/ClawReach/
//	Windows: %AppData%\ClawReach\
//	Linux:   ~/.config/clawreach/
//
// Override with CLAWREACH_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed dotclawreach/*
var defaultFiles embed.FS

const embedRoot = "dotclawreach"

// DataDir returns the platform-appropriate data directory.
// Set CLAWREACH_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("CLAWREACH_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "clawreach"), nil
	}
	return filepath.Join(configDir, "ClawReach"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := copyDefaults(dir, false); err != nil {
		return "", err
	}

	return dir, nil
}

// Reset replaces the files in dir with the embedded defaults.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

// copyDefaults copies embedded default files to dir.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == embedRoot {
			return nil
		}

		// embed.FS always uses forward slashes.
		relPath := strings.TrimPrefix(path, embedRoot+"/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		// The config may hold a token, keep it private.
		if err := os.WriteFile(destPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		return nil
	})
}

// GetDefault returns the content of a default file by name.
// Example: GetDefault("config.yaml")
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile(embedRoot + "/" + name)
}

// ListDefaults returns the names of all default files.
func ListDefaults() ([]string, error) {
	var files []string
	err := fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, strings.TrimPrefix(path, embedRoot+"/"))
		}
		return nil
	})
	return files, err
}

// ConfigFile is the name of the device configuration file.
const ConfigFile = "config.yaml"

// ConfigPath returns <data_dir>/config.yaml.
func ConfigPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFile), nil
}

// TokenFile holds the bearer token when the OS keychain is unavailable.
const TokenFile = "token"
