// Package keyring stores the server bearer token in the OS keychain.
package keyring

import (
	"errors"
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const (
	serviceName = "clawreach"
	accountName = "server-token"
)

// ErrNotFound is returned by Get when no token is stored.
var ErrNotFound = errors.New("keychain: token not found")

// Get retrieves the server token from the OS keychain.
func Get() (string, error) {
	tok, err := zkr.Get(serviceName, accountName)
	if errors.Is(err, zkr.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return tok, nil
}

// Set stores the server token in the OS keychain.
func Set(token string) error {
	if err := zkr.Set(serviceName, accountName, token); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// Delete removes the server token. A missing token is not an error.
func Delete() error {
	if err := zkr.Delete(serviceName, accountName); err != nil && !errors.Is(err, zkr.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// Available returns true if the OS keychain is functional.
// Returns false if CLAWREACH_KEYRING_DISABLED=1 is set (headless/CI/Docker).
// Otherwise probes the keychain with a test write/read/delete cycle.
func Available() bool {
	if os.Getenv("CLAWREACH_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "clawreach-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
