package keyring

import (
	"errors"
	"testing"

	zkr "github.com/zalando/go-keyring"
)

func TestTokenRoundTrip(t *testing.T) {
	zkr.MockInit()

	if _, err := Get(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty keychain: err = %v, want ErrNotFound", err)
	}
	if err := Set("tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok" {
		t.Errorf("Get = %q, want %q", got, "tok")
	}
	if err := Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := Delete(); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestAvailable(t *testing.T) {
	zkr.MockInit()
	if !Available() {
		t.Error("mock keychain reported unavailable")
	}
	t.Setenv("CLAWREACH_KEYRING_DISABLED", "1")
	if Available() {
		t.Error("Available ignored CLAWREACH_KEYRING_DISABLED")
	}
}
