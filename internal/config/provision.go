package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidProvisioning = errors.New("invalid provisioning document")

// Provisioning is the QR setup document:
//
//	{"url": "wss://server/clawreach", "token": "optional"}
type Provisioning struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

// ParseProvisioning decodes a provisioning document. url must be a string;
// a token that is missing or not a string is treated as empty.
func ParseProvisioning(data []byte) (Provisioning, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Provisioning{}, fmt.Errorf("%w: %w", ErrInvalidProvisioning, err)
	}

	var p Provisioning
	if err := json.Unmarshal(raw["url"], &p.URL); err != nil || p.URL == "" {
		return Provisioning{}, fmt.Errorf("%w: url must be a non-empty string", ErrInvalidProvisioning)
	}
	if tok, ok := raw["token"]; ok {
		if err := json.Unmarshal(tok, &p.Token); err != nil {
			p.Token = ""
		}
	}

	if err := validateURL(p.URL); err != nil {
		return Provisioning{}, fmt.Errorf("%w: %w", ErrInvalidProvisioning, err)
	}
	if len(p.Token) > MaxTokenLen {
		return Provisioning{}, fmt.Errorf("%w: token longer than %d bytes", ErrInvalidProvisioning, MaxTokenLen)
	}
	return p, nil
}

// Apply sets the server URL, and the token when p carries one.
func (c *Config) Apply(p Provisioning) {
	c.ServerURL = p.URL
	if p.Token != "" {
		c.Token = p.Token
	}
}

// TokenExpiry returns the exp claim when token is a JWT. The signature is
// not verified; the server does that.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// EnsureDeviceID assigns a random device id if c has none and reports
// whether it did.
func (c *Config) EnsureDeviceID() bool {
	if c.DeviceID != "" {
		return false
	}
	c.DeviceID = uuid.NewString()
	return true
}
