package user

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/goccy/go-json"
)

// User identifies who flags are fetched for. Fields are opaque to the
// synchronization engine; they are serialized as-is in requests and events.
type User struct {
	Key       string         `json:"key"`
	Secondary string         `json:"secondary,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Email     string         `json:"email,omitempty"`
	Name      string         `json:"name,omitempty"`
	Avatar    string         `json:"avatar,omitempty"`
	FirstName string         `json:"firstName,omitempty"`
	LastName  string         `json:"lastName,omitempty"`
	Country   string         `json:"country,omitempty"`
	Anonymous bool           `json:"anonymous,omitempty"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// WithDefaultKey returns a copy of u keyed by fallback and marked anonymous
// when u has no key. Users that already have a key are returned unchanged.
func (u User) WithDefaultKey(fallback string) User {
	if u.Key != "" {
		return u
	}
	u.Key = fallback
	u.Anonymous = true
	return u
}

// JSON returns the canonical encoding. Struct fields keep declaration order
// and custom attribute keys are sorted, so equal users encode identically.
func (u User) JSON() ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return b, nil
}

// Base64 returns the canonical JSON encoded as unpadded URL-safe base64,
// which is how the user travels in request paths.
func (u User) Base64() (string, error) {
	b, err := u.JSON()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns a stable hex SHA-256 of the canonical JSON. It keys persisted
// per-user flag snapshots.
func (u User) Hash() (string, error) {
	b, err := u.JSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
