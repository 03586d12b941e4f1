package domain

import (
	"encoding/json"
	"time"
)

// EphemeralToken is the short-lived credential used to authenticate the
// signaling exchange.
type EphemeralToken struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is unusable at now. A zero expiry never expires.
func (t *EphemeralToken) Expired(now time.Time) bool {
	if t == nil || t.Value == "" {
		return true
	}
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ClientSecret is the nested credential of a realtime session object.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// RealtimeSession is the subset of the upstream session object the token
// endpoint returns. Unknown fields are kept in Raw so proxies can pass the
// object through untouched.
type RealtimeSession struct {
	ID           string          `json:"id,omitempty"`
	Model        string          `json:"model,omitempty"`
	Voice        string          `json:"voice,omitempty"`
	ClientSecret *ClientSecret   `json:"client_secret"`
	Raw          json.RawMessage `json:"-"`
}

// Token converts the session's client secret into an EphemeralToken.
func (s *RealtimeSession) Token() (*EphemeralToken, bool) {
	if s == nil || s.ClientSecret == nil || s.ClientSecret.Value == "" {
		return nil, false
	}
	t := &EphemeralToken{Value: s.ClientSecret.Value}
	if s.ClientSecret.ExpiresAt > 0 {
		t.ExpiresAt = time.Unix(s.ClientSecret.ExpiresAt, 0)
	}
	return t, true
}

// RefreshedToken is returned by the token refresh endpoint.
type RefreshedToken struct {
	Token        string `json:"token"`
	ExpiresIn    int    `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}
