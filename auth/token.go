// Package auth acquires and caches OAuth2 client_credentials access tokens.
package auth

import (
	"time"
)

// expiryLeeway is subtracted from the nominal expiry when checking validity,
// so a token is never presented moments before the server rejects it.
const expiryLeeway = 30 * time.Second

// Token is an opaque bearer access token with its expiry and any extra
// fields the token endpoint returned. Tokens are never mutated, only
// replaced.
type Token struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Claims      map[string]any `json:"claims,omitempty"`
}

// Expired reports whether the token can no longer be presented. A nil or
// empty token counts as expired.
func (t *Token) Expired() bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return !time.Now().Add(expiryLeeway).Before(t.ExpiresAt)
}
