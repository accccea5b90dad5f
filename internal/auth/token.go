package auth

import "time"

// TokenRecord holds one user's Spotify OAuth grant.
//
// ExpiresAt is set ahead of the provider-declared expiry (see expirySkew) so
// refresh happens before the access token actually dies mid-request.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record needs a refresh before use.
func (t TokenRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
