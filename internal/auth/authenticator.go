package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/rewind/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// expirySkew is subtracted from the provider-declared token lifetime so a
	// record reads as expired slightly before Spotify considers it so.
	expirySkew = 30 * time.Second

	defaultLifetime = time.Hour
)

// Authenticator performs authorization-code and refresh-token exchanges
// against the Spotify accounts service. Stateless; safe for concurrent use.
type Authenticator struct {
	config *oauth2.Config
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator from Spotify credentials.
// Scopes is the space-separated scope string from configuration.
func NewAuthenticator(cfg shared.SpotifyConfig) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       strings.Fields(cfg.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &Authenticator{config: config, now: time.Now}, nil
}

// SetEndpoint overrides the accounts service endpoints, for pointing at a
// mock accounts server in tests and local development.
func (a *Authenticator) SetEndpoint(authURL, tokenURL string) {
	a.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// AuthCodeURL returns the Spotify authorization URL for user login.
//
// show_dialog forces the consent screen even for previously authorized users,
// so switching accounts on a shared device works.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange trades an authorization code for a token record.
func (a *Authenticator) Exchange(ctx context.Context, code string) (TokenRecord, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("%w: %s", shared.ErrAuthFailed, retrieveDetail(err))
	}
	return a.record(tok, ""), nil
}

// Refresh trades the record's refresh token for a fresh access token.
//
// Spotify sometimes rotates the refresh token and sometimes omits it; the
// returned record keeps the prior refresh token when no new one was issued.
// A non-2xx response is terminal for the grant; callers never retry.
func (a *Authenticator) Refresh(ctx context.Context, rec TokenRecord) (TokenRecord, error) {
	if rec.RefreshToken == "" {
		return TokenRecord{}, fmt.Errorf("%w: no refresh token on record", shared.ErrRefreshFailed)
	}

	src := a.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: rec.RefreshToken,
		Expiry:       a.now().Add(-time.Minute),
	})

	tok, err := src.Token()
	if err != nil {
		return TokenRecord{}, fmt.Errorf("%w: %s", shared.ErrRefreshFailed, retrieveDetail(err))
	}

	return a.record(tok, rec.RefreshToken), nil
}

// record converts an [oauth2.Token] into a TokenRecord, applying the expiry
// skew and falling back to the prior refresh token when none was issued.
func (a *Authenticator) record(tok *oauth2.Token, priorRefresh string) TokenRecord {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = a.now().Add(defaultLifetime)
	}

	return TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiry.Add(-expirySkew),
	}
}

// retrieveDetail extracts the provider's raw error body from an oauth2
// exchange failure for diagnostics.
func retrieveDetail(err error) string {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return fmt.Sprintf("status %d: %s", rErr.Response.StatusCode, string(rErr.Body))
	}
	return err.Error()
}
