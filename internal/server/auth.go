package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/rewind/internal/auth"
	"github.com/desertthunder/rewind/internal/shared"
)

// handleLogin redirects the browser to the Spotify authorization page.
//
// State is generated per request but not validated on callback; the callback
// hands off through a server-minted one-time code, so a forged callback buys
// an attacker nothing they could redeem.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := shared.NewToken(16)
	http.Redirect(w, r, s.auth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleCallback exchanges the authorization code, parks the token record
// under a one-time code, and serves an HTML page that deep-links back into
// the mobile app. Tokens never appear in any URL.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Spotify returned error: %s", errParam))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeDetail(w, http.StatusBadRequest, "Missing code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rec, err := s.auth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("token exchange failed", "error", err)
		respondError(w, err)
		return
	}

	oneTime := shared.NewToken(24)
	if err := s.codes.Put(oneTime, rec, codeTTL); err != nil {
		s.logger.Error("failed to store one-time code", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.logger.Info("authorization complete, handing off to app", "code", shared.Truncate(oneTime, 6))

	redirect := s.config.Server.DeepLink + "?code=" + oneTime
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, callbackPage, redirect, redirect)
}

const callbackPage = `<!doctype html>
<html>
<head>
    <meta charset="utf-8"/>
    <title>Login complete</title>
</head>
<body>
    <p>Login complete. Redirecting back to app…</p>
    <script>
    window.location = %q;

    setTimeout(function() {
        document.body.innerHTML += '<p>If the app did not open, <a href=%q>click here</a>.</p>';
    }, 1000);
    </script>
</body>
</html>
`

type authProfileBody struct {
	Code string `json:"code"`
}

// handleAuthProfile redeems a one-time code for a persistent mobile session.
//
// The code is consumed atomically before anything else happens; a second
// redemption, or one past the TTL, fails the same way as a bogus code.
func (s *Server) handleAuthProfile(w http.ResponseWriter, r *http.Request) {
	var body authProfileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeDetail(w, http.StatusBadRequest, "Missing code")
		return
	}

	rec, ok, err := s.codes.TakeIfValid(body.Code)
	if err != nil {
		s.logger.Error("code store failure", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	if !ok {
		respondError(w, shared.ErrCodeInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	resp, err := s.spotify.MeRaw(ctx, rec.AccessToken)
	if err != nil {
		respondError(w, err)
		return
	}
	if !resp.OK() {
		forward(w, resp)
		return
	}

	sessionToken := shared.NewToken(32)
	if err := s.sessions.Put(sessionToken, rec); err != nil {
		s.logger.Error("failed to store session", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.logger.Info("mobile session created", "token", shared.Truncate(sessionToken, 6))

	writeJSON(w, http.StatusOK, map[string]any{
		"profile": json.RawMessage(resp.Body),
		"token":   sessionToken,
	})
}

// handleLogout invalidates the presented session token. The response shape is
// identical whether or not the token was known, so logout leaks nothing about
// which tokens exist.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid authorization header for logout")
		return
	}

	if _, ok, _ := s.sessions.Get(token); ok {
		s.logger.Info("invalidated session", "token", shared.Truncate(token, 6))
	} else {
		s.logger.Warn("logout for unknown token", "token", shared.Truncate(token, 6))
	}

	if err := s.sessions.Delete(token); err != nil {
		s.logger.Error("failed to delete session", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
