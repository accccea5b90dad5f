package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/ai"
	"github.com/desertthunder/rewind/internal/auth"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/desertthunder/rewind/internal/spotify"
)

// harness wires a Server against fake upstream services for handler tests.
type harness struct {
	t        *testing.T
	server   *Server
	router   http.Handler
	sessions *auth.MemorySessionStore
	codes    *auth.MemoryCodeStore
}

// newHarness builds a Server whose Spotify client talks to spotifyHandler and
// whose authenticator exchanges tokens against tokenHandler. Either can be nil
// when a test never reaches that upstream.
func newHarness(t *testing.T, spotifyHandler, tokenHandler http.Handler) *harness {
	t.Helper()

	cfg := shared.DefaultConfig()
	cfg.Credentials.Spotify.ClientID = "client-id"
	cfg.Credentials.Spotify.ClientSecret = "client-secret"

	authenticator, err := auth.NewAuthenticator(cfg.Credentials.Spotify)
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}
	if tokenHandler != nil {
		tokenSrv := httptest.NewServer(tokenHandler)
		t.Cleanup(tokenSrv.Close)
		authenticator.SetEndpoint(tokenSrv.URL+"/authorize", tokenSrv.URL+"/token")
	}

	client := spotify.NewClient(nil, nil)
	if spotifyHandler != nil {
		spotifySrv := httptest.NewServer(spotifyHandler)
		t.Cleanup(spotifySrv.Close)
		client.BaseURL = spotifySrv.URL
	}

	sessions := auth.NewMemorySessionStore()
	codes := auth.NewMemoryCodeStore()

	logger := shared.NewLogger(nil)
	shared.SetLogLevel(logger, log.FatalLevel)

	srv := New(Opts{
		Config:        cfg,
		Logger:        logger,
		Authenticator: authenticator,
		Sessions:      sessions,
		Codes:         codes,
		Spotify:       client,
	})

	return &harness{t: t, server: srv, sessions: sessions, codes: codes}
}

// do routes a request through the server. The router is built on first use so
// tests can swap clients on the server beforehand.
func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.t.Helper()
	if h.router == nil {
		h.router = h.server.Router()
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// seedSession installs a live session and returns its bearer token.
func (h *harness) seedSession(rec auth.TokenRecord) string {
	h.t.Helper()
	token := shared.NewToken(32)
	if err := h.sessions.Put(token, rec); err != nil {
		h.t.Fatalf("Failed to seed session: %v", err)
	}
	return token
}

func freshRecord() auth.TokenRecord {
	return auth.TokenRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not the detail shape: %v (%s)", err, w.Body.String())
	}
	return fmt.Sprintf("%v", body.Detail)
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, nil, nil)

	w := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", w.Code)
	}

	w = h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/login") {
		t.Errorf("Expected service banner from /, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	h := newHarness(t, nil, nil)

	first := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	id := first.Header().Get("X-Request-ID")
	if len(id) != 36 {
		t.Fatalf("Expected a uuid request id, got %q", id)
	}

	second := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if second.Header().Get("X-Request-ID") == id {
		t.Error("Expected a distinct id per request")
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil, nil)

	w := h.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected 307, got %d", w.Code)
	}

	location := w.Header().Get("Location")
	if !strings.Contains(location, "client_id=client-id") {
		t.Errorf("Expected client_id in redirect, got %s", location)
	}
	if !strings.Contains(location, "show_dialog=true") {
		t.Errorf("Expected show_dialog in redirect, got %s", location)
	}
	if !strings.Contains(location, "state=") {
		t.Errorf("Expected state in redirect, got %s", location)
	}
}

func TestCallbackValidation(t *testing.T) {
	h := newHarness(t, nil, nil)

	t.Run("ProviderError", func(t *testing.T) {
		w := h.do(httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); !strings.Contains(detail, "access_denied") {
			t.Errorf("Expected provider error in detail, got %q", detail)
		}
	})

	t.Run("MissingCode", func(t *testing.T) {
		w := h.do(httptest.NewRequest(http.MethodGet, "/callback", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); detail != "Missing code" {
			t.Errorf("Expected Missing code, got %q", detail)
		}
	})
}

var deepLinkCode = regexp.MustCompile(`code=([A-Za-z0-9_-]+)`)

func TestLoginHandoffFlow(t *testing.T) {
	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"spotify-access","token_type":"Bearer","expires_in":3600,"refresh_token":"spotify-refresh"}`)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer spotify-access" {
			t.Errorf("Unexpected upstream auth header %q", auth)
		}
		fmt.Fprint(w, `{"id":"user1","display_name":"User One"}`)
	})

	h := newHarness(t, mux, tokenHandler)

	// Browser completes the OAuth dance; the page carries a one-time code.
	w := h.do(httptest.NewRequest(http.MethodGet, "/callback?code=spotify-auth-code", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Callback failed: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML callback page, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "rewind://auth/success?code=") {
		t.Fatalf("Expected deep link in callback page, got %s", w.Body.String())
	}

	match := deepLinkCode.FindStringSubmatch(w.Body.String())
	if match == nil {
		t.Fatal("Could not extract one-time code from callback page")
	}
	oneTime := match[1]

	// The app redeems the code for a session token and profile.
	redeem := httptest.NewRequest(http.MethodPost, "/auth/profile", strings.NewReader(`{"code":"`+oneTime+`"}`))
	w = h.do(redeem)
	if w.Code != http.StatusOK {
		t.Fatalf("Redemption failed: %d %s", w.Code, w.Body.String())
	}

	var result struct {
		Profile json.RawMessage `json:"profile"`
		Token   string          `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode redemption response: %v", err)
	}
	if result.Token == "" {
		t.Fatal("Expected a session token")
	}
	if !strings.Contains(string(result.Profile), "user1") {
		t.Errorf("Expected embedded profile, got %s", result.Profile)
	}

	// The session token now opens protected routes.
	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.Header.Set("Authorization", "Bearer "+result.Token)
	if w = h.do(me); w.Code != http.StatusOK {
		t.Errorf("Expected session token to work on /me, got %d", w.Code)
	}

	// The one-time code is spent.
	again := httptest.NewRequest(http.MethodPost, "/auth/profile", strings.NewReader(`{"code":"`+oneTime+`"}`))
	if w = h.do(again); w.Code != http.StatusBadRequest {
		t.Errorf("Expected second redemption to fail with 400, got %d", w.Code)
	}
}

func TestAuthProfileValidation(t *testing.T) {
	h := newHarness(t, nil, nil)

	t.Run("MissingBody", func(t *testing.T) {
		w := h.do(httptest.NewRequest(http.MethodPost, "/auth/profile", strings.NewReader(`{}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("UnknownCode", func(t *testing.T) {
		w := h.do(httptest.NewRequest(http.MethodPost, "/auth/profile", strings.NewReader(`{"code":"bogus"}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); !strings.Contains(detail, "code") {
			t.Errorf("Expected code error in detail, got %q", detail)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("RemovesSession", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Logout failed: %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "logged_out") {
			t.Errorf("Unexpected logout body: %s", w.Body.String())
		}
		if _, ok, _ := h.sessions.Get(token); ok {
			t.Error("Expected session to be deleted")
		}
	})

	t.Run("UnknownTokenSameShape", func(t *testing.T) {
		h := newHarness(t, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer never-issued")
		w := h.do(req)

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "logged_out") {
			t.Errorf("Expected identical response for unknown token, got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("BadHeader", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		w := h.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for missing header, got %d", w.Code)
		}
	})
}

func TestRequireSession(t *testing.T) {
	t.Run("MissingHeader", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		w := h.do(httptest.NewRequest(http.MethodGet, "/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("UnknownToken", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer never-issued")
		if w := h.do(req); w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("RefreshesExpiredToken", func(t *testing.T) {
		tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`)
		})
		mux := http.NewServeMux()
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); auth != "Bearer fresh-access" {
				t.Errorf("Expected refreshed token upstream, got %q", auth)
			}
			fmt.Fprint(w, `{"id":"user1"}`)
		})

		h := newHarness(t, mux, tokenHandler)
		token := h.seedSession(auth.TokenRecord{
			AccessToken:  "stale-access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(-time.Minute),
		})

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if w := h.do(req); w.Code != http.StatusOK {
			t.Fatalf("Expected refresh-then-proxy to succeed, got %d %s", w.Code, w.Body.String())
		}

		stored, _, _ := h.sessions.Get(token)
		if stored.AccessToken != "fresh-access" {
			t.Errorf("Expected refreshed record stored, got %+v", stored)
		}
	})

	t.Run("ProceedsWithStaleTokenWhenRefreshFails", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
		})

		h := newHarness(t, mux, nil)
		// No refresh token on record: the refresh attempt fails locally and the
		// stale token is still forwarded upstream.
		token := h.seedSession(auth.TokenRecord{
			AccessToken: "stale-access",
			ExpiresAt:   time.Now().Add(-time.Minute),
		})

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("Expected upstream 401 forwarded, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); !strings.Contains(detail, "expired") {
			t.Errorf("Expected upstream error forwarded in detail, got %q", detail)
		}
	})
}

func TestTopItemsValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	token := h.seedSession(freshRecord())

	req := httptest.NewRequest(http.MethodGet, "/me/top/albums", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := h.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if detail := decodeDetail(t, w); detail != "Invalid type. Must be 'artists' or 'tracks'." {
		t.Errorf("Unexpected detail: %q", detail)
	}
}

func TestCurrentlyPlaying(t *testing.T) {
	t.Run("NormalizesNoContent", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		h := newHarness(t, mux, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodGet, "/currently-playing", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"is_playing":false`) {
			t.Errorf("Expected is_playing false body, got %s", w.Body.String())
		}
	})

	t.Run("PassesThroughPlayback", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"is_playing":true,"item":{"id":"t1"}}`)
		})

		h := newHarness(t, mux, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodGet, "/currently-playing", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"is_playing":true`) {
			t.Errorf("Expected playback passthrough, got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestForgottenGems(t *testing.T) {
	t.Run("CreatesPlaylistFromSetDifference", func(t *testing.T) {
		var addedURIs string

		mux := http.NewServeMux()
		mux.HandleFunc("/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("time_range") {
			case "long_term":
				fmt.Fprint(w, `{"items":[{"id":"t1"},{"id":"t2"},{"id":"t3"}]}`)
			case "short_term":
				fmt.Fprint(w, `{"items":[{"id":"t2"}]}`)
			default:
				t.Errorf("Unexpected time_range %q", r.URL.Query().Get("time_range"))
			}
		})
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"user1"}`)
		})
		mux.HandleFunc("/users/user1/playlists", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"pl9","name":"Forgotten Gems","external_urls":{"spotify":"https://open.spotify.com/playlist/pl9"}}`)
		})
		mux.HandleFunc("/playlists/pl9/tracks", func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				URIs []string `json:"uris"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			addedURIs = strings.Join(payload.URIs, ",")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"snapshot_id":"snap"}`)
		})

		h := newHarness(t, mux, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/features/forgotten-gems", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected created playlist forwarded, got %d %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "pl9") {
			t.Errorf("Expected created playlist in body, got %s", w.Body.String())
		}
		if !strings.Contains(addedURIs, "spotify:track:t1") || !strings.Contains(addedURIs, "spotify:track:t3") {
			t.Errorf("Expected forgotten tracks added, got %s", addedURIs)
		}
		if strings.Contains(addedURIs, "spotify:track:t2") {
			t.Errorf("Recently played track must be excluded, got %s", addedURIs)
		}
	})

	t.Run("NothingForgotten", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[{"id":"t1"}]}`)
		})

		h := newHarness(t, mux, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/features/forgotten-gems", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "No forgotten gems found!") {
			t.Errorf("Expected empty-result body, got %s", w.Body.String())
		}
	})
}

func fakeTextProvider(t *testing.T, content string) *ai.TextClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)

	client := ai.NewTextClient("test-key", "test-model", nil)
	client.SetBaseURL(srv.URL)
	return client
}

func TestAIAnalysis(t *testing.T) {
	t.Run("Unconfigured", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodGet, "/me/ai-analysis", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); detail != "AI service is not configured." {
			t.Errorf("Unexpected detail: %q", detail)
		}
	})

	t.Run("TruncatesToLastSentence", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/top/artists", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[{"id":"a1","name":"Artist One"}]}`)
		})
		mux.HandleFunc("/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[{"id":"t1","name":"Song","artists":[{"name":"Artist One"}]}]}`)
		})

		h := newHarness(t, mux, nil)
		h.server.text = fakeTextProvider(t, "You love Artist One. This trails off mid")
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodGet, "/me/ai-analysis", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
		}

		var body struct {
			Analysis string `json:"analysis"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if body.Analysis != "You love Artist One." {
			t.Errorf("Expected truncated analysis, got %q", body.Analysis)
		}
	})
}

func TestAIDescription(t *testing.T) {
	t.Run("WritesBackAndReturnsDescription", func(t *testing.T) {
		var updatedDescription string

		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[{"track":{"id":"t1","name":"Song A"}}]}`)
		})
		mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				Description string `json:"description"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			updatedDescription = payload.Description
			fmt.Fprint(w, `{}`)
		})

		h := newHarness(t, mux, nil)
		h.server.text = fakeTextProvider(t, "A punchy vibe. Trailing words")
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/playlist/pl1/ai-description", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "A punchy vibe.") {
			t.Errorf("Expected truncated description, got %s", w.Body.String())
		}
		if updatedDescription != "A punchy vibe." {
			t.Errorf("Expected write-back with truncated description, got %q", updatedDescription)
		}
	})

	t.Run("WriteBackFailureStillReturnsText", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[{"track":{"id":"t1","name":"Song A"}}]}`)
		})
		mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"nope"}`)
		})

		h := newHarness(t, mux, nil)
		h.server.text = fakeTextProvider(t, "A punchy vibe.")
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/playlist/pl1/ai-description", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "A punchy vibe.") {
			t.Errorf("Expected description despite failed write-back, got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestAICover(t *testing.T) {
	t.Run("Unconfigured", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/playlist/pl1/ai-cover", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", w.Code)
		}
		if detail := decodeDetail(t, w); detail != "AI services are not configured." {
			t.Errorf("Unexpected detail: %q", detail)
		}
	})

	t.Run("GeneratesAndUploads", func(t *testing.T) {
		var uploaded bool
		fetches := 0

		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
			fetches++
			if fetches == 1 {
				fmt.Fprint(w, `{"id":"pl1","name":"Night Drive","images":[]}`)
				return
			}
			fmt.Fprint(w, `{"id":"pl1","name":"Night Drive","images":[{"url":"https://i.scdn.co/image/new-cover"}]}`)
		})
		mux.HandleFunc("/playlists/pl1/images", func(w http.ResponseWriter, r *http.Request) {
			uploaded = true
			w.WriteHeader(http.StatusAccepted)
		})

		imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("tiny-image-bytes"))
		}))
		t.Cleanup(imageSrv.Close)
		imageClient := ai.NewImageClient("test-key", nil)
		imageClient.SetBaseURL(imageSrv.URL)

		h := newHarness(t, mux, nil)
		h.server.text = fakeTextProvider(t, "moody neon city at night.")
		h.server.image = imageClient
		token := h.seedSession(freshRecord())

		req := httptest.NewRequest(http.MethodPost, "/playlist/pl1/ai-cover", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := h.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
		}
		if !uploaded {
			t.Error("Expected cover upload call")
		}
		if !strings.Contains(w.Body.String(), "new-cover") {
			t.Errorf("Expected refreshed image URL in body, got %s", w.Body.String())
		}
	})
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.server.config.Server.RateLimit = 0.001
	h.server.config.Server.RateBurst = 1

	first := h.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if first.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected first request to pass, got %d", first.Code)
	}

	second := h.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected second request limited, got %d", second.Code)
	}
	if detail := decodeDetail(t, second); !strings.Contains(detail, "Too many attempts") {
		t.Errorf("Unexpected detail: %q", detail)
	}
}
