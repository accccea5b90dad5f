package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/rewind/internal/shared"
	"github.com/desertthunder/rewind/internal/spotify"
)

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the `{"detail": ...}` error shape the mobile client expects.
func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

// forward relays an upstream Spotify response to the client 1:1. Successful
// bodies pass through untouched; error bodies are wrapped in the detail shape
// with the upstream's own status code.
func forward(w http.ResponseWriter, resp *spotify.Response) {
	if resp.OK() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
		return
	}
	writeDetail(w, resp.StatusCode, detailFromBody(resp.Body))
}

// detailFromBody embeds an upstream error body as JSON when it is JSON, and
// as a plain string otherwise.
func detailFromBody(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

// respondError maps error taxonomy to status codes: auth failures are the
// caller's problem (400/401), provider failures are gateway problems (502),
// and configuration gaps are ours (500).
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrMissingAuthHeader),
		errors.Is(err, shared.ErrMalformedAuthHeader),
		errors.Is(err, shared.ErrUnknownSession):
		writeDetail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, shared.ErrCodeInvalid),
		errors.Is(err, shared.ErrAuthFailed),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrProviderFailed):
		writeDetail(w, http.StatusBadGateway, "AI provider error.")
	case errors.Is(err, shared.ErrAPIRequest):
		writeDetail(w, http.StatusBadGateway, "Could not fetch Spotify data.")
	case errors.Is(err, shared.ErrServiceNotConfigured):
		writeDetail(w, http.StatusInternalServerError, "AI service is not configured.")
	case errors.Is(err, shared.ErrImageTooLarge):
		writeDetail(w, http.StatusInternalServerError, "Generated image too large for Spotify (>256 KB). Try a simpler prompt.")
	default:
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
	}
}
