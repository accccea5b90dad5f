package server

import (
	"context"
	"net/http"

	"github.com/desertthunder/rewind/internal/spotify"
	"github.com/go-chi/chi/v5"
)

// proxy runs one upstream read with the session's access token and relays the
// response 1:1.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, accessToken string) (*spotify.Response, error)) {
	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	resp, err := call(ctx, rec.AccessToken)
	if err != nil {
		respondError(w, err)
		return
	}
	forward(w, resp)
}

// handleMe proxies the user's profile. The mobile app also calls this on
// startup to validate a stored session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.MeRaw(ctx, token)
	})
}

// handlePlaylists proxies the user's first page of playlists.
func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.Playlists(ctx, token, playlistsLimit)
	})
}

// handlePlaylistTracks proxies a playlist's tracks with a field mask applied.
func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.PlaylistTracks(ctx, token, playlistID, playlistTracksLimit, spotify.PlaylistTracksFields)
	})
}

// handlePlaylistDetails proxies the full playlist object (name, description,
// cover images).
func (s *Server) handlePlaylistDetails(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.PlaylistRaw(ctx, token, playlistID)
	})
}

// handleTopItems proxies the user's top artists or tracks.
func (s *Server) handleTopItems(w http.ResponseWriter, r *http.Request) {
	itemType := chi.URLParam(r, "type")
	if itemType != "artists" && itemType != "tracks" {
		writeDetail(w, http.StatusBadRequest, "Invalid type. Must be 'artists' or 'tracks'.")
		return
	}

	timeRange := r.URL.Query().Get("time_range")
	if timeRange == "" {
		timeRange = "medium_term"
	}

	fields := spotify.TopArtistsFields
	if itemType == "tracks" {
		fields = spotify.TopTracksFields
	}

	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.TopRaw(ctx, token, itemType, timeRange, topItemsLimit, fields)
	})
}

// handleCurrentlyPlaying proxies playback state, normalizing Spotify's 204
// "nothing playing" into a 200 with an explicit flag the app can branch on.
func (s *Server) handleCurrentlyPlaying(w http.ResponseWriter, r *http.Request) {
	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	resp, err := s.spotify.CurrentlyPlaying(ctx, rec.AccessToken, "US")
	if err != nil {
		respondError(w, err)
		return
	}

	if resp.StatusCode == http.StatusNoContent {
		writeJSON(w, http.StatusOK, map[string]bool{"is_playing": false})
		return
	}
	forward(w, resp)
}

// handleArtist proxies a single artist lookup.
func (s *Server) handleArtist(w http.ResponseWriter, r *http.Request) {
	artistID := chi.URLParam(r, "id")
	s.proxy(w, r, func(ctx context.Context, token string) (*spotify.Response, error) {
		return s.spotify.Artist(ctx, token, artistID)
	})
}
