package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/rewind/internal/spotify"
	"golang.org/x/sync/errgroup"
)

// handleForgottenGems builds a playlist of tracks from the user's all-time
// top 50 that have dropped out of their recent top 50, then saves it to
// their library.
func (s *Server) handleForgottenGems(w http.ResponseWriter, r *http.Request) {
	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}
	token := rec.AccessToken

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	// The two ranges are independent reads; fetch them together.
	var longTerm, shortTerm []spotify.Track
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		longTerm, err = s.spotify.TopTracks(gctx, token, "long_term", topItemsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		shortTerm, err = s.spotify.TopTracks(gctx, token, "short_term", topItemsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(w, err)
		return
	}

	recent := make(map[string]struct{}, len(shortTerm))
	for _, track := range shortTerm {
		recent[track.ID] = struct{}{}
	}

	var gemURIs []string
	for _, track := range longTerm {
		if _, ok := recent[track.ID]; !ok {
			gemURIs = append(gemURIs, "spotify:track:"+track.ID)
		}
	}

	// Nothing forgotten is a valid outcome, not an error. The empty
	// external URL tells the app there is no playlist to open.
	if len(gemURIs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":          "No forgotten gems found!",
			"external_urls": map[string]string{"spotify": ""},
		})
		return
	}

	user, err := s.spotify.Me(ctx, token)
	if err != nil {
		respondError(w, err)
		return
	}

	name := fmt.Sprintf("Forgotten Gems (%s)", time.Now().Format("Jan 02, 2006"))
	description := "Your top songs from the past that you haven't listened to in a while. Curated by Rewind."

	created, err := s.spotify.CreatePlaylist(ctx, token, user.ID, name, description, false)
	if err != nil {
		respondError(w, err)
		return
	}
	if !created.OK() {
		forward(w, created)
		return
	}

	var playlist struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(created.Body, &playlist); err != nil || playlist.ID == "" {
		s.logger.Error("unexpected create-playlist response", "error", err)
		writeDetail(w, http.StatusBadGateway, "Could not fetch Spotify data.")
		return
	}

	if err := s.spotify.AddTracks(ctx, token, playlist.ID, gemURIs); err != nil {
		respondError(w, err)
		return
	}

	s.logger.Info("forgotten gems playlist created", "playlist", playlist.ID, "tracks", len(gemURIs))
	forward(w, created)
}
