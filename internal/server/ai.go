package server

import (
	"context"
	"net/http"
	"time"

	"github.com/desertthunder/rewind/internal/ai"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/desertthunder/rewind/internal/spotify"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const (
	analysisArtistCount   = 5
	analysisTrackCount    = 10
	descriptionTrackCount = 15
	coverPromptMaxTokens  = 50
)

// handleAIAnalysis generates a listening-habits writeup from the user's top
// artists and tracks.
func (s *Server) handleAIAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.text.Configured() {
		respondError(w, shared.ErrServiceNotConfigured)
		return
	}

	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}
	token := rec.AccessToken

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var artists []spotify.Artist
	var tracks []spotify.Track
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		artists, err = s.spotify.TopArtists(gctx, token, "medium_term", analysisArtistCount)
		return err
	})
	g.Go(func() error {
		var err error
		tracks, err = s.spotify.TopTracks(gctx, token, "medium_term", analysisTrackCount)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(w, err)
		return
	}

	artistNames := make([]string, 0, len(artists))
	for _, artist := range artists {
		artistNames = append(artistNames, artist.Name)
	}

	var trackLines []string
	for _, track := range tracks {
		if track.Name == "" || len(track.Artists) == 0 {
			continue
		}
		names := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			names = append(names, artist.Name)
		}
		trackLines = append(trackLines, ai.FormatTrack(track.Name, names))
	}

	text, err := s.text.Complete(ctx, ai.TasteAnalysisPrompt(artistNames, trackLines), 0)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"analysis": ai.LastSentence(text)})
}

// handleAIDescription generates a playlist description and writes it back to
// Spotify. The response carries the generated text whether or not the
// write-back succeeded; the next details fetch shows the truth.
func (s *Server) handleAIDescription(w http.ResponseWriter, r *http.Request) {
	if !s.text.Configured() {
		respondError(w, shared.ErrServiceNotConfigured)
		return
	}

	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}
	token := rec.AccessToken
	playlistID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	names, err := s.spotify.PlaylistTrackNames(ctx, token, playlistID, descriptionTrackCount)
	if err != nil {
		respondError(w, err)
		return
	}

	text, err := s.text.Complete(ctx, ai.DescriptionPrompt(names), 0)
	if err != nil {
		respondError(w, err)
		return
	}
	description := ai.LastSentence(text)

	if err := s.spotify.UpdateDetails(ctx, token, playlistID, description); err != nil {
		s.logger.Warn("description write-back failed", "playlist", playlistID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"description": description})
}

// handleAICover generates cover art for a playlist and uploads it: text model
// writes a visual prompt from the playlist name, image model renders it, the
// result is compressed under Spotify's upload ceiling, then uploaded.
func (s *Server) handleAICover(w http.ResponseWriter, r *http.Request) {
	if !s.text.Configured() || !s.image.Configured() {
		writeDetail(w, http.StatusInternalServerError, "AI services are not configured.")
		return
	}

	rec, ok := sessionFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid session token")
		return
	}
	token := rec.AccessToken
	playlistID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Minute)
	defer cancel()

	playlist, err := s.spotify.Playlist(ctx, token, playlistID)
	if err != nil {
		respondError(w, err)
		return
	}

	visualPrompt, err := s.text.Complete(ctx, ai.CoverArtPrompt(playlist.Name), coverPromptMaxTokens)
	if err != nil {
		respondError(w, err)
		return
	}

	imageBytes, err := s.image.Generate(ctx, visualPrompt)
	if err != nil {
		respondError(w, err)
		return
	}

	cover, err := ai.FitJPEG(imageBytes, ai.MaxCoverBytes)
	if err != nil {
		s.logger.Error("cover compression failed", "playlist", playlistID, "error", err)
		respondError(w, err)
		return
	}

	if err := s.spotify.UploadCover(ctx, token, playlistID, cover); err != nil {
		respondError(w, err)
		return
	}

	// Spotify processes the upload asynchronously; give it a moment before
	// reading the new image URL back.
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}

	var imageURL any
	if updated, err := s.spotify.Playlist(ctx, token, playlistID); err == nil && len(updated.Images) > 0 {
		imageURL = updated.Images[0].URL
	}

	s.logger.Info("cover art updated", "playlist", playlistID, "bytes", len(cover))
	writeJSON(w, http.StatusOK, map[string]any{"imageUrl": imageURL})
}
