package ai

import (
	"fmt"
	"strings"
)

// FormatTrack renders a track as "'Name' by Artist, Artist" for prompts.
func FormatTrack(name string, artists []string) string {
	return fmt.Sprintf("'%s' by %s", name, strings.Join(artists, ", "))
}

// TasteAnalysisPrompt builds the listening-habits prompt from the user's top
// artists and top tracks (already formatted via [FormatTrack]).
func TasteAnalysisPrompt(topArtists, topTracks []string) string {
	return fmt.Sprintf(
		"- Top 5 Artists: %s\n- Top 10 Tracks: %s\n\n"+
			"Write a witty, friendly ~100-word summary of this user's listening habits. "+
			"Use light humor (no profanity), mention one clear observation (favorite artist or mood), "+
			"and keep it punchy and personable. For mentioning artists, primarily use the Top 5 artists, "+
			"but in case you are referring to a particular song or trying to associate an artist with a song, "+
			"then you can mention the artist of that particular song. "+
			"Keep output under 100 words (NOTE: do not mention the number of words used in your output).",
		strings.Join(topArtists, ", "), strings.Join(topTracks, "; "))
}

// DescriptionPrompt builds the playlist-description prompt from track names.
func DescriptionPrompt(trackNames []string) string {
	return fmt.Sprintf(
		"Playlist songs: %s. Write a short, punchy 40-60 word playlist description "+
			"that sells the vibe and suggests when to play it.",
		strings.Join(trackNames, "; "))
}

// CoverArtPrompt builds the prompt asking the text model for a visual
// description the image model can render.
func CoverArtPrompt(playlistName string) string {
	return fmt.Sprintf(
		"Based on a playlist named '%s', write a 15-word visually descriptive prompt "+
			"for an image AI to generate a cover art. Focus on mood and style. No text in the image.",
		playlistName)
}
