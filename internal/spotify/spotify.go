// Package spotify implements a Web API client for the endpoints the mobile
// app consumes through this server.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/shared"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// Field masks keep proxied payloads small by asking Spotify for only the data
// the mobile screens render.
const (
	TopTracksFields      = "items(id,name,duration_ms,album(images),artists(name))"
	TopArtistsFields     = "items(id,name,genres,images)"
	PlaylistTracksFields = "items(track(id,name,album(images),artists(name)))"
)

type followers struct {
	Total int `json:"total"`
}

// User represents a Spotify user profile.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"`
	Followers   followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []Image  `json:"images"`
	URI    string   `json:"uri"`
}

// Album represents a Spotify album, trimmed to proxied fields.
type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int      `json:"duration_ms"`
	URI        string   `json:"uri"`
}

// Playlist represents a Spotify playlist.
type Playlist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Public       bool              `json:"public"`
	Images       []Image           `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
	URI          string            `json:"uri"`
}

// PlaylistTrack represents a track within a playlist context.
type PlaylistTrack struct {
	Track Track `json:"track"`
}

// TopTracksPage is a page of the user's top tracks.
type TopTracksPage struct {
	Items []Track `json:"items"`
}

// TopArtistsPage is a page of the user's top artists.
type TopArtistsPage struct {
	Items []Artist `json:"items"`
}

// PlaylistTracksPage is a page of a playlist's tracks.
type PlaylistTracksPage struct {
	Items []PlaylistTrack `json:"items"`
}

// Response carries an upstream status and body for 1:1 passthrough to the
// mobile client. Non-2xx responses are returned, not converted to errors, so
// proxy handlers can forward Spotify's own status codes.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream responded with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues authenticated requests against the Spotify Web API.
// Access tokens are supplied per call; the client itself holds no session state.
type Client struct {
	// BaseURL is overridable for tests; defaults to the public API.
	BaseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a Spotify API client. The HTTP client defaults to one
// with a 60s ceiling; callers bound individual reads with context deadlines.
func NewClient(httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Client{BaseURL: spotifyBaseURL, httpClient: httpClient, logger: logger}
}

// request performs an authenticated call and returns the raw upstream response.
func (c *Client) request(ctx context.Context, token, method, endpoint string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("spotify API error", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Get performs a raw GET for passthrough handlers.
func (c *Client) Get(ctx context.Context, token, endpoint string) (*Response, error) {
	return c.request(ctx, token, http.MethodGet, endpoint, nil, "")
}

// postJSON performs a JSON-bodied request and returns the raw response.
func (c *Client) postJSON(ctx context.Context, token, method, endpoint string, payload any) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.request(ctx, token, method, endpoint, bytes.NewReader(data), "application/json")
}

// decode performs a GET and unmarshals a 2xx response into result.
func (c *Client) decode(ctx context.Context, token, endpoint string, result any) error {
	resp, err := c.Get(ctx, token, endpoint)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Me retrieves the current authenticated user's profile.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.decode(ctx, token, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// MeRaw retrieves the profile as a raw response for passthrough.
func (c *Client) MeRaw(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, token, "/me")
}

// Playlists retrieves the current user's playlists as a raw response.
func (c *Client) Playlists(ctx context.Context, token string, limit int) (*Response, error) {
	return c.Get(ctx, token, fmt.Sprintf("/me/playlists?limit=%d", limit))
}

// Playlist retrieves a playlist by ID.
func (c *Client) Playlist(ctx context.Context, token, playlistID string) (*Playlist, error) {
	var playlist Playlist
	if err := c.decode(ctx, token, "/playlists/"+url.PathEscape(playlistID), &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistRaw retrieves the full playlist object as a raw response.
func (c *Client) PlaylistRaw(ctx context.Context, token, playlistID string) (*Response, error) {
	return c.Get(ctx, token, "/playlists/"+url.PathEscape(playlistID))
}

// PlaylistTracks retrieves a playlist's tracks with an optional field mask.
func (c *Client) PlaylistTracks(ctx context.Context, token, playlistID string, limit int, fields string) (*Response, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d", url.PathEscape(playlistID), limit)
	if fields != "" {
		endpoint += "&fields=" + url.QueryEscape(fields)
	}
	return c.Get(ctx, token, endpoint)
}

// PlaylistTrackNames retrieves up to limit track names from a playlist,
// skipping entries whose track object is null (removed or local files).
func (c *Client) PlaylistTrackNames(ctx context.Context, token, playlistID string, limit int) ([]string, error) {
	var page struct {
		Items []struct {
			Track *Track `json:"track"`
		} `json:"items"`
	}
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d", url.PathEscape(playlistID), limit)
	if err := c.decode(ctx, token, endpoint, &page); err != nil {
		return nil, err
	}

	var names []string
	for _, item := range page.Items {
		if item.Track != nil && item.Track.Name != "" {
			names = append(names, item.Track.Name)
		}
	}
	return names, nil
}

// TopRaw retrieves the user's top artists or tracks as a raw response with a
// field mask applied.
func (c *Client) TopRaw(ctx context.Context, token, itemType, timeRange string, limit int, fields string) (*Response, error) {
	endpoint := fmt.Sprintf("/me/top/%s?limit=%d&time_range=%s", url.PathEscape(itemType), limit, url.QueryEscape(timeRange))
	if fields != "" {
		endpoint += "&fields=" + url.QueryEscape(fields)
	}
	return c.Get(ctx, token, endpoint)
}

// TopTracks retrieves the user's top tracks for a time range.
func (c *Client) TopTracks(ctx context.Context, token, timeRange string, limit int) ([]Track, error) {
	var page TopTracksPage
	endpoint := fmt.Sprintf("/me/top/tracks?time_range=%s&limit=%d", url.QueryEscape(timeRange), limit)
	if err := c.decode(ctx, token, endpoint, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// TopArtists retrieves the user's top artists for a time range.
func (c *Client) TopArtists(ctx context.Context, token, timeRange string, limit int) ([]Artist, error) {
	var page TopArtistsPage
	endpoint := fmt.Sprintf("/me/top/artists?time_range=%s&limit=%d", url.QueryEscape(timeRange), limit)
	if err := c.decode(ctx, token, endpoint, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Artist retrieves an artist by ID as a raw response.
func (c *Client) Artist(ctx context.Context, token, artistID string) (*Response, error) {
	return c.Get(ctx, token, "/artists/"+url.PathEscape(artistID))
}

// CurrentlyPlaying retrieves the user's playback state as a raw response.
// Spotify returns 204 when nothing is playing; callers normalize that.
func (c *Client) CurrentlyPlaying(ctx context.Context, token, market string) (*Response, error) {
	return c.Get(ctx, token, "/me/player/currently-playing?market="+url.QueryEscape(market))
}

// CreatePlaylist creates an empty playlist for the user and returns the raw
// created-playlist response.
func (c *Client) CreatePlaylist(ctx context.Context, token, userID, name, description string, public bool) (*Response, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}
	return c.postJSON(ctx, token, http.MethodPost, fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID)), payload)
}

// AddTracks appends track URIs to a playlist.
func (c *Client) AddTracks(ctx context.Context, token, playlistID string, uris []string) error {
	resp, err := c.postJSON(ctx, token, http.MethodPost, fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID)), map[string]any{"uris": uris})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}
	return nil
}

// UpdateDetails changes a playlist's description.
func (c *Client) UpdateDetails(ctx context.Context, token, playlistID, description string) error {
	resp, err := c.postJSON(ctx, token, http.MethodPut, "/playlists/"+url.PathEscape(playlistID), map[string]any{"description": description})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}
	return nil
}

// UploadCover replaces a playlist's cover image with the given JPEG bytes.
// The API takes the image base64-encoded in the request body and answers 202
// (sometimes 200) on success.
func (c *Client) UploadCover(ctx context.Context, token, playlistID string, jpeg []byte) error {
	encoded := base64.StdEncoding.EncodeToString(jpeg)
	resp, err := c.request(ctx, token, http.MethodPut, fmt.Sprintf("/playlists/%s/images", url.PathEscape(playlistID)), strings.NewReader(encoded), "image/jpeg")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: cover upload status %d: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}
	return nil
}
