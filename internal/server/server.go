// package server contains the HTTP surface of the Rewind backend: session
// middleware, Spotify proxy handlers, and the AI content endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/ai"
	"github.com/desertthunder/rewind/internal/auth"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/desertthunder/rewind/internal/spotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

const (
	// codeTTL bounds how long the browser-to-app handoff code stays redeemable.
	codeTTL = 5 * time.Minute

	// readTimeout bounds plain Spotify resource reads. Generation calls carry
	// their own, longer ceilings inside the ai package.
	readTimeout = 10 * time.Second

	playlistsLimit      = 50
	playlistTracksLimit = 100
	topItemsLimit       = 50
)

// Server wires configuration, stores, and upstream clients into an http.Handler.
type Server struct {
	config   *shared.Config
	logger   *log.Logger
	auth     *auth.Authenticator
	resolver *auth.Resolver
	sessions auth.SessionStore
	codes    auth.CodeStore
	spotify  *spotify.Client
	text     *ai.TextClient
	image    *ai.ImageClient
}

// Opts contains dependencies for creating a Server. Stores default to the
// in-memory implementations; clients default to their production endpoints.
type Opts struct {
	Config        *shared.Config
	Logger        *log.Logger
	Authenticator *auth.Authenticator
	Sessions      auth.SessionStore
	Codes         auth.CodeStore
	Spotify       *spotify.Client
	Text          *ai.TextClient
	Image         *ai.ImageClient
}

// New creates a Server from the provided options.
func New(opts Opts) *Server {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Sessions == nil {
		opts.Sessions = auth.NewMemorySessionStore()
	}
	if opts.Codes == nil {
		opts.Codes = auth.NewMemoryCodeStore()
	}
	if opts.Spotify == nil {
		opts.Spotify = spotify.NewClient(nil, opts.Logger)
	}
	if opts.Text == nil {
		opts.Text = ai.NewTextClient(opts.Config.Credentials.OpenRouter.APIKey, opts.Config.Credentials.OpenRouter.Model, opts.Logger)
	}
	if opts.Image == nil {
		opts.Image = ai.NewImageClient(opts.Config.Credentials.Clipdrop.APIKey, opts.Logger)
	}

	return &Server{
		config:   opts.Config,
		logger:   opts.Logger,
		auth:     opts.Authenticator,
		resolver: auth.NewResolver(opts.Sessions, opts.Authenticator, opts.Logger),
		sessions: opts.Sessions,
		codes:    opts.Codes,
		spotify:  opts.Spotify,
		text:     opts.Text,
		image:    opts.Image,
	}
}

// Router builds the chi router with middleware and all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(recoverer(s.logger))

	// The client is a mobile app talking through whatever network it has;
	// origin checks buy nothing here.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	limiter := newRateLimiter(s.config.Server.RateLimit, s.config.Server.RateBurst)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(limiter))
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/auth/profile", s.handleAuthProfile)
		r.Post("/auth/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/me", s.handleMe)
		r.Get("/playlists", s.handlePlaylists)
		r.Get("/playlist/{id}", s.handlePlaylistTracks)
		r.Get("/playlist/{id}/details", s.handlePlaylistDetails)
		r.Get("/me/top/{type}", s.handleTopItems)
		r.Get("/currently-playing", s.handleCurrentlyPlaying)
		r.Get("/artist/{id}", s.handleArtist)
		r.Post("/features/forgotten-gems", s.handleForgottenGems)
		r.Get("/me/ai-analysis", s.handleAIAnalysis)
		r.Post("/playlist/{id}/ai-description", s.handleAIDescription)
		r.Post("/playlist/{id}/ai-cover", s.handleAICover)
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "rewind",
		"login":   "/login",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
