package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Outcome describes what session resolution did about token freshness.
//
// RefreshFailed is an explicit state rather than a swallowed error: resolution
// proceeds with the stale record and the downstream Spotify call surfaces the
// 401. A single transient refresh failure must not evict an otherwise valid
// session.
type Outcome int

const (
	// RefreshNotNeeded means the record was still fresh.
	RefreshNotNeeded Outcome = iota
	// Refreshed means a new access token replaced the stored record.
	Refreshed
	// RefreshFailed means refresh was attempted and rejected; the stale
	// record is returned anyway.
	RefreshFailed
)

func (o Outcome) String() string {
	switch o {
	case Refreshed:
		return "refreshed"
	case RefreshFailed:
		return "refresh_failed"
	default:
		return "not_needed"
	}
}

// Refresher mints a fresh token record from an expired one.
// Satisfied by [Authenticator].
type Refresher interface {
	Refresh(ctx context.Context, rec TokenRecord) (TokenRecord, error)
}

// Resolver turns a bearer session token into a usable [TokenRecord],
// refreshing it first when expired.
//
// Refreshes for the same session token are serialized through a singleflight
// group, so two concurrent requests that both observe an expired token share
// one refresh call instead of racing to a last-writer-wins update that could
// invalidate a rotated refresh token.
type Resolver struct {
	sessions  SessionStore
	refresher Refresher
	group     singleflight.Group
	logger    *log.Logger
	now       func() time.Time
}

// NewResolver creates a Resolver over the given store and refresher.
func NewResolver(sessions SessionStore, refresher Refresher, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Resolver{sessions: sessions, refresher: refresher, logger: logger, now: time.Now}
}

// ParseBearer extracts the credential from an `Authorization: Bearer <token>`
// header value. The header must be exactly the two-token bearer form.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", shared.ErrMissingAuthHeader
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: must be 'Bearer <token>'", shared.ErrMalformedAuthHeader)
	}

	return parts[1], nil
}

type flightResult struct {
	rec       TokenRecord
	refreshed bool
}

// Resolve looks up the session and returns its (possibly refreshed) record.
//
// Errors are limited to unknown sessions and store failures; a rejected
// refresh is reported through the [RefreshFailed] outcome instead.
func (r *Resolver) Resolve(ctx context.Context, token string) (TokenRecord, Outcome, error) {
	rec, ok, err := r.sessions.Get(token)
	if err != nil {
		return TokenRecord{}, RefreshNotNeeded, fmt.Errorf("session lookup failed: %w", err)
	}
	if !ok {
		return TokenRecord{}, RefreshNotNeeded, fmt.Errorf("%w: %s", shared.ErrUnknownSession, shared.Truncate(token, 6))
	}

	if !rec.Expired(r.now()) {
		return rec, RefreshNotNeeded, nil
	}

	v, err, _ := r.group.Do(token, func() (any, error) {
		// Re-read inside the flight: a concurrent request may have refreshed
		// (or logged out) this session while we waited on the group.
		cur, ok, err := r.sessions.Get(token)
		if err != nil {
			return nil, fmt.Errorf("session lookup failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrUnknownSession, shared.Truncate(token, 6))
		}
		if !cur.Expired(r.now()) {
			return flightResult{rec: cur, refreshed: false}, nil
		}

		fresh, err := r.refresher.Refresh(ctx, cur)
		if err != nil {
			return nil, err
		}
		if err := r.sessions.Update(token, fresh); err != nil {
			return nil, err
		}
		return flightResult{rec: fresh, refreshed: true}, nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrUnknownSession) {
			return TokenRecord{}, RefreshNotNeeded, err
		}
		r.logger.Warn("token refresh failed, continuing with stale token",
			"token", shared.Truncate(token, 6), "error", err)
		return rec, RefreshFailed, nil
	}

	result := v.(flightResult)
	if result.refreshed {
		r.logger.Info("token refresh successful", "token", shared.Truncate(token, 6))
		return result.rec, Refreshed, nil
	}
	return result.rec, RefreshNotNeeded, nil
}
