package auth

import "time"

// SessionStore maps opaque mobile session tokens to their Spotify token
// records. Sessions live until explicit logout; there is no absolute expiry.
//
// Implementations must be safe for concurrent use. [MemorySessionStore] keeps
// sessions in process memory (lost on restart); [SQLiteSessionStore] persists
// them. Deployments that scale past one instance should back this interface
// with an external cache instead.
type SessionStore interface {
	// Put stores a record under a new session token.
	Put(token string, rec TokenRecord) error
	// Get returns the record for a session token, reporting whether it exists.
	Get(token string) (TokenRecord, bool, error)
	// Update replaces the record under an existing token. Updating an absent
	// token is an error so a refresh can never resurrect a logged-out session.
	Update(token string, rec TokenRecord) error
	// Delete removes a session. Deleting an unknown token is not an error.
	Delete(token string) error
}

// CodeStore holds short-lived one-time handoff codes bridging the browser
// OAuth callback to the mobile app deep link.
type CodeStore interface {
	// Put stores a pending record under a one-time code with the given TTL.
	Put(code string, rec TokenRecord, ttl time.Duration) error
	// TakeIfValid atomically looks up and removes a code. An expired entry is
	// removed but reported absent, so a code can never be redeemed twice nor
	// after its TTL.
	TakeIfValid(code string) (TokenRecord, bool, error)
}
