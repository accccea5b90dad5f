package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/rewind/internal/shared"
)

// SQLiteSessionStore implements [SessionStore] on the sessions table, so
// mobile logins survive a server restart. Requires migrations to have run
// ([shared.RunMigrations]).
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore creates a session store backed by the given database connection.
func NewSQLiteSessionStore(db *sql.DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

func (s *SQLiteSessionStore) Put(token string, rec TokenRecord) error {
	query := `
		INSERT INTO sessions (token, access_token, refresh_token, expires_at) VALUES (?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, token, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (s *SQLiteSessionStore) Get(token string) (TokenRecord, bool, error) {
	query := `
		SELECT access_token, refresh_token, expires_at
		FROM sessions
		WHERE token = ?
	`

	var rec TokenRecord
	err := s.db.QueryRow(query, token).Scan(&rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return TokenRecord{}, false, nil
	}
	if err != nil {
		return TokenRecord{}, false, fmt.Errorf("failed to query session: %w", err)
	}

	return rec, true, nil
}

func (s *SQLiteSessionStore) Update(token string, rec TokenRecord) error {
	query := `
		UPDATE sessions
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE token = ?
	`

	result, err := s.db.Exec(query, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, time.Now(), token)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUnknownSession, shared.Truncate(token, 6))
	}

	return nil
}

func (s *SQLiteSessionStore) Delete(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
