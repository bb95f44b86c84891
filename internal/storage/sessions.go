package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// SaveSession replaces the stored auth session.
func (db *DB) SaveSession(ctx context.Context, s domain.Session) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, access_token, refresh_token, token_type, expires_at, user_id, email)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			user_id = excluded.user_id,
			email = excluded.email
	`, s.AccessToken, s.RefreshToken, s.TokenType, s.ExpiresAt.UnixMilli(), s.UserID, s.Email)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored auth session, or nil, nil when signed out.
func (db *DB) LoadSession(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	var expires int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, expires_at, user_id, email
		FROM sessions WHERE id = 1
	`).Scan(&s.AccessToken, &s.RefreshToken, &s.TokenType, &expires, &s.UserID, &s.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.ExpiresAt = fromMillis(expires)
	return &s, nil
}

// ClearSession forgets the stored auth session.
func (db *DB) ClearSession(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
