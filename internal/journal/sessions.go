package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRow is a persisted sign-in.
type SessionRow struct {
	Name      string
	Token     string
	AdminID   string
	Username  string
	Email     string
	ExpiresAt time.Time
}

// PutSession inserts or replaces the session stored under row.Name.
func (j *Journal) PutSession(ctx context.Context, row SessionRow) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (name, token, admin_id, username, email, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			admin_id = excluded.admin_id,
			username = excluded.username,
			email = excluded.email,
			expires_at = excluded.expires_at
	`, row.Name, row.Token, row.AdminID, row.Username, row.Email, row.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession loads the session stored under name. The bool is false when
// none is stored. Expiry is the caller's concern.
func (j *Journal) GetSession(ctx context.Context, name string) (SessionRow, bool, error) {
	var (
		row       SessionRow
		expiresMS int64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT name, token, admin_id, username, email, expires_at
		FROM sessions WHERE name = ?
	`, name).Scan(&row.Name, &row.Token, &row.AdminID, &row.Username, &row.Email, &expiresMS)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, false, nil
	}
	if err != nil {
		return SessionRow{}, false, fmt.Errorf("get session: %w", err)
	}
	row.ExpiresAt = time.UnixMilli(expiresMS).UTC()
	return row, true, nil
}

// DeleteSession removes the session stored under name, if any.
func (j *Journal) DeleteSession(ctx context.Context, name string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
