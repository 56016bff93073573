package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/clinicdesk/internal/database"
)

type SessionRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRevocationRepository(db *database.DB) *SessionRevocationRepository {
	return &SessionRevocationRepository{pool: db.Pool}
}

// RevokeSession adds a session id to the revocation list. expiresAt should
// match the token's own expiry; rows past it are swept by the cleanup job.
func (r *SessionRevocationRepository) RevokeSession(ctx context.Context, sid, userID string, expiresAt time.Time, reason string) error {
	query := `
		INSERT INTO revoked_sessions (id, sid, user_id, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sid) DO NOTHING
	`

	id := uuid.New().String()
	_, err := r.pool.Exec(ctx, query, id, sid, userID, expiresAt, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// IsSessionRevoked checks if a session id is in the revocation list
func (r *SessionRevocationRepository) IsSessionRevoked(ctx context.Context, sid string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE sid = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, sid).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// CleanupExpired removes revocation rows whose sessions have expired anyway
func (r *SessionRevocationRepository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
