package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/models"
)

type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_logs (id, event_type, actor_id, actor_role, resource_type, resource_id, action, success, failure_reason, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.EventType, entry.ActorID, entry.ActorRole,
		entry.ResourceType, entry.ResourceID, entry.Action, entry.Success,
		entry.FailureReason, entry.IPAddress, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// AuditLogFilter narrows List results; zero values mean no filter.
type AuditLogFilter struct {
	EventType string
	ActorID   string
	Since     time.Time
}

func (r *AuditLogRepository) List(ctx context.Context, filter AuditLogFilter, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, event_type, actor_id, actor_role, resource_type, resource_id, action, success, failure_reason, ip_address, metadata, created_at
		FROM audit_logs
		WHERE ($1 = '' OR event_type = $1)
		  AND ($2 = '' OR actor_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}

	rows, err := r.pool.Query(ctx, query, filter.EventType, filter.ActorID, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		var e models.AuditLog
		err := rows.Scan(
			&e.ID, &e.EventType, &e.ActorID, &e.ActorRole,
			&e.ResourceType, &e.ResourceID, &e.Action, &e.Success,
			&e.FailureReason, &e.IPAddress, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// DeleteOlderThan drops audit rows past the retention horizon.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
