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

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{pool: db.Pool}
}

const reportColumns = `id, kind, period_from, period_to, content, model, created_by, created_at`

func (r *ReportRepository) Create(ctx context.Context, report *models.Report) (*models.Report, error) {
	report.ID = uuid.New().String()
	report.CreatedAt = time.Now()

	query := `
		INSERT INTO reports (id, kind, period_from, period_to, content, model, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		report.ID, report.Kind, report.PeriodFrom, report.PeriodTo,
		report.Content, report.Model, report.CreatedBy, report.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return report, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	var report models.Report
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&report.ID, &report.Kind, &report.PeriodFrom, &report.PeriodTo,
		&report.Content, &report.Model, &report.CreatedBy, &report.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &report, nil
}

func (r *ReportRepository) List(ctx context.Context, kind string, limit, offset int) ([]*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*models.Report, 0)
	for rows.Next() {
		var report models.Report
		err := rows.Scan(
			&report.ID, &report.Kind, &report.PeriodFrom, &report.PeriodTo,
			&report.Content, &report.Model, &report.CreatedBy, &report.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return reports, nil
}
