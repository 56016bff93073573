package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/models"
)

type VisitRepository struct {
	db *database.DB
}

func NewVisitRepository(db *database.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

const visitColumns = `id, student_name, visited_at, reason, treatment, medicine_id, quantity, recorded_by, created_at`

func scanVisitRow(scanner rowScanner) (*models.Visit, error) {
	var v models.Visit
	err := scanner.Scan(
		&v.ID, &v.StudentName, &v.VisitedAt, &v.Reason, &v.Treatment,
		&v.MedicineID, &v.Quantity, &v.RecordedBy, &v.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &v, nil
}

func scanVisitRows(rows pgx.Rows) ([]*models.Visit, error) {
	defer rows.Close()

	visits := make([]*models.Visit, 0)
	for rows.Next() {
		v, err := scanVisitRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return visits, nil
}

// Create inserts the visit and, when medicine was dispensed, decrements the
// medicine stock in the same transaction so a short stock never half-records
// a visit.
func (r *VisitRepository) Create(ctx context.Context, visit *models.Visit, medicines *MedicineRepository) (*models.Visit, error) {
	visit.ID = uuid.New().String()
	visit.CreatedAt = time.Now()

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if visit.MedicineID != nil && visit.Quantity > 0 {
			if err := medicines.DecrementStock(ctx, tx, *visit.MedicineID, visit.Quantity); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO visits (id, student_name, visited_at, reason, treatment, medicine_id, quantity, recorded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		_, err := tx.Exec(ctx, query,
			visit.ID, visit.StudentName, visit.VisitedAt, visit.Reason, visit.Treatment,
			visit.MedicineID, visit.Quantity, visit.RecordedBy, visit.CreatedAt,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}

	return visit, nil
}

func (r *VisitRepository) GetByID(ctx context.Context, id string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`
	return scanVisitRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *VisitRepository) List(ctx context.Context, limit, offset int) ([]*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits ORDER BY visited_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}

	return scanVisitRows(rows)
}

// ListBetween returns visits in [from, to), oldest first. Report generation
// reads its source data through this.
func (r *VisitRepository) ListBetween(ctx context.Context, from, to time.Time) ([]*models.Visit, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visits
		WHERE visited_at >= $1 AND visited_at < $2
		ORDER BY visited_at
	`

	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}

	return scanVisitRows(rows)
}

func (r *VisitRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
