package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/models"
)

type MedicineRepository struct {
	pool *pgxpool.Pool
}

func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{pool: db.Pool}
}

const medicineColumns = `id, name, stock, unit, expires_at, created_at, updated_at`

func scanMedicineRow(scanner rowScanner) (*models.Medicine, error) {
	var m models.Medicine
	err := scanner.Scan(&m.ID, &m.Name, &m.Stock, &m.Unit, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &m, nil
}

func scanMedicineRows(rows pgx.Rows) ([]*models.Medicine, error) {
	defer rows.Close()

	medicines := make([]*models.Medicine, 0)
	for rows.Next() {
		m, err := scanMedicineRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medicine: %w", err)
		}
		medicines = append(medicines, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return medicines, nil
}

func (r *MedicineRepository) Create(ctx context.Context, m *models.Medicine) (*models.Medicine, error) {
	m.ID = uuid.New().String()
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `
		INSERT INTO medicines (id, name, stock, unit, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query, m.ID, m.Name, m.Stock, m.Unit, m.ExpiresAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return m, nil
}

func (r *MedicineRepository) GetByID(ctx context.Context, id string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = $1`
	return scanMedicineRow(r.pool.QueryRow(ctx, query, id))
}

func (r *MedicineRepository) List(ctx context.Context, limit, offset int) ([]*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines ORDER BY name LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query medicines: %w", err)
	}

	return scanMedicineRows(rows)
}

// ListLowStock returns medicines at or below the given stock threshold.
func (r *MedicineRepository) ListLowStock(ctx context.Context, threshold int) ([]*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE stock <= $1 ORDER BY stock`

	rows, err := r.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query low-stock medicines: %w", err)
	}

	return scanMedicineRows(rows)
}

func (r *MedicineRepository) Update(ctx context.Context, m *models.Medicine) error {
	query := `
		UPDATE medicines
		SET name = $2, stock = $3, unit = $4, expires_at = $5, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, m.ID, m.Name, m.Stock, m.Unit, m.ExpiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DecrementStock atomically reduces stock within the caller's transaction,
// failing with ErrInsufficientStock when the balance would go negative.
func (r *MedicineRepository) DecrementStock(ctx context.Context, tx pgx.Tx, id string, quantity int) error {
	query := `
		UPDATE medicines
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`

	result, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		// Either the medicine is unknown or the stock is short; disambiguate.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM medicines WHERE id = $1)`, id).Scan(&exists); err != nil {
			return database.MapPostgresError(err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrInsufficientStock
	}
	return nil
}

func (r *MedicineRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
