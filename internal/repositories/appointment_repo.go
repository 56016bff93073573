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

type AppointmentRepository struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepository(db *database.DB) *AppointmentRepository {
	return &AppointmentRepository{pool: db.Pool}
}

const appointmentColumns = `id, student_name, starts_at, reason, created_by, created_at`

func scanAppointmentRow(scanner rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	err := scanner.Scan(&a.ID, &a.StudentName, &a.StartsAt, &a.Reason, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func scanAppointmentRows(rows pgx.Rows) ([]*models.Appointment, error) {
	defer rows.Close()

	appointments := make([]*models.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return appointments, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) (*models.Appointment, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now()

	query := `
		INSERT INTO appointments (id, student_name, starts_at, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query, a.ID, a.StudentName, a.StartsAt, a.Reason, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return a, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return scanAppointmentRow(r.pool.QueryRow(ctx, query, id))
}

// ListByDay returns all appointments on the calendar day containing day,
// ordered by start time.
func (r *AppointmentRepository) ListByDay(ctx context.Context, day time.Time) ([]*models.Appointment, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at
	`

	rows, err := r.pool.Query(ctx, query, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}

	return scanAppointmentRows(rows)
}

// ListUpcomingDay satisfies the reminder lister: the day's schedule is enough
// because the reminder window never crosses midnight.
func (r *AppointmentRepository) ListUpcomingDay(ctx context.Context, day time.Time) ([]*models.Appointment, error) {
	return r.ListByDay(ctx, day)
}

func (r *AppointmentRepository) List(ctx context.Context, limit, offset int) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments ORDER BY starts_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}

	return scanAppointmentRows(rows)
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
