package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/repositories"
	"github.com/campuscare/clinicdesk/internal/services"
	pkgauth "github.com/campuscare/clinicdesk/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("clinicdesk"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a database/sql connection; use the pgx stdlib adapter
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"reports",
		"audit_logs",
		"visits",
		"appointments",
		"medicines",
		"revoked_sessions",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.UserRepository,
	*repositories.SessionRevocationRepository,
	*repositories.AppointmentRepository,
	*repositories.VisitRepository,
	*repositories.MedicineRepository,
	*repositories.AuditLogRepository,
	*repositories.ReportRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewSessionRevocationRepository(db),
		repositories.NewAppointmentRepository(db),
		repositories.NewVisitRepository(db),
		repositories.NewMedicineRepository(db),
		repositories.NewAuditLogRepository(db),
		repositories.NewReportRepository(db)
}

// SeedUser inserts a confirmed staff user with a hashed password and a fresh
// code secret, returning the stored row.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password, role string) (*models.User, error) {
	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	otpSecret, err := services.NewOTPSecret("clinicdesk-test", email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp secret: %w", err)
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, email_confirmed, otp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, NOW(), NOW())
		RETURNING id, email, password_hash, name, role, email_confirmed, otp_secret, failed_login_attempts, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, uuid.New().String(), email, hashedPassword, "Test User", role, otpSecret).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.EmailConfirmed,
		&user.OTPSecret,
		&user.FailedLoginAttempts,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// SeedMedicine inserts an inventory row directly.
func SeedMedicine(ctx context.Context, pool *pgxpool.Pool, name string, stock int) (*models.Medicine, error) {
	query := `
		INSERT INTO medicines (id, name, stock, unit, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'tablet', NOW() + INTERVAL '1 year', NOW(), NOW())
		RETURNING id, name, stock, unit, expires_at, created_at, updated_at
	`

	var m models.Medicine
	err := pool.QueryRow(ctx, query, uuid.New().String(), name, stock).Scan(
		&m.ID, &m.Name, &m.Stock, &m.Unit, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert medicine: %w", err)
	}

	return &m, nil
}

// SeedAppointment inserts an appointment for the given creator.
func SeedAppointment(ctx context.Context, pool *pgxpool.Pool, studentName string, startsAt time.Time, createdBy string) (*models.Appointment, error) {
	query := `
		INSERT INTO appointments (id, student_name, starts_at, reason, created_by, created_at)
		VALUES ($1, $2, $3, 'checkup', $4, NOW())
		RETURNING id, student_name, starts_at, reason, created_by, created_at
	`

	var a models.Appointment
	err := pool.QueryRow(ctx, query, uuid.New().String(), studentName, startsAt, createdBy).Scan(
		&a.ID, &a.StudentName, &a.StartsAt, &a.Reason, &a.CreatedBy, &a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert appointment: %w", err)
	}

	return &a, nil
}
