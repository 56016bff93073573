package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Email    EmailConfig
	Reminder ReminderConfig
	AI       AIConfig
	Events   EventsConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	// Auth endpoints get a stricter per-IP request budget than the rest
	AuthRequestsPerMinute int
}

type AuthConfig struct {
	JWTSecret string
	// Lockout policy: after MaxLoginAttempts failures, further attempts are
	// rejected until LockoutWindow has elapsed since the last failure.
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	// Resend-code policy
	MaxResendAttempts int
	ResendCooldown    time.Duration
	ResendBlock       time.Duration
	// Emailed one-time codes
	OTPCodePeriod   time.Duration
	CleanupInterval time.Duration
}

type SessionConfig struct {
	TTL time.Duration
	// Idle timeouts per role; roles absent from the map fall back to Default.
	IdleTimeouts map[string]time.Duration
	DefaultIdle  time.Duration
	CookieSecure bool
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type ReminderConfig struct {
	BadgeLead time.Duration
	ToastLead time.Duration
	Tick      time.Duration
}

type AIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestTimeout    time.Duration
	RequestsPerMinute int
}

type EventsConfig struct {
	// Kafka audit mirroring is off unless brokers are configured.
	Brokers    []string
	AuditTopic string
}

type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "clinicdesk"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:                  getEnv("PORT", "8080"),
			Env:                   env,
			LogLevel:              getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:        parseAllowedOrigins(env),
			AuthRequestsPerMinute: getEnvAsInt("RATE_LIMIT_AUTH_RPM", 10),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			MaxLoginAttempts:  getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutWindow:     getEnvAsDuration("LOCKOUT_WINDOW", 1*time.Hour),
			MaxResendAttempts: getEnvAsInt("MAX_RESEND_ATTEMPTS", 3),
			ResendCooldown:    getEnvAsDuration("RESEND_COOLDOWN", 60*time.Second),
			ResendBlock:       getEnvAsDuration("RESEND_BLOCK", 1*time.Hour),
			OTPCodePeriod:     getEnvAsDuration("OTP_CODE_PERIOD", 5*time.Minute),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			IdleTimeouts: map[string]time.Duration{
				"admin":     getEnvAsDuration("IDLE_TIMEOUT_ADMIN", 30*time.Minute),
				"physician": getEnvAsDuration("IDLE_TIMEOUT_PHYSICIAN", 15*time.Minute),
				"nurse":     getEnvAsDuration("IDLE_TIMEOUT_NURSE", 15*time.Minute),
			},
			DefaultIdle:  getEnvAsDuration("IDLE_TIMEOUT_DEFAULT", 3*time.Minute),
			CookieSecure: env == "production",
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@clinicdesk.local"),
		},
		Reminder: ReminderConfig{
			BadgeLead: getEnvAsDuration("REMINDER_BADGE_LEAD", 15*time.Minute),
			ToastLead: getEnvAsDuration("REMINDER_TOAST_LEAD", 5*time.Minute),
			Tick:      getEnvAsDuration("REMINDER_TICK", 60*time.Second),
		},
		AI: AIConfig{
			BaseURL:           getEnv("AI_BASE_URL", ""),
			APIKey:            getEnv("AI_API_KEY", ""),
			Model:             getEnv("AI_MODEL", "gpt-4o-mini"),
			RequestTimeout:    getEnvAsDuration("AI_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerMinute: getEnvAsInt("AI_REQUESTS_PER_MINUTE", 6),
		},
		Events: EventsConfig{
			Brokers:    splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "clinicdesk.audit"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("TRACING_ENABLED", false),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "clinicdesk-api"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4318"),
			SampleRate:   getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Auth.MaxLoginAttempts < 1 {
		return nil, fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the session secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// IdleTimeoutFor resolves the inactivity timeout for a role. Zero means the
// monitor is disabled for that principal.
func (c *SessionConfig) IdleTimeoutFor(role string) time.Duration {
	if d, ok := c.IdleTimeouts[role]; ok {
		return d
	}
	return c.DefaultIdle
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
