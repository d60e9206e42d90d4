package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Session  SessionConfig
	Login    LoginConfig
	Alert    AlertConfig
	Admin    AdminConfig
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

// RedisConfig points at the store shared by every replica for rate limiting and
// the existence cache
type RedisConfig struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Per-IP throttle in front of /auth/login, independent of the per-email limiter
	LoginRequestsPerMinute int
	TrustedProxies         []string // CIDR ranges whose X-Forwarded-For is honored
	CORSAllowedOrigins     []string
}

type SessionConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

// LoginConfig enumerates every option recognized by the authorize pipeline
type LoginConfig struct {
	RateLimitMax          int           // attempts allowed per email per window
	RateLimitWindow       time.Duration // fixed window length
	ExistenceCacheTTLSecs int           // whole seconds an eligibility verdict is cached
	MinDelay              time.Duration // lower bound of the randomized total latency
	MaxDelay              time.Duration // upper bound of the randomized total latency
	AuthorizeTimeout      time.Duration // hard cap on backend work, must exceed MaxDelay
	PasswordHashCost      int           // bcrypt cost
}

// ExistenceCacheTTL returns the cache TTL as a duration
func (c LoginConfig) ExistenceCacheTTL() time.Duration {
	return time.Duration(c.ExistenceCacheTTLSecs) * time.Second
}

type AlertConfig struct {
	AWSRegion   string
	FromAddress string
	ToAddress   string
	MinInterval time.Duration
}

// AdminConfig bootstraps the first admin account on startup when both fields are set
type AdminConfig struct {
	Email    string
	Password string
}

// Enabled reports whether ops alerts should be delivered by email
func (c AlertConfig) Enabled() bool {
	return c.ToAddress != "" && c.FromAddress != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addrs:        getEnvAsList("REDIS_ADDRS", []string{"localhost:6379"}),
			Username:     getEnv("REDIS_USERNAME", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE_PER_IP", 30),
			TrustedProxies:         getEnvAsList("TRUSTED_PROXIES", nil),
			CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Session: SessionConfig{
			Secret:   getEnv("SESSION_SECRET", ""),
			TokenTTL: getEnvAsDuration("SESSION_TOKEN_TTL", 24*time.Hour),
			Issuer:   getEnv("SESSION_ISSUER", "turnstile"),
		},
		Login: LoginConfig{
			RateLimitMax:          getEnvAsInt("LOGIN_RATE_LIMIT_MAX", 5),
			RateLimitWindow:       getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 1*time.Minute),
			ExistenceCacheTTLSecs: getEnvAsInt("LOGIN_EXISTENCE_CACHE_TTL_SECONDS", 600),
			MinDelay:              getEnvAsDuration("LOGIN_MIN_DELAY", 500*time.Millisecond),
			MaxDelay:              getEnvAsDuration("LOGIN_MAX_DELAY", 800*time.Millisecond),
			AuthorizeTimeout:      getEnvAsDuration("LOGIN_AUTHORIZE_TIMEOUT", 5*time.Second),
			PasswordHashCost:      getEnvAsInt("PASSWORD_HASH_COST", 12),
		},
		Alert: AlertConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERT_EMAIL_FROM", ""),
			ToAddress:   getEnv("ALERT_EMAIL_TO", ""),
			MinInterval: getEnvAsDuration("ALERT_MIN_INTERVAL", 5*time.Minute),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools such as cmd/migrate
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabaseConfig()
	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "turnstile"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}

// Validate checks cross-field constraints that would otherwise weaken the login pipeline
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if err := validateSessionSecret(c.Session.Secret, c.Server.Env); err != nil {
		return err
	}
	if c.Session.TokenTTL <= 0 {
		return fmt.Errorf("SESSION_TOKEN_TTL must be positive")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("REDIS_ADDRS is required")
	}
	if c.Server.LoginRequestsPerMinute < 1 {
		return fmt.Errorf("LOGIN_REQUESTS_PER_MINUTE_PER_IP must be at least 1 (got %d)", c.Server.LoginRequestsPerMinute)
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return c.Login.Validate()
}

// Validate enforces the relationships between the login options
func (c LoginConfig) Validate() error {
	if c.RateLimitMax < 1 {
		return fmt.Errorf("LOGIN_RATE_LIMIT_MAX must be at least 1 (got %d)", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT_WINDOW must be positive")
	}
	if c.ExistenceCacheTTLSecs < 1 {
		return fmt.Errorf("LOGIN_EXISTENCE_CACHE_TTL_SECONDS must be at least 1 (got %d)", c.ExistenceCacheTTLSecs)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("LOGIN_MIN_DELAY (%s) must be non-negative and not exceed LOGIN_MAX_DELAY (%s)", c.MinDelay, c.MaxDelay)
	}
	if c.AuthorizeTimeout <= c.MaxDelay {
		return fmt.Errorf("LOGIN_AUTHORIZE_TIMEOUT (%s) must exceed LOGIN_MAX_DELAY (%s)", c.AuthorizeTimeout, c.MaxDelay)
	}
	if c.PasswordHashCost < bcrypt.MinCost || c.PasswordHashCost > bcrypt.MaxCost {
		return fmt.Errorf("PASSWORD_HASH_COST must be between %d and %d (got %d)", bcrypt.MinCost, bcrypt.MaxCost, c.PasswordHashCost)
	}
	return nil
}

// validateSessionSecret enforces minimum security standards for the token signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
