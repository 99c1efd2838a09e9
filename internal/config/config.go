package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Environment string
	AppName     string
	AppVersion  string
	APIVersion  string
	ServerPort  string
	LogLevel    string

	Database DatabaseConfig
	Storage  StorageConfig
	Retry    RetryConfig
	Token    TokenConfig
	Cookie   CookieConfig
	Password PasswordConfig

	// Seed account created by cmd/seed
	DefaultUserName     string
	DefaultUserEmail    string
	DefaultUserPassword string

	// Rate limiting of login/register, disabled when RedisURL is empty
	RedisURL             string
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitBlockTime   time.Duration

	CORSAllowedOrigins []string
	MaxUploadBytes     int64
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type StorageConfig struct {
	Backend string
	DataDir string

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	S3PublicBaseURL string
}

// RetryConfig mirrors the exponential wait used around every data-access call:
// wait = Multiplier * 2^(attempt-1), clamped to [MinWait, MaxWait].
type RetryConfig struct {
	MaxAttempts int
	Multiplier  time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration
}

type TokenConfig struct {
	SecretKey string
	Algorithm string
	TTL       time.Duration
}

type CookieConfig struct {
	Name     string
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   int
	Secure   bool
}

type PasswordConfig struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func Load() (*Config, error) {
	// .env is optional: containers pass environment variables directly
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", EnvDevelopment)

	sameSite, err := parseSameSite(getEnv("SAMESITE", "lax"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: environment,
		AppName:     getEnv("APP_NAME", "Savannah Faces Data Service"),
		AppVersion:  getEnv("APP_VERSION", "0.1.0"),
		APIVersion:  getEnv("API_VERSION", "v1"),
		ServerPort:  getEnv("SERVER_PORT", ":8000"),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", DriverPostgres),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "1h"),
		},

		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", StorageLocal),
			DataDir:         getEnv("DATA_DIR", "data/images"),
			S3Endpoint:      os.Getenv("S3_ENDPOINT"),
			S3Region:        getEnv("AWS_REGION", "us-east-1"),
			S3Bucket:        os.Getenv("S3_BUCKET_NAME"),
			S3AccessKey:     os.Getenv("AWS_ACCESS_KEY_ID"),
			S3SecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
			S3UsePathStyle:  getEnvAsBool("S3_USE_PATH_STYLE", false),
			S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		},

		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("STOP_AFTER_ATTEMPTS", 3),
			Multiplier:  getEnvAsSeconds("WAIT_EXPONENTIAL_MUTIPLIER", "1"),
			MinWait:     getEnvAsSeconds("WAIT_EXPONENTIAL_MIN", "2"),
			MaxWait:     getEnvAsSeconds("WAIT_EXPONENTIAL_MAX", "30"),
		},

		Token: TokenConfig{
			SecretKey: getEnv("SECRET_KEY", "secret"),
			Algorithm: getEnv("ALGORITHM", "HS256"),
			TTL:       time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		},

		Cookie: CookieConfig{
			Name:     getEnv("COOKIE_NAME", "access_token"),
			HTTPOnly: getEnvAsBool("HTTP_ONLY", true),
			SameSite: sameSite,
			MaxAge:   getEnvAsInt("MAX_AGE", 300),
			Secure:   environment == EnvProduction,
		},

		Password: PasswordConfig{
			Memory:      uint32(getEnvAsInt("ARGON2_MEMORY_KB", 64*1024)),
			Iterations:  uint32(getEnvAsInt("ARGON2_ITERATIONS", 1)),
			Parallelism: uint8(getEnvAsInt("ARGON2_PARALLELISM", 4)),
		},

		DefaultUserName:     os.Getenv("DEFAULT_USER_NAME"),
		DefaultUserEmail:    os.Getenv("DEFAULT_USER_EMAIL"),
		DefaultUserPassword: os.Getenv("DEFAULT_USER_PASSWORD"),

		RedisURL:             os.Getenv("REDIS_URL"),
		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 20),
		RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		RateLimitBlockTime:   getEnvAsDuration("RATE_LIMIT_BLOCK_TIME", "5m"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
	}

	cfg.Database.URL = databaseURL(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL is empty"))
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for local storage"))
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET_NAME is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("STOP_AFTER_ATTEMPTS must be at least 1"))
	}
	if c.Retry.MinWait > c.Retry.MaxWait {
		errs = append(errs, errors.New("WAIT_EXPONENTIAL_MIN must not exceed WAIT_EXPONENTIAL_MAX"))
	}

	switch c.Token.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported ALGORITHM %q", c.Token.Algorithm))
	}
	if c.Token.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.IsProduction() && c.Token.SecretKey == "secret" {
		errs = append(errs, errors.New("SECRET_KEY must be changed in production"))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

// databaseURL prefers DATABASE_URL and otherwise composes a Postgres DSN from POSTGRES_* parts.
func databaseURL(cfg *Config) string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if cfg.Database.Driver == DriverSQLite {
		return "data/savannah.db"
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:   host + ":" + port,
		Path:   "/" + getEnv("POSTGRES_DB", "sautiflow"),
	}
	if cfg.Environment == EnvProduction {
		u.RawQuery = "sslmode=require"
	} else {
		u.RawQuery = "sslmode=disable"
	}
	return u.String()
}

func parseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(value) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("invalid SAMESITE value %q", value)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAsInt retrieves environment variable as int with default value
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// getEnvAsDuration retrieves environment variable as duration with default value
func getEnvAsDuration(key string, defaultVal string) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		valStr = defaultVal
	}
	duration, err := time.ParseDuration(valStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultVal)
	}
	return duration
}

// getEnvAsSeconds accepts a plain number of seconds ("2") or a Go duration ("500ms").
func getEnvAsSeconds(key string, defaultVal string) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		valStr = defaultVal
	}
	if d, err := parseSeconds(valStr); err == nil {
		return d
	}
	d, _ := parseSeconds(defaultVal)
	return d
}

func parseSeconds(value string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}

func getEnvAsList(key string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
