package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Sequence sources for enrollment codes.
const (
	SequenceSourceStore = "store"
	SequenceSourceClock = "clock"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Catalog  CatalogConfig
	Booking  BookingConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CatalogConfig configures the remote catalogs and their local snapshots.
// WarmupRetries is how many background re-warm attempts a catalog that failed
// the startup warmup gets.
type CatalogConfig struct {
	StudentsURL      string
	DisciplinesURL   string
	BooksURL         string
	TTL              time.Duration
	SlowThreshold    time.Duration
	HTTPTimeout      time.Duration
	WarmupTimeout    time.Duration
	WarmupRetries    int
	WarmupRetryDelay time.Duration
	MirrorEnabled    bool
	MirrorTTL        time.Duration
}

// BookingConfig tunes enrollment and reservation rules.
type BookingConfig struct {
	MaxEnrollmentsPerStudent int
	SequenceSource           string
	GuardedInsert            bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Catalog = CatalogConfig{
		StudentsURL:      v.GetString("CATALOG_STUDENTS_URL"),
		DisciplinesURL:   v.GetString("CATALOG_DISCIPLINES_URL"),
		BooksURL:         v.GetString("CATALOG_BOOKS_URL"),
		TTL:              parseDuration(v.GetString("CATALOG_TTL"), 5*time.Minute),
		SlowThreshold:    parseDuration(v.GetString("CATALOG_SLOW_THRESHOLD"), 3*time.Second),
		HTTPTimeout:      parseDuration(v.GetString("CATALOG_HTTP_TIMEOUT"), 3*time.Second),
		WarmupTimeout:    parseDuration(v.GetString("CATALOG_WARMUP_TIMEOUT"), 15*time.Second),
		WarmupRetries:    v.GetInt("CATALOG_WARMUP_RETRIES"),
		WarmupRetryDelay: parseDuration(v.GetString("CATALOG_WARMUP_RETRY_DELAY"), 10*time.Second),
		MirrorEnabled:    v.GetBool("CATALOG_MIRROR_ENABLED"),
		MirrorTTL:        parseDuration(v.GetString("CATALOG_MIRROR_TTL"), 24*time.Hour),
	}

	maxEnrollments := v.GetInt("BOOKING_MAX_ENROLLMENTS")
	if maxEnrollments <= 0 {
		maxEnrollments = 5
	}
	source := strings.ToLower(strings.TrimSpace(v.GetString("BOOKING_SEQUENCE_SOURCE")))
	if source != SequenceSourceClock {
		source = SequenceSourceStore
	}
	cfg.Booking = BookingConfig{
		MaxEnrollmentsPerStudent: maxEnrollments,
		SequenceSource:           source,
		GuardedInsert:            v.GetBool("BOOKING_GUARDED_INSERT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academic_desk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CATALOG_STUDENTS_URL", "https://rmi6vdpsq8.execute-api.us-east-2.amazonaws.com/msAluno")
	v.SetDefault("CATALOG_DISCIPLINES_URL", "https://sswfuybfs8.execute-api.us-east-2.amazonaws.com/disciplinaServico/msDisciplina")
	v.SetDefault("CATALOG_BOOKS_URL", "https://qiiw8bgxka.execute-api.us-east-2.amazonaws.com/acervo/biblioteca")
	v.SetDefault("CATALOG_TTL", "5m")
	v.SetDefault("CATALOG_SLOW_THRESHOLD", "3s")
	v.SetDefault("CATALOG_HTTP_TIMEOUT", "3s")
	v.SetDefault("CATALOG_WARMUP_TIMEOUT", "15s")
	v.SetDefault("CATALOG_WARMUP_RETRIES", 3)
	v.SetDefault("CATALOG_WARMUP_RETRY_DELAY", "10s")
	v.SetDefault("CATALOG_MIRROR_ENABLED", false)
	v.SetDefault("CATALOG_MIRROR_TTL", "24h")

	v.SetDefault("BOOKING_MAX_ENROLLMENTS", 5)
	v.SetDefault("BOOKING_SEQUENCE_SOURCE", SequenceSourceStore)
	v.SetDefault("BOOKING_GUARDED_INSERT", true)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
