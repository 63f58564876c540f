package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Stats    StatsConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins string
}

// StatsConfig points the API at the directory where the ETL pipeline
// leaves its aggregated CSV files.
type StatsConfig struct {
	Dir string
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "valencia"),
			Password: getEnv("DB_PASSWORD", "valencia_dev_password"),
			Name:     getEnv("DB_NAME", "valencia_data"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
			ExpiryHours: jwtExpiry,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Stats: StatsConfig{
			Dir: getEnv("STATS_DIR", filepath.Join("data", "limpios", "estadisticas")),
		},
	}

	return cfg, nil
}

// CaptureConfig drives the periodic capture daemon. Database, Redis and
// MQTT are all optional: when unset the daemon accumulates to CSV only.
type CaptureConfig struct {
	DataDir     string
	CatalogPath string
	Interval    time.Duration
	JitterPct   float64
	MaxRetries  int
	RetryDelays []time.Duration
	HTTPTimeout time.Duration
	MetricsAddr string
	DatabaseDSN string
	RedisURL    string
	MQTTURL     string
	CompressRaw bool
	LogLevel    string
	LogFile     string
}

func LoadCaptureConfig() (*CaptureConfig, error) {
	intervalMin, err := getIntEnv("CAPTURE_INTERVAL_MIN", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_INTERVAL_MIN: %w", err)
	}

	jitterPct, err := getFloatEnv("CAPTURE_JITTER_PCT", 0.10)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_JITTER_PCT: %w", err)
	}

	maxRetries, err := getIntEnv("CAPTURE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_MAX_RETRIES: %w", err)
	}

	timeoutSec, err := getIntEnv("HTTP_TIMEOUT_SEC", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %w", err)
	}

	compressRaw, err := getBoolEnv("COMPRESS_RAW", false)
	if err != nil {
		return nil, fmt.Errorf("invalid COMPRESS_RAW: %w", err)
	}

	cfg := &CaptureConfig{
		DataDir:     getEnv("DATA_DIR", "data"),
		CatalogPath: getEnv("CATALOG_FILE", ""),
		Interval:    time.Duration(intervalMin) * time.Minute,
		JitterPct:   jitterPct,
		MaxRetries:  maxRetries,
		RetryDelays: []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		HTTPTimeout: time.Duration(timeoutSec) * time.Second,
		MetricsAddr: getEnv("METRICS_ADDR", ":8080"),
		DatabaseDSN: getEnv("DB_DSN", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MQTTURL:     getEnv("MQTT_URL", ""),
		CompressRaw: compressRaw,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

// ETLConfig locates the raw snapshot tree and the directory the
// cleaned datasets are written to. DatabaseDSN is optional; when empty
// the cleaned datasets exist only as files.
type ETLConfig struct {
	RawDir      string
	CleanDir    string
	EventsFile  string
	Interval    time.Duration
	DatabaseDSN string
	LogLevel    string
	LogFile     string
}

func LoadETLConfig() (*ETLConfig, error) {
	intervalHours, err := getIntEnv("ETL_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid ETL_INTERVAL_HOURS: %w", err)
	}

	rawDir := getEnv("DATA_DIR", "data")
	eventsFile := getEnv("EVENTS_FILE", "")
	if eventsFile == "" {
		eventsFile = filepath.Join(rawDir, "eventos", "eventos_clasificados.json")
	}

	cfg := &ETLConfig{
		RawDir:      rawDir,
		CleanDir:    getEnv("CLEAN_DIR", filepath.Join("data", "limpios")),
		EventsFile:  eventsFile,
		Interval:    time.Duration(intervalHours) * time.Hour,
		DatabaseDSN: getEnv("DB_DSN", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}
