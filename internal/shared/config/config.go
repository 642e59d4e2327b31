package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Ledger drivers
const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Registry  RegistryConfig
	Batch     BatchConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Firebase  FirebaseConfig
	Reporting ReportingConfig
	Telemetry TelemetryConfig
	Location  *time.Location
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LedgerConfig struct {
	Driver      string
	AutoMigrate bool
	// RetryDelay is how long the compensation listener waits after a
	// notification before replaying the outbox.
	RetryDelay time.Duration
}

type RegistryConfig struct {
	URL           string
	CallTimeout   time.Duration
	FailureRate   float64
	MinRequests   int
	OpenTimeout   time.Duration
	HalfOpenCalls int
	Interval      time.Duration
}

type BatchConfig struct {
	Workers int
}

type SchedulerConfig struct {
	Enabled           bool
	Monthly           string
	CompensationTimes []string
	CompensationLimit int
	WorkerCount       int
	JobDelay          time.Duration
	QueueSize         int
	RunOnStartup      bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type FirebaseConfig struct {
	CredentialsFile string
	AlertTopic      string
	AlertTokens     []string
}

type ReportingConfig struct {
	Currency string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {
	var errs []string
	getInt := func(key string, defaultValue int) int {
		v, err := getIntEnv(key, defaultValue)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		v, err := getDurationEnv(key, defaultValue)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	failureRate, err := strconv.ParseFloat(getEnv("BREAKER_FAILURE_RATE", "0.5"), 64)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BREAKER_FAILURE_RATE: %v", err))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "txengine"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Ledger: LedgerConfig{
			Driver:      strings.ToLower(getEnv("LEDGER_DRIVER", LedgerPostgres)),
			AutoMigrate: getBoolEnv("LEDGER_AUTO_MIGRATE", true),
			RetryDelay:  getDuration("LEDGER_RETRY_DELAY", 30*time.Second),
		},
		Registry: RegistryConfig{
			URL:           getEnv("PRODUCT_REGISTRY_URL", ""),
			CallTimeout:   getDuration("REGISTRY_CALL_TIMEOUT", 2*time.Second),
			FailureRate:   failureRate,
			MinRequests:   getInt("BREAKER_MIN_REQUESTS", 10),
			OpenTimeout:   getDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			HalfOpenCalls: getInt("BREAKER_HALF_OPEN_CALLS", 3),
			Interval:      getDuration("BREAKER_INTERVAL", 60*time.Second),
		},
		Batch: BatchConfig{
			Workers: getInt("BATCH_WORKERS", 8),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getBoolEnv("SCHEDULER_ENABLED", true),
			Monthly:           getEnv("SCHEDULER_MONTHLY", "L@23:00"),
			CompensationTimes: splitList(getEnv("SCHEDULER_COMPENSATION_TIMES", "03:00,15:00")),
			CompensationLimit: getInt("SCHEDULER_COMPENSATION_LIMIT", 100),
			WorkerCount:       getInt("SCHEDULER_WORKERS", 2),
			JobDelay:          getDuration("SCHEDULER_JOB_DELAY", 0),
			QueueSize:         getInt("SCHEDULER_QUEUE_SIZE", 10),
			RunOnStartup:      getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Stream:   getEnv("REDIS_STREAM", "transactions:events"),
			MaxLen:   int64(getInt("REDIS_STREAM_MAXLEN", 100000)),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			AlertTopic:      getEnv("ALERT_TOPIC", "txengine-ops"),
			AlertTokens:     splitList(getEnv("ALERT_TOKENS", "")),
		},
		Reporting: ReportingConfig{
			Currency: getEnv("REPORT_CURRENCY", "PEN"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "txengine-api"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	location, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE: %v", err))
	}
	cfg.Location = location

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	// Validate required fields
	if cfg.Registry.URL == "" {
		return nil, fmt.Errorf("PRODUCT_REGISTRY_URL is required")
	}
	if cfg.Ledger.Driver != LedgerPostgres && cfg.Ledger.Driver != LedgerMemory {
		return nil, fmt.Errorf("LEDGER_DRIVER must be %q or %q, got %q", LedgerPostgres, LedgerMemory, cfg.Ledger.Driver)
	}
	if cfg.Registry.FailureRate <= 0 || cfg.Registry.FailureRate > 1 {
		return nil, fmt.Errorf("BREAKER_FAILURE_RATE must be in (0, 1]")
	}
	if cfg.Registry.MinRequests < 1 || cfg.Registry.HalfOpenCalls < 1 {
		return nil, fmt.Errorf("BREAKER_MIN_REQUESTS and BREAKER_HALF_OPEN_CALLS must be positive")
	}
	if cfg.Batch.Workers < 1 {
		return nil, fmt.Errorf("BATCH_WORKERS must be positive")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
