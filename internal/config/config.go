package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	Observability ObservabilityConfig

	// BackendTimeout bounds every store, registry and counter call made
	// by the quota service.
	BackendTimeout time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetrics         bool

	Redis      RedisConfig
	Command    CommandConfig
	Backends   BackendsConfig
	Expiration ExpirationConfig
	Scheduler  SchedulerConfig
}

// ObservabilityConfig carries logging and OpenTelemetry exporter settings.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// CommandConfig locates the privileged quota tool. Kinds lists the
// resource kinds whose limits the tool owns; other kinds are stored in
// the database.
type CommandConfig struct {
	Path     string
	UseSudo  bool
	SudoPath string
	Timeout  time.Duration
	Kinds    []string

	// ReadPrevious reads the old limit before every set for the change
	// ledger, at the cost of a second tool invocation.
	ReadPrevious bool
}

type BackendsConfig struct {
	AuthToken           string
	ImageEndpoint       string
	ObjectStoreEndpoint string
	AccountPrefix       string
	ComputeEndpoint     string
	PageSize            int
	MaxPages            int
	Timeout             time.Duration
}

type ExpirationConfig struct {
	Backend  string
	FilePath string
}

type SchedulerConfig struct {
	Enabled       bool
	SweepInterval time.Duration
}

const (
	ExpirationBackendFile     = "file"
	ExpirationBackendDatabase = "database"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "quotaledger"),
		AppVersion:     getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:    getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		NodeID:         int64(getenvInt("NODE_ID", 1)),
		BackendTimeout: getenvDuration("BACKEND_TIMEOUT", 15*time.Second),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quotaledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBMetrics:         getenvBool("DATABASE_METRICS_ENABLED", true),

		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
			LockTTL:  getenvDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Command: CommandConfig{
			Path:     strings.TrimSpace(getenv("QUOTA_COMMAND_PATH", "")),
			UseSudo:  getenvBool("QUOTA_COMMAND_SUDO", true),
			SudoPath: getenv("QUOTA_COMMAND_SUDO_PATH", "sudo"),
			Timeout:  getenvDuration("QUOTA_COMMAND_TIMEOUT", 10*time.Second),
			Kinds:    parseList(getenv("QUOTA_COMMAND_KINDS", "")),

			ReadPrevious: getenvBool("QUOTA_COMMAND_READ_PREVIOUS", true),
		},
		Backends: BackendsConfig{
			AuthToken:           strings.TrimSpace(getenv("BACKEND_AUTH_TOKEN", "")),
			ImageEndpoint:       strings.TrimSpace(getenv("IMAGE_ENDPOINT", "")),
			ObjectStoreEndpoint: strings.TrimSpace(getenv("OBJECT_STORE_ENDPOINT", "")),
			AccountPrefix:       getenv("OBJECT_STORE_ACCOUNT_PREFIX", "AUTH_"),
			ComputeEndpoint:     strings.TrimSpace(getenv("COMPUTE_ENDPOINT", "")),
			PageSize:            getenvInt("BACKEND_PAGE_SIZE", 200),
			MaxPages:            getenvInt("BACKEND_MAX_PAGES", 1000),
			Timeout:             getenvDuration("BACKEND_HTTP_TIMEOUT", 10*time.Second),
		},
		Expiration: ExpirationConfig{
			Backend:  normalizeExpirationBackend(getenv("EXPIRATION_BACKEND", ExpirationBackendFile)),
			FilePath: getenv("EXPIRATION_FILE", "/var/lib/quotaledger/expiration_dates"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getenvBool("EXPIRATION_SWEEP_ENABLED", true),
			SweepInterval: getenvDuration("EXPIRATION_SWEEP_INTERVAL", time.Hour),
		},
	}

	return cfg
}

func normalizeExpirationBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ExpirationBackendDatabase, "db":
		return ExpirationBackendDatabase
	default:
		return ExpirationBackendFile
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("30s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
