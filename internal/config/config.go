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

	OTLPEndpoint string
	LogFile      string

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

	Registry  RegistryConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Seed      SeedConfig
	Admin     AdminConfig

	MeteringConfigPaths []string
}

// RegistryConfig controls the event and plan definition caches.
type RegistryConfig struct {
	TTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TrackOrgRate  float64
	TrackOrgBurst int
}

type SchedulerConfig struct {
	// WarmRefreshInterval of zero disables the registry warm-refresh job.
	WarmRefreshInterval time.Duration
	JobTimeout          time.Duration
}

type SeedConfig struct {
	Enabled        bool
	DefaultOrgID   string
	DefaultOrgName string
	DefaultOrgPlan string
	LockTTL        time.Duration
}

// AdminConfig names the users allowed to edit the shared event and plan catalogue.
type AdminConfig struct {
	OperatorUserIDs []string
}

const DefaultRegistryTTL = 5 * time.Minute

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "creditmeter"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		LogFile:      strings.TrimSpace(getenv("LOG_FILE", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creditmeter"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Registry: RegistryConfig{
			TTL: getenvDuration("REGISTRY_CACHE_TTL", DefaultRegistryTTL),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			TrackOrgRate:  getenvFloat("RATE_LIMIT_TRACK_ORG_RATE", 50),
			TrackOrgBurst: getenvInt("RATE_LIMIT_TRACK_ORG_BURST", 100),
		},
		Scheduler: SchedulerConfig{
			WarmRefreshInterval: getenvDuration("REGISTRY_WARM_REFRESH_INTERVAL", 0),
			JobTimeout:          getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
		},
		Seed: SeedConfig{
			Enabled:        getenvBool("SEED_CATALOGUE", true),
			DefaultOrgID:   strings.TrimSpace(getenv("DEFAULT_ORG_ID", "")),
			DefaultOrgName: getenv("DEFAULT_ORG_NAME", "Main"),
			DefaultOrgPlan: getenv("DEFAULT_ORG_PLAN", "free"),
			LockTTL:        getenvDuration("SEED_LOCK_TTL", 30*time.Second),
		},
		Admin: AdminConfig{
			OperatorUserIDs: splitList(getenv("ADMIN_OPERATOR_USER_IDS", "")),
		},
		MeteringConfigPaths: splitList(getenv("METERING_CONFIG_PATHS", "/etc/creditmeter,.")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
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

// getenvDuration accepts Go duration strings ("90s", "5m") or whole seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func splitList(raw string) []string {
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
