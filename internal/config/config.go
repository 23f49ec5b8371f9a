package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

// Store drivers supported for chat persistence.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverDynamoDB = "dynamodb"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Store        StoreConfig
	Realtime     RealtimeConfig
	Cache        CacheConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	ClientOrigins         []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret     string
	TokenTTLHours int
	CookieName    string
	BcryptCost    int
}

// StoreConfig selects where channels and messages live.
type StoreConfig struct {
	Driver             string
	SQLitePath         string
	DynamoTablePrefix  string
	DynamoEndpoint     string
	DynamoRegion       string
	DynamoCreateTables bool
}

// RealtimeConfig tunes the websocket gateway.
type RealtimeConfig struct {
	SendQueueSize       int
	WriteTimeoutSeconds int
	PingIntervalSeconds int
	RelayEnabled        bool
	RelayChannel        string
}

// CacheConfig controls in-process caches.
type CacheConfig struct {
	ProfileTTLSeconds int
}

// NotificationConfig holds chat notification targets.
type NotificationConfig struct {
	SlackWebhookURL string
	SlackChannel    string
	QueueSize       int
}

// Load reads configuration from .env and the environment.
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads configuration through v, which may already carry flag bindings.
// Keys are environment variable names.
func LoadWith(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name:                  v.GetString("APP_NAME"),
			Env:                   v.GetString("APP_ENV"),
			Host:                  v.GetString("APP_HOST"),
			Port:                  v.GetString("APP_PORT"),
			Version:               v.GetString("APP_VERSION"),
			RequestTimeoutSeconds: v.GetInt("HTTP_REQUEST_TIMEOUT_SECONDS"),
			ClientOrigins:         splitList(v.GetString("CLIENT_URL")),
		},
		Postgres: PostgresConfig{
			DSN:            v.GetString("POSTGRES_DSN"),
			MaxConns:       v.GetInt32("POSTGRES_MAX_CONNS"),
			MinConns:       v.GetInt32("POSTGRES_MIN_CONNS"),
			RunMigrations:  v.GetBool("POSTGRES_RUN_MIGRATIONS"),
			MigrationsDir:  v.GetString("POSTGRES_MIGRATIONS_DIR"),
			ConnMaxIdleSec: v.GetInt32("POSTGRES_CONN_MAX_IDLE_SECONDS"),
			ConnMaxLifeSec: v.GetInt32("POSTGRES_CONN_MAX_LIFE_SECONDS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Auth: AuthConfig{
			JWTSecret:     v.GetString("AUTH_JWT_SECRET"),
			TokenTTLHours: v.GetInt("AUTH_TOKEN_TTL_HOURS"),
			CookieName:    v.GetString("AUTH_COOKIE_NAME"),
			BcryptCost:    v.GetInt("AUTH_BCRYPT_COST"),
		},
		Store: StoreConfig{
			Driver:             strings.ToLower(v.GetString("CHAT_STORE_DRIVER")),
			SQLitePath:         v.GetString("SQLITE_PATH"),
			DynamoTablePrefix:  v.GetString("DYNAMO_TABLE_PREFIX"),
			DynamoEndpoint:     v.GetString("DYNAMO_ENDPOINT"),
			DynamoRegion:       v.GetString("DYNAMO_REGION"),
			DynamoCreateTables: v.GetBool("DYNAMO_CREATE_TABLES"),
		},
		Realtime: RealtimeConfig{
			SendQueueSize:       v.GetInt("WS_SEND_QUEUE_SIZE"),
			WriteTimeoutSeconds: v.GetInt("WS_WRITE_TIMEOUT_SECONDS"),
			PingIntervalSeconds: v.GetInt("WS_PING_INTERVAL_SECONDS"),
			RelayEnabled:        v.GetBool("WS_REDIS_RELAY"),
			RelayChannel:        v.GetString("WS_REDIS_RELAY_CHANNEL"),
		},
		Cache: CacheConfig{
			ProfileTTLSeconds: v.GetInt("PROFILE_CACHE_TTL_SECONDS"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: v.GetString("NOTIFY_SLACK_WEBHOOK_URL"),
			SlackChannel:    v.GetString("NOTIFY_SLACK_CHANNEL"),
			QueueSize:       v.GetInt("NOTIFY_QUEUE_SIZE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "factory-support-chat")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_HOST", "0.0.0.0")
	v.SetDefault("APP_PORT", "5000")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("HTTP_REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("CLIENT_URL", "http://localhost:5173")

	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)
	v.SetDefault("POSTGRES_RUN_MIGRATIONS", true)
	v.SetDefault("POSTGRES_MIGRATIONS_DIR", "migrations")
	v.SetDefault("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)
	v.SetDefault("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)

	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUTH_TOKEN_TTL_HOURS", 24*7)
	v.SetDefault("AUTH_COOKIE_NAME", "token")
	v.SetDefault("AUTH_BCRYPT_COST", 12)

	v.SetDefault("CHAT_STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("SQLITE_PATH", "./db/factory_support.db")
	v.SetDefault("DYNAMO_TABLE_PREFIX", "factory_support")
	v.SetDefault("DYNAMO_REGION", "us-east-1")

	v.SetDefault("WS_SEND_QUEUE_SIZE", 64)
	v.SetDefault("WS_WRITE_TIMEOUT_SECONDS", 10)
	v.SetDefault("WS_PING_INTERVAL_SECONDS", 25)
	v.SetDefault("WS_REDIS_RELAY", false)
	v.SetDefault("WS_REDIS_RELAY_CHANNEL", "issue-chat:broadcast")

	v.SetDefault("PROFILE_CACHE_TTL_SECONDS", 300)

	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return apperrors.NewConfigurationError("AUTH_JWT_SECRET is required")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverDynamoDB:
		if c.Postgres.DSN == "" {
			return apperrors.NewConfigurationError(fmt.Sprintf("POSTGRES_DSN is required for store driver %q", c.Store.Driver))
		}
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return apperrors.NewConfigurationError("SQLITE_PATH is required for store driver \"sqlite\"")
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown CHAT_STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Realtime.SendQueueSize <= 0 {
		return apperrors.NewConfigurationError("WS_SEND_QUEUE_SIZE must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued session tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// WriteTimeout bounds a single websocket write and detached store calls.
func (r RealtimeConfig) WriteTimeout() time.Duration {
	return seconds(r.WriteTimeoutSeconds, 10)
}

// PingInterval is the keepalive period for idle websocket connections.
func (r RealtimeConfig) PingInterval() time.Duration {
	return seconds(r.PingIntervalSeconds, 25)
}

// ProfileTTL returns how long author profiles stay cached.
func (c CacheConfig) ProfileTTL() time.Duration {
	return seconds(c.ProfileTTLSeconds, 300)
}

func seconds(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Second
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
