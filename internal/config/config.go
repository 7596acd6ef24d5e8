package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

var validate = validator.New()

// Config aggregates the service configuration.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Store   StoreConfig
	Admin   AdminConfig
	Gateway GatewayConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	admin, err := loadAdminConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Log: logCfg, Store: store, Admin: admin, Gateway: gateway}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port           string `env:"PORT,default=3002"`
	StaticDir      string `env:"STATIC_DIR"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	Addr string
}

// Origins splits AllowedOrigins on commas. An empty result allows every origin.
func (c ServerConfig) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func loadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := unmarshal(&cfg); err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(cfg.Port)
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// ":3002" or "127.0.0.1:3002" are taken verbatim.
		cfg.Addr = port
	default:
		cfg.Addr = ":" + port
	}
	return cfg, nil
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT,default=console" validate:"oneof=console json"`
}

func loadLogConfig() (LogConfig, error) {
	var cfg LogConfig
	if err := unmarshal(&cfg); err != nil {
		return LogConfig{}, err
	}
	cfg.Level = strings.ToLower(strings.TrimSpace(cfg.Level))
	return cfg, check(cfg)
}

// StoreConfig selects the message store driver and its connection settings.
type StoreConfig struct {
	Driver       string        `env:"STORE_DRIVER,default=memory" validate:"oneof=memory badger redis postgres mongo"`
	HistoryLimit int           `env:"STORE_HISTORY_LIMIT,default=50" validate:"min=1"`
	Timeout      time.Duration `env:"STORE_TIMEOUT,default=5s" validate:"gt=0"`

	BadgerPath string `env:"BADGER_PATH,default=data/messages"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=Driver redis"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	RedisKey      string `env:"REDIS_KEY,default=chat:messages"`

	PostgresURL string `env:"POSTGRES_URL" validate:"required_if=Driver postgres"`

	MongoURI      string `env:"MONGO_URI" validate:"required_if=Driver mongo"`
	MongoDatabase string `env:"MONGO_DATABASE,default=chat"`
}

func loadStoreConfig() (StoreConfig, error) {
	var cfg StoreConfig
	if err := unmarshal(&cfg); err != nil {
		return StoreConfig{}, err
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	return cfg, check(cfg)
}

// AdminConfig holds the operator credential and token lifetime.
// TokenTTL of zero keeps tokens valid until logout or restart.
type AdminConfig struct {
	Password     string        `env:"ADMIN_PASSWORD" validate:"required_without=PasswordHash"`
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL,default=12h" validate:"gte=0"`
}

func loadAdminConfig() (AdminConfig, error) {
	var cfg AdminConfig
	if err := unmarshal(&cfg); err != nil {
		return AdminConfig{}, err
	}
	cfg.PasswordHash = strings.TrimSpace(cfg.PasswordHash)
	return cfg, check(cfg)
}

// GatewayConfig tunes the per-connection pumps.
type GatewayConfig struct {
	SendBuffer      int           `env:"GATEWAY_SEND_BUFFER,default=256" validate:"min=1"`
	MaxMessageBytes int           `env:"GATEWAY_MAX_MESSAGE_BYTES,default=8192" validate:"min=64"`
	PingInterval    time.Duration `env:"GATEWAY_PING_INTERVAL,default=54s" validate:"gt=0"`
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c GatewayConfig) PongWait() time.Duration {
	return c.PingInterval * 10 / 9
}

func loadGatewayConfig() (GatewayConfig, error) {
	var cfg GatewayConfig
	if err := unmarshal(&cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, check(cfg)
}

func unmarshal(dst any) error {
	if _, err := env.UnmarshalFromEnviron(dst); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func check(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
