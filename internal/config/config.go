package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// Config is the process configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the gorm driver. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// MarketConfig holds the venue economics. Rates and amounts are decimal
// strings so no precision is lost through float parsing.
type MarketConfig struct {
	Symbols        []string `mapstructure:"symbols"`
	QuoteCurrency  string   `mapstructure:"quote_currency"`
	CommissionRate string   `mapstructure:"commission_rate"`
	SignupBalance  string   `mapstructure:"signup_balance"`
}

// QueueConfig selects the match trigger queue. Driver is "memory" or "badger".
type QueueConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	Compression string   `mapstructure:"compression"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:pincex.db?_busy_timeout=5000",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 3600,
			AutoMigrate:     true,
		},
		Market: MarketConfig{
			Symbols:        []string{string(models.SymbolBTC), string(models.SymbolETH)},
			QuoteCurrency:  "USD",
			CommissionRate: "0.015",
			SignupBalance:  "10",
		},
		Queue: QueueConfig{Driver: "memory", Path: "./data/matchqueue"},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			Topic:       "pincex.spot.events",
			Compression: "snappy",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			TTL:     30 * time.Second,
		},
		Tracing: TracingConfig{ServiceName: "pincex-spot"},
	}
}

// Load reads .env, then the first existing YAML files among paths, then
// PINCEX_ prefixed environment variables (PINCEX_DATABASE_DSN, ...).
func Load(paths ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PINCEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if len(paths) == 0 {
		paths = []string{"./config.yaml", "./configs/config.yaml"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("market.symbols", d.Market.Symbols)
	v.SetDefault("market.quote_currency", d.Market.QuoteCurrency)
	v.SetDefault("market.commission_rate", d.Market.CommissionRate)
	v.SetDefault("market.signup_balance", d.Market.SignupBalance)
	v.SetDefault("queue.driver", d.Queue.Driver)
	v.SetDefault("queue.path", d.Queue.Path)
	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.compression", d.Kafka.Compression)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.address", d.Redis.Address)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	switch c.Queue.Driver {
	case "memory":
	case "badger":
		if c.Queue.Path == "" {
			return fmt.Errorf("queue path is required for the badger driver")
		}
	default:
		return fmt.Errorf("unsupported queue driver %q", c.Queue.Driver)
	}
	if _, err := c.Market.SymbolList(); err != nil {
		return err
	}
	rate, err := c.Market.Commission()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be in [0, 1)")
	}
	bal, err := c.Market.Signup()
	if err != nil {
		return err
	}
	if bal.IsNegative() {
		return fmt.Errorf("signup balance cannot be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers required when kafka is enabled")
	}
	return nil
}

// SymbolList parses the configured symbols. Only known symbols are accepted.
func (m MarketConfig) SymbolList() ([]models.Symbol, error) {
	if len(m.Symbols) == 0 {
		return nil, fmt.Errorf("at least one market symbol is required")
	}
	out := make([]models.Symbol, 0, len(m.Symbols))
	seen := make(map[models.Symbol]bool, len(m.Symbols))
	for _, raw := range m.Symbols {
		sym, err := models.ParseSymbol(raw)
		if err != nil {
			return nil, err
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out, nil
}

// Commission returns the commission rate.
func (m MarketConfig) Commission() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(m.CommissionRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission rate %q: %w", m.CommissionRate, err)
	}
	return rate, nil
}

// Signup returns the balance credited to newly registered users.
func (m MarketConfig) Signup() (decimal.Decimal, error) {
	bal, err := decimal.NewFromString(m.SignupBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid signup balance %q: %w", m.SignupBalance, err)
	}
	return bal, nil
}
