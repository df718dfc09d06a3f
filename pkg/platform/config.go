package platform

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the configuration shared by the CLI and the API server.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Planner PlannerConfig `mapstructure:"planner"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig selects where recipes and buildings come from.
type CatalogConfig struct {
	// builtin, file or postgres
	Source string `mapstructure:"source" validate:"required,oneof=builtin file postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Source file"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Source postgres"`
	Name   string `mapstructure:"name"`
}

type PlannerConfig struct {
	Ambiguity     string `mapstructure:"ambiguity" validate:"required,oneof=pick-first pick-by-speed fail"`
	MaxIterations int    `mapstructure:"max_iterations" validate:"min=1"`
	// Plan period such as "1sec" or "1min".
	Per              string              `mapstructure:"per" validate:"required,plantime"`
	Belt             string              `mapstructure:"belt"`
	AllowedBuildings map[string][]string `mapstructure:"allowed_buildings"`
}

// HistoryConfig points at the ClickHouse database recording plan runs.
type HistoryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int           `mapstructure:"port" validate:"min=0,max=65535"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	APIKey       string        `mapstructure:"api_key"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"min=0"`
}

type LoggingConfig struct {
	// debug, info, warn, error
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	// json or text
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LoadConfig loads configuration with priority:
// 1. Environment variables (FP_ prefix, highest priority)
// 2. Config file (factoryplan.yaml)
// 3. Defaults
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("factoryplan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/factoryplan")
	}

	v.SetEnvPrefix("FP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// AutomaticEnv only sees keys viper already knows about, so scalar keys
// that have no file value must be bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"catalog.source", "catalog.path", "catalog.dsn", "catalog.name",
		"planner.ambiguity", "planner.max_iterations", "planner.per", "planner.belt",
		"history.enabled", "history.host", "history.port", "history.database",
		"history.username", "history.password", "history.timeout",
		"server.port", "server.api_key", "server.read_timeout", "server.write_timeout",
		"server.max_body_bytes",
		"logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}

// SetDefaults fills every zero field with its default.
func SetDefaults(cfg *Config) {
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "builtin"
	}
	if cfg.Catalog.Name == "" {
		cfg.Catalog.Name = "factorio"
	}

	if cfg.Planner.Ambiguity == "" {
		cfg.Planner.Ambiguity = "pick-first"
	}
	if cfg.Planner.MaxIterations == 0 {
		cfg.Planner.MaxIterations = 1000
	}
	if cfg.Planner.Per == "" {
		cfg.Planner.Per = "1sec"
	}

	if cfg.History.Host == "" {
		cfg.History.Host = "localhost"
	}
	if cfg.History.Port == 0 {
		cfg.History.Port = 9000
	}
	if cfg.History.Database == "" {
		cfg.History.Database = "factoryplan"
	}
	if cfg.History.Username == "" {
		cfg.History.Username = "default"
	}
	if cfg.History.Timeout == 0 {
		cfg.History.Timeout = 10 * time.Second
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
