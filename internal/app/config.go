package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/opexlabs/formscore/internal/auth"
	"github.com/opexlabs/formscore/internal/database"
)

// Config represents the runtime configuration for the formscore backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// BootstrapConfig identifies the user seeded with unrestricted admin authority.
type BootstrapConfig struct {
	AdminUserID string `mapstructure:"admin_user_id"`
	AdminEmail  string `mapstructure:"admin_email"`
}

// MaintenanceConfig controls the background cleaner.
type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Schedule       string `mapstructure:"schedule"`
	AuditRetention int    `mapstructure:"audit_retention_days"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// JWTServiceConfig adapts the auth settings for the JWT service constructor.
func (a AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := a.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	return auth.JWTConfig{
		Secret:         a.JWT.Secret,
		Issuer:         a.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// DatabaseSettings adapts the configuration for database.Open.
func (d DatabaseConfig) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: d.Driver,
		Path:   d.Path,
		DSN:    d.DSN,
	}

	var host DBAuthConfig
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		host = d.Postgres
	case "mysql":
		host = d.MySQL
	}

	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password

	return cfg
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("FORMSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/formscore.sqlite")

	v.SetDefault("auth.jwt.issuer", "formscore")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.audit_retention_days", 90)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
