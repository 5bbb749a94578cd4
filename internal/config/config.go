package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syncbridge/syncbridge/internal/logger"
)

// SyncProfile describes one side of the replicated pair. Immutable once
// resolved for a run; the password field is only the explicit fallback of
// last resort, real credentials come from the secret store.
type SyncProfile struct {
	Host            string `mapstructure:"host" json:"host"`
	Port            int    `mapstructure:"port" json:"port"`
	Database        string `mapstructure:"database" json:"database"`
	User            string `mapstructure:"user" json:"user"`
	Password        string `mapstructure:"password" json:"password,omitempty"`
	SSLMode         string `mapstructure:"sslmode" json:"sslmode"`
	ConnectTimeout  int    `mapstructure:"connect_timeout" json:"connect_timeout"`
	ApplicationName string `mapstructure:"application_name" json:"application_name"`
}

// Config holds the two database profiles plus orchestration-level settings.
type Config struct {
	Local  SyncProfile `mapstructure:"db_local" json:"db_local"`
	Remote SyncProfile `mapstructure:"db_remote" json:"db_remote"`

	// HTTP ports for the two engines. Fixed, never randomly chosen, so
	// repeated runs and external tooling see stable addresses.
	LocalHTTPPort  int `mapstructure:"local_http_port" json:"local_http_port"`
	RemoteHTTPPort int `mapstructure:"remote_http_port" json:"remote_http_port"`

	// WebPort is the port of the single hosting web server that serves
	// both engines.
	WebPort int `mapstructure:"web_port" json:"web_port"`

	ServerBaseURL string `mapstructure:"server_base_url" json:"server_base_url"`
	ClientBaseURL string `mapstructure:"client_base_url" json:"client_base_url"`

	// KeyringService is the secret-store service name credentials are
	// filed under.
	KeyringService string `mapstructure:"keyring_service" json:"keyring_service"`

	// Timezone forced onto the JVM and the JDBC connections. Normalized
	// before use; engines are sensitive to unknown zone identifiers.
	Timezone string `mapstructure:"timezone" json:"timezone"`

	// CheckIntervalSec is the health-check loop interval in seconds.
	CheckIntervalSec int `mapstructure:"check_interval_sec" json:"check_interval_sec"`
}

// CheckInterval returns the health-check interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	if c.CheckIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CheckIntervalSec) * time.Second
}

// Load reads the configuration document at path (JSON) merged with
// environment variables and defaults. Precedence: env > file > default.
// A missing or malformed file degrades to defaults rather than failing;
// the orchestrator must come up even on a fresh install.
func Load(path string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetEnvPrefix("SYNCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy environment names kept for compatibility with existing
	// deployments.
	_ = v.BindEnv("local_http_port", "SYNCBRIDGE_LOCAL_HTTP_PORT", "SYM_LOCAL_HTTP_PORT")
	_ = v.BindEnv("remote_http_port", "SYNCBRIDGE_REMOTE_HTTP_PORT", "SYM_RAILWAY_HTTP_PORT")
	_ = v.BindEnv("server_base_url", "SYNCBRIDGE_SERVER_BASE_URL", "SYM_SERVER_BASE_URL")
	_ = v.BindEnv("client_base_url", "SYNCBRIDGE_CLIENT_BASE_URL", "SYM_CLIENT_BASE_URL")
	_ = v.BindEnv("web_port", "SYNCBRIDGE_WEB_PORT", "PORT", "RAILWAY_PORT", "SERVER_PORT")

	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				logger.Info("config document not found, using defaults", "path", path)
			} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("config document not found, using defaults", "path", path)
			} else {
				logger.Warn("config document unreadable, using defaults", "path", path, "error", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default configuration values.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("db_local.host", "localhost")
	v.SetDefault("db_local.port", 5432)
	v.SetDefault("db_local.database", "appdb")
	v.SetDefault("db_local.user", "postgres")
	v.SetDefault("db_local.sslmode", "prefer")
	v.SetDefault("db_local.connect_timeout", 10)
	v.SetDefault("db_local.application_name", "syncbridge")

	v.SetDefault("db_remote.host", "")
	v.SetDefault("db_remote.port", 5432)
	v.SetDefault("db_remote.database", "appdb")
	v.SetDefault("db_remote.user", "postgres")
	v.SetDefault("db_remote.sslmode", "require")
	v.SetDefault("db_remote.connect_timeout", 10)
	v.SetDefault("db_remote.application_name", "syncbridge")

	v.SetDefault("local_http_port", 31416)
	v.SetDefault("remote_http_port", 31417)
	v.SetDefault("web_port", 31415)
	v.SetDefault("server_base_url", "http://127.0.0.1:31415")
	v.SetDefault("client_base_url", "http://127.0.0.1:31415")

	v.SetDefault("keyring_service", "syncbridge")
	v.SetDefault("timezone", "America/Argentina/Buenos_Aires")
	v.SetDefault("check_interval_sec", 60)
}

// WriteNormalized persists the fully resolved configuration back to path so
// subsequent runs are reproducible. Best effort; failure is logged, not
// returned, since the in-memory config is already usable.
func (c *Config) WriteNormalized(path string) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal normalized config", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warn("failed to create config directory", "error", err)
		return
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		logger.Warn("failed to persist normalized config", "path", path, "error", err)
	}
}
