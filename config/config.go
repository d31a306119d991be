package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Device   DeviceConfig   `yaml:"device"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Store    StoreConfig    `yaml:"store"`
	Firmware FirmwareConfig `yaml:"firmware"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Pushover PushoverConfig `yaml:"pushover"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Settings SettingsConfig `yaml:"settings"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	RateLimit    int    `yaml:"rate_limit"`

	// TrustedProxies may set X-Forwarded-For; leave empty when the hub is
	// reached directly.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DeviceConfig struct {
	Timeout string `yaml:"timeout"`
}

type MonitorConfig struct {
	Enabled          *bool  `yaml:"enabled"`
	FallbackInterval string `yaml:"fallback_interval"`
	SessionTTL       string `yaml:"session_ttl"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type FirmwareConfig struct {
	StagingDir string `yaml:"staging_dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SettingsConfig seeds the process-wide attributes. Values become extra
// free-form attributes next to the built-in ones.
type SettingsConfig struct {
	SiteName string         `yaml:"site_name"`
	Debug    bool           `yaml:"debug"`
	Values   map[string]any `yaml:"values"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path. A .env file next to it is loaded into
// the environment first, without overriding variables that are already
// set, so ${VAR} references can be satisfied from either place.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "60s"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 120
	}
	if c.Device.Timeout == "" {
		c.Device.Timeout = "30s"
	}
	if c.Monitor.Enabled == nil {
		c.Monitor.Enabled = boolPtr(true)
	}
	if c.Monitor.FallbackInterval == "" {
		c.Monitor.FallbackInterval = "10s"
	}
	if c.Monitor.SessionTTL == "" {
		c.Monitor.SessionTTL = "30m"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/hub.json"
	}
	if c.Firmware.StagingDir == "" {
		c.Firmware.StagingDir = "./media"
	}
	if c.Firmware.MaxSizeMB == 0 {
		c.Firmware.MaxSizeMB = 16
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "home-control-hub"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "home-control"
	}
	if c.Metrics.Enabled == nil {
		c.Metrics.Enabled = boolPtr(true)
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Settings.SiteName == "" {
		c.Settings.SiteName = "Home Control"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func boolPtr(b bool) *bool { return &b }

// Duration parses value, falling back to def with a warning when it is
// not a valid positive duration.
func Duration(logger *slog.Logger, name, value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "setting", name, "value", value, "default", def)
		return def
	}
	return d
}
