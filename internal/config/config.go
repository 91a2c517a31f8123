package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"qsar/internal/scheduler"
)

// CurrentVersion is the only config schema version this build understands.
const CurrentVersion = 1

// EnvPrefix prefixes every environment override (QSAR_SERVER_PORT, ...).
const EnvPrefix = "QSAR"

// LegacyLogPathEnv is the variable older deployments use for the log directory.
const LegacyLogPathEnv = "LOG_PATH"

// MaxReadBufferSize caps server.readBufferSize; every connection allocates
// one buffer of that size.
const MaxReadBufferSize = 1 << 20

// Config represents the complete qsar configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version" yaml:"version"`

	Server  ServerConfig  `json:"server" mapstructure:"server" toml:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging" yaml:"logging"`
	Storage StorageConfig `json:"storage" mapstructure:"storage" toml:"storage" yaml:"storage"`
	Admin   AdminConfig   `json:"admin" mapstructure:"admin" toml:"admin" yaml:"admin"`
	Pages   PagesConfig   `json:"pages" mapstructure:"pages" toml:"pages" yaml:"pages"`
}

// ServerConfig contains the listener settings
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host" toml:"host" yaml:"host"`
	Port           int    `json:"port" mapstructure:"port" toml:"port" yaml:"port"`
	ReadBufferSize int    `json:"readBufferSize" mapstructure:"readBufferSize" toml:"readBufferSize" yaml:"readBufferSize"`
	// ReadTimeout bounds the single read per connection. Empty or "0s" means
	// a silent client holds its handler until it disconnects.
	ReadTimeout string `json:"readTimeout" mapstructure:"readTimeout" toml:"readTimeout" yaml:"readTimeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Dir        string `json:"dir" mapstructure:"dir" toml:"dir" yaml:"dir"`
	Level      string `json:"level" mapstructure:"level" toml:"level" yaml:"level"`
	Console    bool   `json:"console" mapstructure:"console" toml:"console" yaml:"console"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize" toml:"maxSize" yaml:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups" toml:"maxBackups" yaml:"maxBackups"`
	Compress   bool   `json:"compress" mapstructure:"compress" toml:"compress" yaml:"compress"`
	QueueSize  int    `json:"queueSize" mapstructure:"queueSize" toml:"queueSize" yaml:"queueSize"`
}

// StorageConfig controls the SQLite access-event store
type StorageConfig struct {
	AccessDB bool   `json:"accessDB" mapstructure:"accessDB" toml:"accessDB" yaml:"accessDB"`
	Path     string `json:"path" mapstructure:"path" toml:"path" yaml:"path"`
	// Retention is how long access events are kept, e.g. "720h". Empty keeps
	// everything.
	Retention string `json:"retention" mapstructure:"retention" toml:"retention" yaml:"retention"`
	// PruneSchedule is when expired events are deleted: "every 1h" or a
	// five-field cron expression.
	PruneSchedule string `json:"pruneSchedule" mapstructure:"pruneSchedule" toml:"pruneSchedule" yaml:"pruneSchedule"`
}

// AdminConfig controls the optional health/metrics endpoint
type AdminConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	Bind      string `json:"bind" mapstructure:"bind" toml:"bind" yaml:"bind"`
	Port      int    `json:"port" mapstructure:"port" toml:"port" yaml:"port"`
	TokenHash string `json:"tokenHash" mapstructure:"tokenHash" toml:"tokenHash" yaml:"tokenHash"`
}

// PagesConfig points at an optional TOML file declaring extra static pages
type PagesConfig struct {
	File string `json:"file" mapstructure:"file" toml:"file" yaml:"file"`
	// Watch reloads the route table when File changes.
	Watch        bool   `json:"watch" mapstructure:"watch" toml:"watch" yaml:"watch"`
	PollInterval string `json:"pollInterval" mapstructure:"pollInterval" toml:"pollInterval" yaml:"pollInterval"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           3000,
			ReadBufferSize: 2048,
			ReadTimeout:    "0s",
		},
		Logging: LoggingConfig{
			Dir:        "./logs/",
			Level:      "info",
			Console:    true,
			MaxSize:    "",
			MaxBackups: 5,
			Compress:   false,
			QueueSize:  1024,
		},
		Storage: StorageConfig{
			AccessDB:      false,
			Path:          "",
			Retention:     "",
			PruneSchedule: "every 1h",
		},
		Admin: AdminConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    3001,
		},
		Pages: PagesConfig{
			PollInterval: "2s",
		},
	}
}

// setDefaults mirrors DefaultConfig into viper so env overrides apply to
// keys that never appear in a file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readBufferSize", d.Server.ReadBufferSize)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.queueSize", d.Logging.QueueSize)
	v.SetDefault("storage.accessDB", d.Storage.AccessDB)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.retention", d.Storage.Retention)
	v.SetDefault("storage.pruneSchedule", d.Storage.PruneSchedule)
	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.bind", d.Admin.Bind)
	v.SetDefault("admin.port", d.Admin.Port)
	v.SetDefault("admin.tokenHash", d.Admin.TokenHash)
	v.SetDefault("pages.file", d.Pages.File)
	v.SetDefault("pages.watch", d.Pages.Watch)
	v.SetDefault("pages.pollInterval", d.Pages.PollInterval)
}

// LoadResult reports where the effective configuration came from
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	UsedDefaults bool
}

// LoadConfig loads configuration from path (json, toml or yaml by extension).
// An empty path uses defaults. Environment variables always win over the file.
func LoadConfig(path string) (*Config, error) {
	result, err := LoadConfigWithDetails(path)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadConfigWithDetails is LoadConfig plus provenance for `qsar config show`.
func LoadConfigWithDetails(path string) (*LoadResult, error) {
	v := viper.New()
	setDefaults(v)

	// Env overrides: QSAR_SERVER_PORT=8080, QSAR_LOGGING_DIR=/var/log/qsar
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("logging.dir", "QSAR_LOGGING_DIR", LegacyLogPathEnv); err != nil {
		return nil, err
	}

	result := &LoadResult{UsedDefaults: true}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		result.ConfigPath = path
		result.UsedDefaults = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	result.Config = &cfg
	return result, nil
}

// LoadDotEnv exports variables from a .env file that are not already set in
// the process environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	// viper lower-cases keys; dotenv names are conventionally upper case.
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// EnvOverride describes one supported environment variable
type EnvOverride struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// SupportedEnv lists the environment variables LoadConfig honours.
func SupportedEnv() []EnvOverride {
	keys := []string{
		"server.host", "server.port", "server.readBufferSize", "server.readTimeout",
		"logging.dir", "logging.level", "logging.console", "logging.maxSize",
		"logging.maxBackups", "logging.compress", "logging.queueSize",
		"storage.accessDB", "storage.path", "storage.retention", "storage.pruneSchedule",
		"admin.enabled", "admin.bind", "admin.port", "admin.tokenHash",
		"pages.file", "pages.watch", "pages.pollInterval",
	}
	out := make([]EnvOverride, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, EnvOverride{
			Name: EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_")),
			Key:  k,
		})
	}
	out = append(out, EnvOverride{Name: LegacyLogPathEnv, Key: "logging.dir"})
	return out
}

// Addr returns the host:port the core listener binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// AdminAddr returns the host:port of the admin endpoint.
func (c *Config) AdminAddr() string {
	return net.JoinHostPort(c.Admin.Bind, strconv.Itoa(c.Admin.Port))
}

// ReadTimeout parses Server.ReadTimeout; invalid or empty values mean none.
func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Retention returns how long access events are kept; zero keeps them forever.
func (c *Config) Retention() time.Duration {
	d, err := time.ParseDuration(c.Storage.Retention)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// PagesPollInterval returns how often the pages file is checked for changes.
func (c *Config) PagesPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Pages.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Save writes the configuration to path. The format follows the extension:
// .toml, .yaml/.yml, anything else JSON.
func (c *Config) Save(path string) error {
	data, err := c.Marshal(FormatFromPath(path))
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal encodes the configuration in the named format (json, toml, yaml).
func (c *Config) Marshal(format string) ([]byte, error) {
	switch format {
	case "toml":
		return toml.Marshal(c)
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "json", "":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, &ConfigError{Field: "format", Message: "unsupported format " + strconv.Quote(format)}
	}
}

// FormatFromPath maps a file extension to a config format name.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Server.Host == "" {
		return &ConfigError{Field: "server.host", Message: "must not be empty"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if c.Server.ReadBufferSize <= 0 || c.Server.ReadBufferSize > MaxReadBufferSize {
		return &ConfigError{Field: "server.readBufferSize",
			Message: fmt.Sprintf("must be between 1 and %d", MaxReadBufferSize)}
	}
	if c.Server.ReadTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ReadTimeout); err != nil {
			return &ConfigError{Field: "server.readTimeout", Message: err.Error()}
		}
	}
	if c.Logging.Dir == "" {
		return &ConfigError{Field: "logging.dir", Message: "must not be empty"}
	}
	if c.Logging.QueueSize <= 0 {
		return &ConfigError{Field: "logging.queueSize", Message: "must be positive"}
	}
	if c.Storage.Retention != "" {
		if d, err := time.ParseDuration(c.Storage.Retention); err != nil || d <= 0 {
			return &ConfigError{Field: "storage.retention", Message: "must be a positive duration"}
		}
		if _, err := scheduler.ParseExpression(c.Storage.PruneSchedule); err != nil {
			return &ConfigError{Field: "storage.pruneSchedule", Message: err.Error()}
		}
	}
	if c.Pages.Watch {
		if c.Pages.File == "" {
			return &ConfigError{Field: "pages.watch", Message: "requires pages.file"}
		}
		if d, err := time.ParseDuration(c.Pages.PollInterval); err != nil || d <= 0 {
			return &ConfigError{Field: "pages.pollInterval", Message: "must be a positive duration"}
		}
	}
	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return &ConfigError{Field: "admin.port", Message: "must be between 1 and 65535"}
		}
		if c.Admin.Port == c.Server.Port && c.Admin.Bind == c.Server.Host {
			return &ConfigError{Field: "admin.port", Message: "must differ from server.port"}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
