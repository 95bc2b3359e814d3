package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix for environment overrides (SVCCTL_WORKER_PORT etc.)
const EnvPrefix = "SVCCTL"

// Config represents the complete controller and worker configuration
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Control ControlConfig `mapstructure:"control"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Logging LoggingConfig `mapstructure:"logging"`
	Notify  NotifyConfig  `mapstructure:"notify"`

	// Path is the config file that was actually read, empty if defaults only
	Path string `mapstructure:"-"`
}

// ServiceConfig describes the OS service registration.
// Name must match the name registered with the OS service manager exactly.
type ServiceConfig struct {
	Name        string   `mapstructure:"name"`
	DisplayName string   `mapstructure:"display_name"`
	Description string   `mapstructure:"description"`
	Executable  string   `mapstructure:"executable"`
	Arguments   []string `mapstructure:"arguments"`
}

// ControlConfig bounds every wait the controller performs
type ControlConfig struct {
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	StopConfirmTimeout time.Duration `mapstructure:"stop_confirm_timeout"`
	PortReleaseTimeout time.Duration `mapstructure:"port_release_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

// WorkerConfig contains worker daemon settings
type WorkerConfig struct {
	Port              int           `mapstructure:"port"`
	LogFile           string        `mapstructure:"log_file"`
	Grace             time.Duration `mapstructure:"grace"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Response          string        `mapstructure:"response"`
}

// LoggingConfig contains logging settings.
// File may be empty, in which case logs only go to the console.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// NotifyConfig contains the optional NATS outcome publisher settings
type NotifyConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URLs          []string      `mapstructure:"urls"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Auth          AuthConfig    `mapstructure:"auth"`
	TLS           TLSConfig     `mapstructure:"tls"`
}

// AuthConfig contains NATS authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // none, token, userpass, creds
	CredsFile string `mapstructure:"creds_file"`
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings for the NATS connection
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Flag names bound to configuration keys when present on the flag set
var flagBindings = map[string]string{
	"timeout": "control.command_timeout",
	"port":    "worker.port",
	"level":   "logging.level",
}

// Load reads configuration from path (YAML). A missing file is not an error:
// defaults, the .env file, environment variables and flags still apply.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the conventional override for the listening port
	if err := v.BindEnv("worker.port", EnvPrefix+"_WORKER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}

	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	readPath := ""
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			readPath = path
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if readPath != "" {
		if abs, err := filepath.Abs(readPath); err == nil {
			readPath = abs
		}
	}
	cfg.Path = readPath

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads a .env file next to the config file (or in the working
// directory) into the process environment. Existing variables win.
func loadDotEnv(configPath string) error {
	dir := "."
	if configPath != "" {
		dir = filepath.Dir(configPath)
	}
	envFile := filepath.Join(dir, ".env")

	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", DefaultServiceName)
	v.SetDefault("service.display_name", "Demo Worker Service")
	v.SetDefault("service.description", "Demo HTTP worker managed as an OS service")

	v.SetDefault("control.command_timeout", 60*time.Second)
	v.SetDefault("control.stop_confirm_timeout", 30*time.Second)
	v.SetDefault("control.port_release_timeout", 10*time.Second)
	v.SetDefault("control.poll_interval", 300*time.Millisecond)

	v.SetDefault("worker.port", 3000)
	v.SetDefault("worker.grace", 8*time.Second)
	v.SetDefault("worker.heartbeat_interval", 5*time.Minute)
	v.SetDefault("worker.response", "Hello from worker service!\n")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{"nats://localhost:4222"})
	v.SetDefault("notify.subject_prefix", "services")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.auth.type", "none")

	UpdateConfigDefaults(v)
}

var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if !serviceNamePattern.MatchString(cfg.Service.Name) {
		return fmt.Errorf("service.name must contain only alphanumeric characters, dashes, and underscores: %q", cfg.Service.Name)
	}

	if cfg.Control.CommandTimeout <= 0 {
		return fmt.Errorf("control.command_timeout must be positive")
	}
	if cfg.Control.StopConfirmTimeout <= 0 {
		return fmt.Errorf("control.stop_confirm_timeout must be positive")
	}
	if cfg.Control.PortReleaseTimeout < 0 {
		return fmt.Errorf("control.port_release_timeout cannot be negative")
	}
	if cfg.Control.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("control.poll_interval must be at least 10ms")
	}

	if cfg.Worker.Port < 1 || cfg.Worker.Port > 65535 {
		return fmt.Errorf("worker.port must be between 1 and 65535, got %d", cfg.Worker.Port)
	}
	if cfg.Worker.Grace <= 0 {
		return fmt.Errorf("worker.grace must be positive")
	}
	if cfg.Worker.HeartbeatInterval < 0 {
		return fmt.Errorf("worker.heartbeat_interval cannot be negative")
	}
	if cfg.Worker.HeartbeatInterval > 0 && cfg.Worker.HeartbeatInterval < time.Second {
		return fmt.Errorf("worker.heartbeat_interval must be at least 1s")
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level is invalid: %q", cfg.Logging.Level)
	}

	if cfg.Notify.Enabled {
		if err := validateNotify(&cfg.Notify); err != nil {
			return err
		}
	}

	return nil
}

func validateNotify(cfg *NotifyConfig) error {
	if len(cfg.URLs) == 0 {
		return fmt.Errorf("notify.urls must contain at least one URL")
	}
	if err := validateSubjectPrefix(cfg.SubjectPrefix); err != nil {
		return err
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive")
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			return fmt.Errorf("notify.auth.token is required for token auth")
		}
	case "userpass":
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return fmt.Errorf("notify.auth username and password are required for userpass auth")
		}
	case "creds":
		if cfg.Auth.CredsFile == "" {
			return fmt.Errorf("notify.auth.creds_file is required for creds auth")
		}
		if _, err := os.Stat(cfg.Auth.CredsFile); err != nil {
			return fmt.Errorf("credentials file not found: %s", cfg.Auth.CredsFile)
		}
	default:
		return fmt.Errorf("invalid auth type: %s (must be none, token, userpass, or creds)", cfg.Auth.Type)
	}

	return validateTLS(&cfg.TLS)
}

var subjectTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateSubjectPrefix allows hierarchical NATS prefixes like "prod.services"
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("notify.subject_prefix is required")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("notify.subject_prefix cannot start or end with a dot")
	}
	for _, token := range strings.Split(prefix, ".") {
		if token == "" {
			return fmt.Errorf("notify.subject_prefix: consecutive dots not allowed")
		}
		if !subjectTokenPattern.MatchString(token) {
			return fmt.Errorf("notify.subject_prefix token %q contains invalid characters", token)
		}
	}
	return nil
}

func validateTLS(cfg *TLSConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.CertFile != "" && cfg.KeyFile == "" {
		return fmt.Errorf("notify.tls.key_file is required when cert_file is set")
	}
	if cfg.KeyFile != "" && cfg.CertFile == "" {
		return fmt.Errorf("notify.tls.cert_file is required when key_file is set")
	}
	if cfg.CertFile != "" {
		if _, err := os.Stat(cfg.CertFile); err != nil {
			return fmt.Errorf("certificate file not found: %s", cfg.CertFile)
		}
		if _, err := os.Stat(cfg.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %s", cfg.KeyFile)
		}
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("CA file not found: %s", cfg.CAFile)
		}
	}
	return nil
}
