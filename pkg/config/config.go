package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig contains server-specific configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	SingleHost     bool          `mapstructure:"single_host"`
	BindAddress    string        `mapstructure:"bind_address"`
	Directory      string        `mapstructure:"directory"`
	File           string        `mapstructure:"file"`
	UploadDir      string        `mapstructure:"upload_dir"`
	AssetsDir      string        `mapstructure:"assets_dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`

	// SingleFile is the base name served in single-file mode. Derived from File.
	SingleFile string `mapstructure:"-"`
}

// AuthConfig holds the optional Basic credentials.
// Credentials may be given as "user:pass" or as separate fields.
type AuthConfig struct {
	Credentials  string `mapstructure:"credentials"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

// TelemetryConfig contains telemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	File  string `mapstructure:"file"`
}

// Enabled reports whether Basic authentication is configured.
func (a AuthConfig) Enabled() bool {
	return a.Username != ""
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	cfg := &Config{}

	// Set defaults
	setDefaults()

	// Unmarshal configuration
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Post-process configuration
	if err := postProcess(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 80)
	viper.SetDefault("server.directory", ".")
	viper.SetDefault("server.upload_dir", "upload")
	viper.SetDefault("server.max_upload_bytes", int64(1<<30))

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)
	viper.SetDefault("log.file", "headers.log")

	// Environment variable mappings
	viper.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func postProcess(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}

	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "0.0.0.0"
		if cfg.Server.SingleHost {
			cfg.Server.BindAddress = "127.0.0.1"
		}
	}

	// Single-file mode serves the file's directory with only that file reachable
	if cfg.Server.File != "" {
		abs, err := filepath.Abs(cfg.Server.File)
		if err != nil {
			return err
		}
		st, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("file to serve: %w", err)
		}
		if st.IsDir() {
			return fmt.Errorf("file to serve %s is a directory", abs)
		}
		cfg.Server.Directory = filepath.Dir(abs)
		cfg.Server.SingleFile = filepath.Base(abs)
	}

	// Ensure served directory is absolute
	dir, err := filepath.Abs(cfg.Server.Directory)
	if err != nil {
		return err
	}
	st, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory to serve: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("directory to serve %s is not a directory", dir)
	}
	cfg.Server.Directory = dir

	if !filepath.IsAbs(cfg.Server.UploadDir) {
		cfg.Server.UploadDir = filepath.Join(cfg.Server.Directory, cfg.Server.UploadDir)
	}
	cfg.Server.UploadDir = filepath.Clean(cfg.Server.UploadDir)

	if cfg.Server.AssetsDir == "" {
		cfg.Server.AssetsDir = DefaultAssetsDir()
	}
	if cfg.Server.AssetsDir, err = filepath.Abs(cfg.Server.AssetsDir); err != nil {
		return err
	}

	if cfg.Log.File == "" {
		return errors.New("log file path must not be empty")
	}
	if cfg.Log.File, err = filepath.Abs(cfg.Log.File); err != nil {
		return err
	}

	return parseCredentials(&cfg.Auth)
}

func parseCredentials(a *AuthConfig) error {
	if a.Credentials != "" {
		user, pass, ok := strings.Cut(a.Credentials, ":")
		if !ok {
			return errors.New("invalid auth format, use username:password")
		}
		a.Username, a.Password = user, pass
	}
	if a.Username == "" && (a.Password != "" || a.PasswordHash != "") {
		return errors.New("auth password configured without a username")
	}
	if a.Username != "" && a.Password == "" && a.PasswordHash == "" {
		return errors.New("auth username configured without a password")
	}
	return nil
}

// DefaultAssetsDir returns the first existing assets directory: "assets"
// next to the executable, "assets" in the working directory, then
// ~/.exposerver/assets. It falls back to the executable-relative path.
func DefaultAssetsDir() string {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "assets"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "assets"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".exposerver", "assets"))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && st.IsDir() {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return "assets"
}
