// Package config loads the anvil server configuration and VM descriptors
// from YAML.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
)

// TokenEnv overrides http.token when set.
const TokenEnv = "ANVIL_TOKEN"

// Defaults applied by Normalize.
const (
	DefaultListen         = "127.0.0.1:8080"
	DefaultBackendTimeout = 30 * time.Second
	DefaultHTTPTimeout    = 5 * time.Minute
	DefaultPoolPath       = "/var/lib/libvirt/images"
	DefaultMetricsPath    = "/metrics"
	DefaultMetricsNS      = "anvil"
)

// Config is the complete server configuration.
type Config struct {
	Libvirt LibvirtConfig `yaml:"libvirt"`
	Docker  DockerConfig  `yaml:"docker"`
	HTTP    HTTPConfig    `yaml:"http"`
	// BackendTimeout bounds every single daemon call.
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	Log            LogConfig     `yaml:"log"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

// LibvirtConfig selects the hypervisor connection and VM disk pool.
type LibvirtConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"` // default true
	Socket  string `yaml:"socket"`
	// Timeout bounds dialing the socket.
	Timeout     time.Duration `yaml:"timeout"`
	StoragePool string        `yaml:"storage_pool"`
	// EnsurePool creates a dir pool at PoolPath when StoragePool is missing.
	EnsurePool bool   `yaml:"ensure_pool"`
	PoolPath   string `yaml:"pool_path"`
	Network    string `yaml:"network"`
	// ImageDir is where relative installer ISO paths are looked up.
	ImageDir string `yaml:"image_dir"`
}

// DockerConfig selects the container daemon. Empty fields fall back to the
// DOCKER_HOST family of environment variables.
type DockerConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"` // default true
	Host       string `yaml:"host"`
	APIVersion string `yaml:"api_version"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Listen       string        `yaml:"listen"`
	Token        string        `yaml:"token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LibvirtEnabled reports whether the VM backend is configured.
func (c *Config) LibvirtEnabled() bool {
	return c.Libvirt.Enabled == nil || *c.Libvirt.Enabled
}

// DockerEnabled reports whether the container backend is configured.
func (c *Config) DockerEnabled() bool {
	return c.Docker.Enabled == nil || *c.Docker.Enabled
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize sanitizes user input and fills in defaults.
// This is called automatically by LoadFromFile before validation.
func (c *Config) Normalize() {
	if c.Libvirt.Socket == "" {
		c.Libvirt.Socket = anvillibvirt.DefaultSocket
	}
	if c.Libvirt.Timeout == 0 {
		c.Libvirt.Timeout = 10 * time.Second
	}
	if c.Libvirt.StoragePool == "" {
		c.Libvirt.StoragePool = anvillibvirt.DefaultStoragePool
	}
	if c.Libvirt.PoolPath == "" {
		c.Libvirt.PoolPath = DefaultPoolPath
	}
	if c.Libvirt.Network == "" {
		c.Libvirt.Network = anvillibvirt.DefaultNetwork
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = DefaultHTTPTimeout
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = DefaultHTTPTimeout
	}
	if c.BackendTimeout == 0 {
		c.BackendTimeout = DefaultBackendTimeout
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNS
	}
}

// Validate checks the configuration for errors. It does not contact any
// daemon.
func (c *Config) Validate() error {
	if !c.LibvirtEnabled() && !c.DockerEnabled() {
		return fmt.Errorf("at least one of libvirt.enabled and docker.enabled must be true")
	}
	if err := c.Libvirt.Validate(); err != nil {
		return fmt.Errorf("libvirt: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("backend_timeout must be > 0, got %s", c.BackendTimeout)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics: path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// Validate checks the libvirt section.
func (l *LibvirtConfig) Validate() error {
	if l.Timeout < 0 {
		return fmt.Errorf("timeout must be > 0, got %s", l.Timeout)
	}
	if l.EnsurePool && !strings.HasPrefix(l.PoolPath, "/") {
		return fmt.Errorf("pool_path must be absolute when ensure_pool is set, got %q", l.PoolPath)
	}
	if l.ImageDir != "" && !strings.HasPrefix(l.ImageDir, "/") {
		return fmt.Errorf("image_dir must be absolute, got %q", l.ImageDir)
	}
	return nil
}

// Validate checks the http section.
func (h *HTTPConfig) Validate() error {
	if _, _, err := net.SplitHostPort(h.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", h.Listen, err)
	}
	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	return nil
}

// Validate checks the log section.
func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// LoadFromFile loads the server configuration from a YAML file. An empty
// path yields the defaults. The token environment variable wins over the
// file.
func LoadFromFile(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if token := os.Getenv(TokenEnv); token != "" {
		config.HTTP.Token = token
	}

	// Normalize user input before validation
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
