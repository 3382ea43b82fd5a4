package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Pin store backends.
const (
	PinsBackendYAML   = "yaml"
	PinsBackendSQLite = "sqlite"
)

// BackendX11 is the only window-system backend compiled in today.
const BackendX11 = "x11"

// Config represents the application configuration
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	Backend    string `json:"backend" yaml:"backend" mapstructure:"backend"`

	Notifier NotifierConfig `json:"notifier" yaml:"notifier" mapstructure:"notifier"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Overlay  OverlayConfig  `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
	Pins     PinsConfig     `json:"pins" yaml:"pins" mapstructure:"pins"`
}

// NotifierConfig controls how OS change signals are observed
type NotifierConfig struct {
	// FocusPollInterval is the cadence of the frontmost-window poll.
	FocusPollInterval time.Duration `json:"focus_poll_interval" yaml:"focus_poll_interval" mapstructure:"focus_poll_interval"`
	// Debounce coalesces bursts of structural events. Zero disables it.
	Debounce time.Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
	// KWinSignals adds KWin's D-Bus desktop signals to the X11 events.
	KWinSignals bool `json:"kwin_signals" yaml:"kwin_signals" mapstructure:"kwin_signals"`
}

// PipelineConfig controls the rebuild/reconcile loop
type PipelineConfig struct {
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval" mapstructure:"refresh_interval"`
	PruneAfter      int           `json:"prune_after" yaml:"prune_after" mapstructure:"prune_after"`
	RecentLimit     int           `json:"recent_limit" yaml:"recent_limit" mapstructure:"recent_limit"`
}

// OverlayConfig describes the strip reserved by the dock
type OverlayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Height  int    `json:"height" yaml:"height" mapstructure:"height"`
	Display uint32 `json:"display" yaml:"display" mapstructure:"display"`
}

// PinsConfig selects where pins are persisted
type PinsConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ServerPort: 8437,
		LogLevel:   "info",
		LogPretty:  true,
		Backend:    BackendX11,
		Notifier: NotifierConfig{
			FocusPollInterval: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			RefreshInterval: 2 * time.Second,
			PruneAfter:      3,
			RecentLimit:     10,
		},
		Overlay: OverlayConfig{
			Enabled: true,
			Height:  40,
		},
		Pins: PinsConfig{
			Backend: PinsBackendYAML,
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port %d", c.ServerPort)
	}
	if c.Backend != BackendX11 {
		return fmt.Errorf("unsupported backend %q (use %q)", c.Backend, BackendX11)
	}
	switch c.Pins.Backend {
	case PinsBackendYAML, PinsBackendSQLite:
	default:
		return fmt.Errorf("unsupported pins.backend %q (use %q or %q)", c.Pins.Backend, PinsBackendYAML, PinsBackendSQLite)
	}
	if c.Notifier.FocusPollInterval <= 0 {
		return fmt.Errorf("notifier.focus_poll_interval must be positive")
	}
	if c.Notifier.Debounce < 0 || c.Pipeline.RefreshInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Pipeline.PruneAfter < 0 || c.Pipeline.RecentLimit < 0 {
		return fmt.Errorf("pipeline.prune_after and pipeline.recent_limit must not be negative")
	}
	if c.Overlay.Height < 0 {
		return fmt.Errorf("overlay.height must not be negative")
	}
	return nil
}

// PinsPath resolves the pin store location, defaulting under the XDG data dir.
func (c *Config) PinsPath() (string, error) {
	if c.Pins.Path != "" {
		return c.Pins.Path, nil
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	name := "pins.yaml"
	if c.Pins.Backend == PinsBackendSQLite {
		name = "pins.db"
	}
	return filepath.Join(dataDir, "taskdock", name), nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/taskdock/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "taskdock", "config.yaml"), nil
}

// NewManager loads the config file, creating it with defaults when missing.
// Environment variables prefixed TASKDOCK_ override file values.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: path,
		v:          newViper(path),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.write(m.config); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("pins_backend", m.config.Pins.Backend).
		Msg("Config loaded")

	return m, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("notifier.focus_poll_interval", d.Notifier.FocusPollInterval)
	v.SetDefault("notifier.debounce", d.Notifier.Debounce)
	v.SetDefault("notifier.kwin_signals", d.Notifier.KWinSignals)
	v.SetDefault("pipeline.refresh_interval", d.Pipeline.RefreshInterval)
	v.SetDefault("pipeline.prune_after", d.Pipeline.PruneAfter)
	v.SetDefault("pipeline.recent_limit", d.Pipeline.RecentLimit)
	v.SetDefault("overlay.enabled", d.Overlay.Enabled)
	v.SetDefault("overlay.height", d.Overlay.Height)
	v.SetDefault("overlay.display", d.Overlay.Display)
	v.SetDefault("pins.backend", d.Pins.Backend)
	v.SetDefault("pins.path", d.Pins.Path)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// load reads the configuration from disk
func (m *Manager) load() error {
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for key based access.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path of the backing file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Save persists the viper state (including values changed with
// GetViper().Set) to disk and refreshes the cached Config.
func (m *Manager) Save() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := m.write(&cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

func (m *Manager) write(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}
	return nil
}

// SetPort overrides the server port for this process only.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		m.config.ServerPort = port
	}
}

// SetLogLevel overrides the log level for this process only.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		m.config.LogLevel = level
	}
}
