// Package config handles configuration loading, validation, and persistence
// for the Lure decoy server.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultPort       = 25565
	DefaultAPIPort    = 8080
)

// Config is the root configuration structure for Lure.
type Config struct {
	mu   sync.RWMutex
	path string

	Listener ListenerConfig `json:"listener"`
	Status   StatusConfig   `json:"status"`
	Webhook  WebhookConfig  `json:"webhook"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Database DatabaseConfig `json:"database"`
	API      APIConfig      `json:"api"`
	Health   HealthConfig   `json:"health"`
	Logging  LoggingConfig  `json:"logging"`
}

// ListenerConfig holds the decoy TCP listener settings.
type ListenerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ReadTimeoutMs  int    `json:"read_timeout_ms"`
	WriteTimeoutMs int    `json:"write_timeout_ms"`
}

// Address returns host:port.
func (l ListenerConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// ReadTimeout is the deadline applied before every read.
func (l ListenerConfig) ReadTimeout() time.Duration {
	return time.Duration(l.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout is the deadline applied before every write.
func (l ListenerConfig) WriteTimeout() time.Duration {
	return time.Duration(l.WriteTimeoutMs) * time.Millisecond
}

// StatusConfig describes the server advertised to clients.
type StatusConfig struct {
	VersionName          string         `json:"version_name"`
	ProtocolVersion      int32          `json:"protocol_version"`
	MirrorClientProtocol bool           `json:"mirror_client_protocol"`
	MaxPlayers           int32          `json:"max_players"`
	OnlinePlayers        int32          `json:"online_players"`
	MOTD                 string         `json:"motd"`
	SamplePlayers        []SamplePlayer `json:"sample_players"`
	FaviconPath          string         `json:"favicon_path"`
	EnforcesSecureChat   bool           `json:"enforces_secure_chat"`
	PreviewsChat         bool           `json:"previews_chat"`
}

// SamplePlayer is one entry of the player hover list.
type SamplePlayer struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// WebhookConfig holds the notification pipeline settings.
type WebhookConfig struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	BatchSize        int    `json:"batch_size"`
	FlushIntervalSec int    `json:"flush_interval_sec"`
	TimeoutSec       int    `json:"timeout_sec"`
	QueueSize        int    `json:"queue_size"`
	CooldownSec      int    `json:"cooldown_sec"`
}

// Enabled reports whether a webhook URL is configured.
func (w WebhookConfig) Enabled() bool {
	return w.URL != ""
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
	Topic     string `json:"topic"`
}

// DatabaseConfig holds the contact store settings.
type DatabaseConfig struct {
	Enabled          bool   `json:"enabled"`
	Path             string `json:"path"`
	RetentionDays    int    `json:"retention_days"`
	PruneIntervalMin int    `json:"prune_interval_min"`
}

// APIConfig holds the operator API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Address returns host:port.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// HealthConfig controls the periodic self checks. Zero disables a check.
type HealthConfig struct {
	CheckIntervalSec     int     `json:"check_interval_sec"`
	HeartbeatIntervalSec int     `json:"heartbeat_interval_sec"`
	DiskWarnPercent      float64 `json:"disk_warn_percent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Host:           "0.0.0.0",
			Port:           DefaultPort,
			ReadTimeoutMs:  200,
			WriteTimeoutMs: 5000,
		},
		Status: StatusConfig{
			VersionName:     "1.20.4",
			ProtocolVersion: 765,
			MaxPlayers:      20,
			OnlinePlayers:   5,
			MOTD:            "§aA Minecraft Server",
			SamplePlayers: []SamplePlayer{
				{Name: "thinkofdeath", ID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"},
			},
		},
		Webhook: WebhookConfig{
			Title:            "Ping!",
			BatchSize:        10,
			FlushIntervalSec: 5,
			TimeoutSec:       10,
			QueueSize:        256,
		},
		MQTT: MQTTConfig{
			Port:     1883,
			ClientID: "lure",
			Topic:    "lure/contacts",
		},
		Database: DatabaseConfig{
			Enabled:          true,
			Path:             filepath.Join("data", "contacts.db"),
			RetentionDays:    30,
			PruneIntervalMin: 60,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: DefaultAPIPort,
		},
		Health: HealthConfig{
			CheckIntervalSec:     60,
			HeartbeatIntervalSec: 300,
			DiskWarnPercent:      90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Load reads configuration from a JSON file in configDir. A missing file
// is created from the defaults.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so the file lists every option known to this build.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetStatus returns a copy of the advertised status settings.
func (c *Config) GetStatus() StatusConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := c.Status
	status.SamplePlayers = append([]SamplePlayer(nil), c.Status.SamplePlayers...)
	return status
}

// SetStatus replaces the advertised status settings.
func (c *Config) SetStatus(status StatusConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = status
}

// GetWebhook returns a copy of the webhook settings.
func (c *Config) GetWebhook() WebhookConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Webhook
}

// Overrides carries command line values that take precedence over the
// file. Zero values leave the file setting untouched.
type Overrides struct {
	Host        string
	Port        int
	WebhookURL  string
	FaviconPath string
	LogLevel    string
}

// Apply copies every non-zero override into the configuration.
func (c *Config) Apply(o Overrides) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Host != "" {
		c.Listener.Host = o.Host
	}
	if o.Port != 0 {
		c.Listener.Port = o.Port
	}
	if o.WebhookURL != "" {
		c.Webhook.URL = o.WebhookURL
	}
	if o.FaviconPath != "" {
		c.Status.FaviconPath = o.FaviconPath
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
