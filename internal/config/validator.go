package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateListener(&cfg.Listener, result)
	validateStatus(&cfg.Status, result)
	validateWebhook(&cfg.Webhook, result)
	validateMQTT(&cfg.MQTT, result)
	validateDatabase(&cfg.Database, result)
	validateAPI(&cfg.API, cfg.Listener.Port, result)
	validateHealth(&cfg.Health, result)

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown log level %q", cfg.Logging.Level))
	}

	return result
}

func validateListener(l *ListenerConfig, result *ValidationResult) {
	if l.Host != "" && net.ParseIP(l.Host) == nil && l.Host != "localhost" {
		result.AddWarning("listener.host", fmt.Sprintf("%q is not an IP address, it will be resolved at bind time", l.Host))
	}
	validatePort(l.Port, "listener.port", result)

	if l.ReadTimeoutMs < 1 {
		result.AddError("listener.read_timeout_ms", "read timeout must be positive")
	} else if l.ReadTimeoutMs > 10000 {
		result.AddWarning("listener.read_timeout_ms",
			"read timeouts above 10s let idle scanners hold connections open")
	}
	if l.WriteTimeoutMs < 1 {
		result.AddError("listener.write_timeout_ms", "write timeout must be positive")
	}
}

func validateStatus(s *StatusConfig, result *ValidationResult) {
	if strings.TrimSpace(s.VersionName) == "" {
		result.AddError("status.version_name", "version name is required")
	}
	if s.ProtocolVersion < 0 {
		result.AddError("status.protocol_version", "protocol version must not be negative")
	}
	if s.MaxPlayers < 0 || s.OnlinePlayers < 0 {
		result.AddError("status.players", "player counts must not be negative")
	}
	if s.OnlinePlayers > s.MaxPlayers {
		result.AddWarning("status.online_players", "more players online than the maximum looks suspicious")
	}
	for i, p := range s.SamplePlayers {
		if _, err := uuid.Parse(p.ID); err != nil {
			result.AddWarning(fmt.Sprintf("status.sample_players[%d].id", i),
				fmt.Sprintf("%q is not a UUID", p.ID))
		}
	}
	if s.FaviconPath != "" {
		if _, err := os.Stat(s.FaviconPath); err != nil {
			result.AddWarning("status.favicon_path",
				fmt.Sprintf("favicon not readable, serving without one: %v", err))
		}
	}
}

func validateWebhook(w *WebhookConfig, result *ValidationResult) {
	if w.URL == "" {
		result.AddWarning("webhook.url", "no webhook configured, contacts are only logged")
	} else if u, err := url.Parse(w.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.AddError("webhook.url", fmt.Sprintf("invalid webhook URL %q", w.URL))
	}

	if w.BatchSize < 1 {
		result.AddError("webhook.batch_size", "batch size must be at least 1")
	}
	if w.FlushIntervalSec < 1 {
		result.AddError("webhook.flush_interval_sec", "flush interval must be at least 1 second")
	}
	if w.TimeoutSec < 1 {
		result.AddError("webhook.timeout_sec", "timeout must be at least 1 second")
	}
	if w.QueueSize < w.BatchSize {
		result.AddWarning("webhook.queue_size", "queue smaller than one batch will drop events under load")
	}
	if w.CooldownSec < 0 {
		result.AddError("webhook.cooldown_sec", "cooldown must not be negative")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if strings.TrimSpace(m.Topic) == "" {
		result.AddError("mqtt.topic", "MQTT topic is required when enabled")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
}

func validateDatabase(d *DatabaseConfig, result *ValidationResult) {
	if !d.Enabled {
		return
	}
	if strings.TrimSpace(d.Path) == "" {
		result.AddError("database.path", "database path is required when enabled")
	}
	if d.RetentionDays < 1 {
		result.AddError("database.retention_days", "retention days must be at least 1")
	}
	if d.PruneIntervalMin < 1 {
		result.AddError("database.prune_interval_min", "prune interval must be at least 1 minute")
	}
}

func validateAPI(a *APIConfig, listenerPort int, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.Port == listenerPort {
		result.AddError("api.port", "API port conflicts with the listener port")
	}
	if a.Host == "0.0.0.0" || a.Host == "" {
		result.AddWarning("api.host", "API is reachable from every interface, contact data is exposed")
	}
}

func validateHealth(h *HealthConfig, result *ValidationResult) {
	if h.CheckIntervalSec < 0 {
		result.AddError("health.check_interval_sec", "check interval must not be negative")
	}
	if h.HeartbeatIntervalSec < 0 {
		result.AddError("health.heartbeat_interval_sec", "heartbeat interval must not be negative")
	}
	if h.DiskWarnPercent < 0 || h.DiskWarnPercent > 100 {
		result.AddError("health.disk_warn_percent", "disk warning threshold must be between 0 and 100")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
