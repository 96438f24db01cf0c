package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != filepath.Join(dir, DefaultConfigFile) {
		t.Errorf("Path() = %q", cfg.Path())
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Listener.Port != DefaultPort {
		t.Errorf("listener port = %d, want %d", cfg.Listener.Port, DefaultPort)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	partial := `{"listener": {"port": 25570}, "status": {"motd": "hello"}}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listener.Port != 25570 {
		t.Errorf("port = %d, want 25570", cfg.Listener.Port)
	}
	if cfg.Status.MOTD != "hello" {
		t.Errorf("motd = %q, want hello", cfg.Status.MOTD)
	}
	if cfg.Listener.ReadTimeoutMs != DefaultConfig().Listener.ReadTimeoutMs {
		t.Errorf("read timeout default lost: %d", cfg.Listener.ReadTimeoutMs)
	}

	// The re-saved file carries every option.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved map[string]json.RawMessage
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"listener", "status", "webhook", "mqtt", "database", "api", "health", "logging"} {
		if _, ok := saved[section]; !ok {
			t.Errorf("re-saved config lacks %q", section)
		}
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(Overrides{
		Port:       25599,
		WebhookURL: "https://discord.com/api/webhooks/1/abc",
		LogLevel:   "debug",
	})

	if cfg.Listener.Port != 25599 {
		t.Errorf("port = %d", cfg.Listener.Port)
	}
	if cfg.Listener.Host != "0.0.0.0" {
		t.Errorf("empty host override changed host to %q", cfg.Listener.Host)
	}
	if !cfg.Webhook.Enabled() {
		t.Error("webhook not enabled after URL override")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestGetStatusCopiesSample(t *testing.T) {
	cfg := DefaultConfig()
	status := cfg.GetStatus()
	status.SamplePlayers[0].Name = "mutated"

	if cfg.Status.SamplePlayers[0].Name == "mutated" {
		t.Error("GetStatus shares the sample slice")
	}
}

func TestListenerDurations(t *testing.T) {
	l := ListenerConfig{Host: "::1", Port: 25565, ReadTimeoutMs: 250, WriteTimeoutMs: 1000}
	if got := l.Address(); got != "[::1]:25565" {
		t.Errorf("Address() = %q", got)
	}
	if got := l.ReadTimeout().Milliseconds(); got != 250 {
		t.Errorf("ReadTimeout() = %dms", got)
	}
	if got := l.WriteTimeout().Milliseconds(); got != 1000 {
		t.Errorf("WriteTimeout() = %dms", got)
	}
}

func fields(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateDefaults(t *testing.T) {
	result := Validate(DefaultConfig())
	if !result.IsValid() {
		t.Fatalf("default config invalid: %v", result.Errors)
	}
	if diff := deep.Equal(fields(result.Warnings), []string{"webhook.url"}); diff != nil {
		t.Error(diff)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port zero", func(c *Config) { c.Listener.Port = 0 }, "listener.port"},
		{"no read timeout", func(c *Config) { c.Listener.ReadTimeoutMs = 0 }, "listener.read_timeout_ms"},
		{"empty version", func(c *Config) { c.Status.VersionName = " " }, "status.version_name"},
		{"negative players", func(c *Config) { c.Status.MaxPlayers = -1 }, "status.players"},
		{"bad webhook", func(c *Config) { c.Webhook.URL = "ftp://x" }, "webhook.url"},
		{"zero batch", func(c *Config) { c.Webhook.BatchSize = 0 }, "webhook.batch_size"},
		{"mqtt no broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url"},
		{"db no retention", func(c *Config) { c.Database.RetentionDays = 0 }, "database.retention_days"},
		{"api port clash", func(c *Config) { c.API.Enabled = true; c.API.Port = c.Listener.Port }, "api.port"},
		{"negative heartbeat", func(c *Config) { c.Health.HeartbeatIntervalSec = -1 }, "health.heartbeat_interval_sec"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			result := Validate(cfg)
			found := false
			for _, f := range fields(result.Errors) {
				if f == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not include %q", fields(result.Errors), tt.want)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Status.SamplePlayers = append(cfg.Status.SamplePlayers, SamplePlayer{Name: "x", ID: "not-a-uuid"})
	cfg.Status.OnlinePlayers = 50
	cfg.API.Enabled = true
	cfg.API.Host = "0.0.0.0"

	result := Validate(cfg)
	if !result.IsValid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	want := []string{"status.online_players", "status.sample_players[1].id", "webhook.url", "api.host"}
	if diff := deep.Equal(fields(result.Warnings), want); diff != nil {
		t.Error(diff)
	}
}
