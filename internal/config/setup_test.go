package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWizardSavesAnswers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), DefaultConfigFile)

	// One answer per prompt, in order: listener, status, webhook, storage, API, MQTT.
	answers := strings.Join([]string{
		"", "25570",
		"1.8.9", "47", "§cHello", "100", "abc", "",
		"https://hooks.example.com/x",
		"no", "",
		"",
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("wizard: %v\n%s", err, out.String())
	}

	if cfg.Listener.Host != "0.0.0.0" || cfg.Listener.Port != 25570 {
		t.Errorf("listener = %+v", cfg.Listener)
	}
	if cfg.Status.VersionName != "1.8.9" || cfg.Status.ProtocolVersion != 47 || cfg.Status.MOTD != "§cHello" {
		t.Errorf("status = %+v", cfg.Status)
	}
	if cfg.Status.MaxPlayers != 100 || cfg.Status.OnlinePlayers != DefaultConfig().Status.OnlinePlayers {
		t.Errorf("players = %d/%d", cfg.Status.OnlinePlayers, cfg.Status.MaxPlayers)
	}
	if cfg.Webhook.URL != "https://hooks.example.com/x" {
		t.Errorf("webhook = %q", cfg.Webhook.URL)
	}
	if cfg.Database.Enabled {
		t.Error("contact log still enabled")
	}
	if !strings.Contains(out.String(), "Invalid number") {
		t.Error("invalid number not reported")
	}

	reloaded, err := Load(filepath.Dir(cfg.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Listener.Port != 25570 {
		t.Errorf("saved port = %d", reloaded.Listener.Port)
	}
}

func TestSetupWizardGivesUpOnInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), DefaultConfigFile)

	// Port 0 is invalid; input then ends, so the retry prompt defaults to no.
	answers := "\n0\n"

	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out.String(), "listener.port") {
		t.Errorf("output lacks the failing field:\n%s", out.String())
	}
}
