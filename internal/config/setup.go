package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard walks the operator through the settings most decoys
// change, then validates and saves the configuration.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	w := &wizard{reader: reader, out: out}

	for {
		w.ask(cfg)

		result := Validate(cfg)
		if result.IsValid() {
			for _, warn := range result.Warnings {
				log.Warn().Str("field", warn.Field).Msg(warn.Message)
			}
			break
		}

		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if !w.promptBool("Would you like to try again?", false) {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to %s\n\n", cfg.Path())
	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) ask(cfg *Config) {
	fmt.Fprintln(w.out, "── Listener ──")
	cfg.Listener.Host = w.promptString("Bind address", cfg.Listener.Host)
	cfg.Listener.Port = w.promptInt("Port", cfg.Listener.Port)

	fmt.Fprintln(w.out, "\n── Advertised Status ──")
	cfg.Status.VersionName = w.promptString("Version name", cfg.Status.VersionName)
	cfg.Status.ProtocolVersion = int32(w.promptInt("Protocol version", int(cfg.Status.ProtocolVersion)))
	cfg.Status.MOTD = w.promptString("MOTD", cfg.Status.MOTD)
	cfg.Status.MaxPlayers = int32(w.promptInt("Max players", int(cfg.Status.MaxPlayers)))
	cfg.Status.OnlinePlayers = int32(w.promptInt("Online players", int(cfg.Status.OnlinePlayers)))
	cfg.Status.FaviconPath = w.promptString("Favicon PNG path (blank for none)", cfg.Status.FaviconPath)

	fmt.Fprintln(w.out, "\n── Notifications ──")
	cfg.Webhook.URL = w.promptString("Webhook URL (blank to disable)", cfg.Webhook.URL)

	fmt.Fprintln(w.out, "\n── Storage & API ──")
	cfg.Database.Enabled = w.promptBool("Keep a contact log", cfg.Database.Enabled)
	cfg.API.Enabled = w.promptBool("Enable REST API", cfg.API.Enabled)

	fmt.Fprintln(w.out, "\n── MQTT Telemetry ──")
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("Broker port", cfg.MQTT.Port)
	}
}

func (w *wizard) readLine() string {
	input, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	if input := w.readLine(); input != "" {
		return input
	}
	return defaultVal
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input := w.readLine()
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(w.readLine())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
