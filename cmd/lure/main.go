// Lure - a decoy Minecraft server.
//
// Lure answers server list pings (legacy 0xFE and modern JSON status) with
// a configurable fake status, records every ping and join attempt, and
// reports contacts to a webhook in batches. Contacts can also be kept in a
// SQLite log, published over MQTT, and browsed through a small REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/lure-project/lure/internal/api"
	"github.com/lure-project/lure/internal/cli"
	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/connector"
	"github.com/lure-project/lure/internal/db"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/favicon"
	"github.com/lure-project/lure/internal/health"
	"github.com/lure-project/lure/internal/network"
	"github.com/lure-project/lure/internal/notify"
	"github.com/lure-project/lure/internal/responder"
	"github.com/lure-project/lure/internal/scheduler"
	"github.com/lure-project/lure/internal/telemetry"
	"github.com/lure-project/lure/internal/util"
)

const (
	AppVersion = "1.0.0"
	Banner     = `
  _
 | |_   _ _ __ ___
 | | | | | '__/ _ \
 | | |_| | | |  __/
 |_|\__,_|_|  \___|  v%s
 Decoy Minecraft Server
`
	shutdownTimeout = 30 * time.Second
)

type options struct {
	configDir   string
	overrides   config.Overrides
	contacts    int
	interactive bool
	setup       bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configDir, "config-dir", config.DefaultConfigDir, "directory holding config.json")
	flag.StringVarP(&opts.overrides.Host, "host", "H", "", "listener bind address")
	flag.IntVarP(&opts.overrides.Port, "port", "p", 0, "listener port")
	flag.StringVarP(&opts.overrides.WebhookURL, "webhook", "w", "", "webhook URL for contact notifications")
	flag.StringVar(&opts.overrides.FaviconPath, "favicon", "", "64x64 PNG advertised as the server icon")
	flag.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.IntVar(&opts.contacts, "contacts", 0, "print the N most recent contacts and exit")
	flag.BoolVarP(&opts.interactive, "interactive", "i", false, "read console commands from stdin")
	flag.BoolVar(&opts.setup, "setup", false, "run the interactive setup wizard before starting")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.contacts > 0 {
		if err := printContacts(opts); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if opts.setup {
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
	}
	cfg.Apply(opts.overrides)

	if err := util.InitLogger(util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("version", AppVersion).
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("arch", runtime.GOARCH).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("starting lure")

	run(cfg, sysInfo, opts)
}

func printContacts(opts options) error {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errors.New("contact log is disabled in the configuration")
	}
	store, err := db.NewContactStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	contacts, err := store.Recent(context.Background(), opts.contacts)
	if err != nil {
		return err
	}
	cli.PrintContacts(os.Stdout, contacts)
	return nil
}

func run(cfg *config.Config, sysInfo util.SystemInfo, opts options) {
	status := cfg.GetStatus()
	var icon string
	if status.FaviconPath != "" {
		var err error
		if icon, err = favicon.Load(status.FaviconPath); err != nil {
			log.Error().Err(err).Str("path", status.FaviconPath).Msg("failed to load favicon, serving without one")
		}
	}
	resp := responder.New(status, icon)

	bus := events.NewEventBus(events.DefaultQueueSize)

	// Optional components; the interface-typed copies stay nil when disabled.
	var (
		pipeline    *notify.Pipeline
		store       *db.ContactStore
		mqttHandler *telemetry.MQTTHandler

		subscribers []string

		contactReader api.ContactReader
		statsSource   api.StatsSource
		cliContacts   cli.ContactLister
		cliPipeline   cli.Pipeline
		prunable      scheduler.ContactStore
	)

	webhook := cfg.GetWebhook()
	if webhook.Enabled() {
		sink := connector.NewWebhookSink(webhook.URL, time.Duration(webhook.TimeoutSec)*time.Second)
		pipeline = notify.NewPipeline(sink, notify.Options{
			Title:           webhook.Title,
			BatchSize:       webhook.BatchSize,
			FlushInterval:   time.Duration(webhook.FlushIntervalSec) * time.Second,
			QueueSize:       webhook.QueueSize,
			DeliveryTimeout: time.Duration(webhook.TimeoutSec) * time.Second,
		})
		pipeline.Start()
		throttle := notify.NewThrottle(time.Duration(webhook.CooldownSec) * time.Second)
		bus.Subscribe(events.EventContact, "webhook", notify.ContactHandler(pipeline, throttle))
		subscribers = append(subscribers, "webhook")
		statsSource, cliPipeline = pipeline, pipeline
	}

	if cfg.Database.Enabled {
		var err error
		store, err = db.NewContactStore(cfg.Database.Path)
		if err != nil {
			log.Error().Err(err).Msg("failed to open contact database, contact log disabled")
		} else {
			bus.Subscribe(events.EventContact, "database", store.HandleContact)
			subscribers = append(subscribers, "database")
			contactReader, cliContacts, prunable = store, store, store
		}
	}

	if cfg.MQTT.Enabled {
		var err error
		mqttHandler, err = telemetry.NewMQTTHandler(cfg.MQTT, sysInfo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			bus.Subscribe(events.EventContact, "mqtt", mqttHandler.HandleContact)
			bus.Subscribe(events.EventHeartbeat, "mqtt_heartbeat", mqttHandler.HandleHeartbeat)
			subscribers = append(subscribers, "mqtt")
		}
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		feed := api.NewFeed(cfg.API.AllowedOrigins)
		apiServer = api.NewServer(cfg.API, feed)
		apiServer.SetDependencies(contactReader, statsSource)
		bus.Subscribe(events.EventContact, "feed", feed.HandleContact)
		subscribers = append(subscribers, "feed")
	}

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	bus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, event events.Event) error {
		if event.Source == "cli" {
			quitOnce.Do(func() { close(quitCh) })
		}
		return nil
	})

	// The listener stops first; services keep running until the bus has
	// drained so in-flight contacts still reach them.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svcCtx, svcCancel := context.WithCancel(context.Background())
	defer svcCancel()

	listener := network.NewTCPListener(cfg.Listener, resp, bus)
	if err := listener.Listen(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start listener")
	}

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := listener.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("listener stopped")
		}
	}()

	var wg sync.WaitGroup

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttHandler.Start(svcCtx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(svcCtx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	sched := scheduler.NewScheduler(prunable, cfg.Database, cfg.Logging)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(svcCtx)
	}()

	diskPath := "."
	if cfg.Database.Enabled {
		diskPath = filepath.Dir(cfg.Database.Path)
	}
	healthMgr := health.NewManager(cfg.Health, diskPath, bus, subscribers, statsSource)
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(svcCtx)
	}()

	if opts.interactive {
		console := cli.NewCLI(cliContacts, cliPipeline, bus)
		go console.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quitCh:
		log.Info().Msg("shutdown requested from console")
	case <-listenerDone:
		log.Error().Msg("listener exited unexpectedly, shutting down")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-listenerDone
		bus.Stop()
		if pipeline != nil {
			pipeline.Stop()
		}
		svcCancel()
		wg.Wait()
	}()

	var closeStore func() error
	if store != nil {
		closeStore = store.Close
	}
	awaitShutdown(done, shutdownTimeout, closeStore)

	log.Info().Msg("lure stopped")
}

// awaitShutdown waits for done and then runs closeStore. On timeout the
// store stays open because subscribers may still be writing to it.
func awaitShutdown(done <-chan struct{}, timeout time.Duration, closeStore func() error) bool {
	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("shutdown timed out, forcing exit without closing the database")
		return false
	}

	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("failed to close contact database")
		}
	}
	return true
}
