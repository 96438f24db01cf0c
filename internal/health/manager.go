// Package health runs periodic self checks: disk space for the contact
// log, event bus drops, notification delivery failures, and a heartbeat
// published on the event bus.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/notify"
	"github.com/lure-project/lure/internal/util"
)

// Bus is the event bus as seen by the health checks.
type Bus interface {
	events.Emitter
	Dropped(name string) uint64
}

// PipelineStats reports notification counters.
type PipelineStats interface {
	Stats() notify.Stats
}

// Manager runs periodic health checks.
type Manager struct {
	cfg         config.HealthConfig
	diskPath    string
	bus         Bus
	subscribers []string
	pipeline    PipelineStats
	startedAt   time.Time
	logger      zerolog.Logger

	mu          sync.Mutex
	lastDropped map[string]uint64
	lastFailed  uint64
	usage       func(path string) (util.ResourceUsage, error)
}

// NewManager creates a health check manager. subscribers names the bus
// subscribers whose drop counters are watched; pipeline may be nil.
func NewManager(cfg config.HealthConfig, diskPath string, bus Bus, subscribers []string, pipeline PipelineStats) *Manager {
	return &Manager{
		cfg:         cfg,
		diskPath:    diskPath,
		bus:         bus,
		subscribers: subscribers,
		pipeline:    pipeline,
		startedAt:   time.Now(),
		logger:      log.With().Str("component", "health").Logger(),
		lastDropped: make(map[string]uint64),
		usage:       util.GetResourceUsage,
	}
}

// Start runs the checks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"general_health", m.cfg.CheckIntervalSec, m.checkGeneralHealth},
		{"heartbeat", m.cfg.HeartbeatIntervalSec, m.heartbeat},
	}

	var wg sync.WaitGroup
	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", started).Msg("health check manager started")
	wg.Wait()
	m.logger.Info().Msg("health check manager stopped")
}

func (m *Manager) checkGeneralHealth(ctx context.Context) {
	m.checkDisk()
	m.checkEventBus()
	m.checkNotifications()
}

// checkDisk warns when the disk holding the contact log fills up and
// returns the alert level, empty when healthy.
func (m *Manager) checkDisk() string {
	usage, err := m.usage(m.diskPath)
	if err != nil {
		m.logger.Warn().Err(err).Msg("disk utilization check failed")
		return ""
	}

	level := diskAlertLevel(usage.DiskUsedPercent, m.cfg.DiskWarnPercent)
	if level == "" {
		return ""
	}
	m.logger.Warn().
		Str("level", level).
		Float64("used_percent", usage.DiskUsedPercent).
		Uint64("free_mb", usage.DiskFreeMB).
		Str("path", m.diskPath).
		Msg("disk space running low")
	return level
}

// diskAlertLevel maps disk usage to an alert level. threshold <= 0
// disables the warning level.
func diskAlertLevel(usedPercent, threshold float64) string {
	switch {
	case usedPercent >= 99:
		return "critical"
	case threshold > 0 && usedPercent >= threshold:
		return "warning"
	default:
		return ""
	}
}

// checkEventBus returns how many events each subscriber dropped since the
// previous check.
func (m *Manager) checkEventBus() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make(map[string]uint64)
	for _, name := range m.subscribers {
		total := m.bus.Dropped(name)
		if delta := total - m.lastDropped[name]; delta > 0 {
			fresh[name] = delta
			m.logger.Warn().
				Str("subscriber", name).
				Uint64("dropped", delta).
				Uint64("dropped_total", total).
				Msg("event subscriber is falling behind")
		}
		m.lastDropped[name] = total
	}
	return fresh
}

// checkNotifications returns the delivery failures since the previous check.
func (m *Manager) checkNotifications() uint64 {
	if m.pipeline == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	failed := m.pipeline.Stats().Failed
	delta := failed - m.lastFailed
	m.lastFailed = failed
	if delta > 0 {
		m.logger.Warn().Uint64("failed", delta).Msg("webhook deliveries failing")
	}
	return delta
}

func (m *Manager) heartbeat(ctx context.Context) {
	m.bus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "health",
		Payload: m.heartbeatPayload(),
	})
}

func (m *Manager) heartbeatPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"uptime_sec": int64(time.Since(m.startedAt).Seconds()),
		"goroutines": runtime.NumGoroutine(),
	}
	if m.pipeline != nil {
		payload["notifications"] = m.pipeline.Stats()
	}
	if usage, err := m.usage(m.diskPath); err == nil {
		payload["cpu_percent"] = usage.CPUPercent
		payload["memory_percent"] = usage.MemoryPercent
		payload["disk_used_percent"] = usage.DiskUsedPercent
	}
	return payload
}
