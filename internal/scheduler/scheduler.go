// Package scheduler runs background housekeeping: pruning old contacts,
// trimming log files, and logging daily contact totals.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/util"
)

// ContactStore is the part of the contact log the scheduler maintains.
type ContactStore interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	store  ContactStore
	dbCfg  config.DatabaseConfig
	logCfg config.LoggingConfig
	logger zerolog.Logger

	now           func() time.Time
	statsInterval time.Duration
}

// NewScheduler creates a scheduler. store may be nil when the contact log
// is disabled; only log cleanup runs then.
func NewScheduler(store ContactStore, dbCfg config.DatabaseConfig, logCfg config.LoggingConfig) *Scheduler {
	return &Scheduler{
		store:         store,
		dbCfg:         dbCfg,
		logCfg:        logCfg,
		logger:        log.With().Str("component", "scheduler").Logger(),
		now:           time.Now,
		statsInterval: 24 * time.Hour,
	}
}

// Start runs every task until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Msg("scheduler started")

	var wg sync.WaitGroup
	if s.store != nil && s.dbCfg.RetentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runPruneLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runDailyLoop(ctx)
	}()

	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) pruneInterval() time.Duration {
	if s.dbCfg.PruneIntervalMin <= 0 {
		return time.Hour
	}
	return time.Duration(s.dbCfg.PruneIntervalMin) * time.Minute
}

// runPruneLoop prunes once at startup and then on every tick.
func (s *Scheduler) runPruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pruneInterval())
	defer ticker.Stop()

	for {
		if _, err := s.PruneContacts(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("contact pruning failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PruneContacts deletes contacts older than the retention period.
func (s *Scheduler) PruneContacts(ctx context.Context) (int64, error) {
	if s.store == nil || s.dbCfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.dbCfg.RetentionDays)
	removed, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Msg("pruned old contacts")
	}
	return removed, nil
}

func (s *Scheduler) runDailyLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats(ctx)
			s.cleanLogs()
		}
	}
}

// collectStats logs the contact totals per kind.
func (s *Scheduler) collectStats(ctx context.Context) map[string]int64 {
	if s.store == nil {
		return nil
	}

	counts, err := s.store.CountByKind(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to collect contact stats")
		return nil
	}

	var total int64
	ev := s.logger.Info()
	for kind, n := range counts {
		ev = ev.Int64(kind, n)
		total += n
	}
	ev.Int64("total", total).Msg("daily stats collected")
	return counts
}

func (s *Scheduler) cleanLogs() int {
	if s.logCfg.Directory == "" || s.logCfg.MaxBackups <= 0 {
		return 0
	}
	removed := util.CleanOldLogs(s.logCfg.Directory, s.logCfg.MaxBackups)
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old log files removed")
	}
	return removed
}
