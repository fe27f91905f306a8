package scheduler

import (
	"context"
	"math/rand"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/domain/sync"
)

// Config holds configuration for the background sync scheduler
type Config struct {
	// Enabled indicates whether background passes run at all
	Enabled bool
	// SyncInterval is the time between full sync rounds
	SyncInterval time.Duration
	// SyncJitter spreads round starts so multiple instances do not
	// hammer the marketplace at the same instant
	SyncJitter time.Duration
	// GCInterval is the time between sync log cleanup runs
	GCInterval time.Duration
	// LogRetention is how long sync log entries are kept
	LogRetention time.Duration
	// PassTimeout bounds a single account's sync round
	PassTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		SyncInterval: 15 * time.Minute,
		SyncJitter:   time.Minute,
		GCInterval:   24 * time.Hour,
		LogRetention: 30 * 24 * time.Hour,
		PassTimeout:  15 * time.Minute,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.SyncJitter < 0 || c.SyncJitter >= c.SyncInterval {
		return ErrInvalidConfig
	}
	if c.GCInterval <= 0 || c.LogRetention <= 0 {
		return ErrInvalidConfig
	}
	if c.PassTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// PassRunner runs every configured table pass for one account. Satisfied by
// the sync orchestrator.
type PassRunner interface {
	RunAll(ctx context.Context, accountID uuid.UUID) ([]appsync.PassReport, error)
}

// SyncScheduler periodically runs sync rounds for every connected account and
// garbage-collects aged sync log entries.
type SyncScheduler struct {
	config       Config
	accounts     sync.AccountFinder
	orchestrator PassRunner
	logs         sync.SyncLogRepository
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        gosync.WaitGroup
	mu        gosync.Mutex
	isRunning bool
}

// NewSyncScheduler creates a new scheduler
func NewSyncScheduler(
	config Config,
	accounts sync.AccountFinder,
	orchestrator PassRunner,
	logs sync.SyncLogRepository,
	logger *zap.Logger,
) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:       config,
		accounts:     accounts,
		orchestrator: orchestrator,
		logs:         logs,
		logger:       logger,
	}, nil
}

// Start launches the sync and cleanup loops. Calling Start on a running
// scheduler is a no-op, as is starting a disabled one.
func (s *SyncScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("sync scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.syncLoop(ctx)
	go s.gcLoop(ctx)

	s.logger.Info("sync scheduler started",
		zap.Duration("sync_interval", s.config.SyncInterval),
		zap.Duration("gc_interval", s.config.GCInterval),
		zap.Duration("log_retention", s.config.LogRetention),
	)

	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight round to
// finish until ctx expires.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SyncScheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if jitter := s.jitterDelay(); jitter > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(jitter):
				}
			}
			s.RunRound(ctx)
		}
	}
}

func (s *SyncScheduler) jitterDelay() time.Duration {
	if s.config.SyncJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(s.config.SyncJitter)))
}

// RunRound executes one sync round across all connected accounts. Failures
// are logged per account; one broken account never blocks the others.
func (s *SyncScheduler) RunRound(ctx context.Context) {
	accounts, err := s.accounts.FindConnected(ctx)
	if err != nil {
		s.logger.Error("failed to list connected accounts", zap.Error(err))
		return
	}

	for i := range accounts {
		account := &accounts[i]
		if ctx.Err() != nil {
			return
		}

		passCtx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
		reports, err := s.orchestrator.RunAll(passCtx, account.ID)
		cancel()

		if err != nil {
			s.logger.Warn("scheduled sync round aborted",
				zap.String("scope", account.Scope),
				zap.Error(err),
			)
			continue
		}

		var processed, errored int
		for _, report := range reports {
			processed += report.Processed
			errored += report.Errored
		}
		s.logger.Info("scheduled sync round finished",
			zap.String("scope", account.Scope),
			zap.Int("tables", len(reports)),
			zap.Int("processed", processed),
			zap.Int("errored", errored),
		)
	}
}

func (s *SyncScheduler) gcLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CollectLogs(ctx)
		}
	}
}

// CollectLogs deletes sync log entries older than the retention window.
func (s *SyncScheduler) CollectLogs(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.LogRetention)
	deleted, err := s.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("sync log cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("sync log cleanup finished",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
