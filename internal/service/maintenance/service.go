package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"go.uber.org/zap"
)

// Config contains maintenance service configuration
type Config struct {
	// PruneInterval is how often expired link records are removed
	PruneInterval time.Duration

	// LinkRetention keeps expired link records for this long after expiry
	LinkRetention time.Duration

	// ThrottleSweepInterval is how often idle throttle state is dropped
	ThrottleSweepInterval time.Duration

	// ThrottleIdle is how long a user may be idle before their throttle
	// state is dropped
	ThrottleIdle time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		PruneInterval:         time.Hour,
		LinkRetention:         0,
		ThrottleSweepInterval: 10 * time.Minute,
		ThrottleIdle:          time.Hour,
	}
}

// ThrottleSweeper forgets idle throttle state
type ThrottleSweeper interface {
	Prune(idle time.Duration) int
	Len() int
}

// Service handles periodic maintenance tasks
type Service struct {
	config   *Config
	links    port.LinkRepository
	throttle ThrottleSweeper
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. throttle may be nil.
func New(cfg *Config, links port.LinkRepository, throttle ThrottleSweeper, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if cfg.ThrottleSweepInterval == 0 {
		cfg.ThrottleSweepInterval = 10 * time.Minute
	}
	if cfg.ThrottleIdle == 0 {
		cfg.ThrottleIdle = time.Hour
	}

	return &Service{
		config:   cfg,
		links:    links,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs the maintenance loop until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("prune_interval", s.config.PruneInterval),
		zap.Duration("throttle_sweep_interval", s.config.ThrottleSweepInterval))

	// Records that expired while we were down go right away
	s.pruneExpiredLinks()

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	pruneTicker := time.NewTicker(s.config.PruneInterval)
	defer pruneTicker.Stop()

	sweepTicker := time.NewTicker(s.config.ThrottleSweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			s.pruneExpiredLinks()
		case <-sweepTicker.C:
			s.sweepThrottle()
		}
	}
}

// pruneExpiredLinks removes link records whose share has expired
func (s *Service) pruneExpiredLinks() {
	cutoff := s.now().Add(-s.config.LinkRetention)
	removed, err := s.links.DeleteExpiredLinks(cutoff)
	if err != nil {
		s.logger.Error("failed to prune expired links", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("pruned expired links", zap.Int("count", removed))
	}
}

// sweepThrottle drops throttle state of users that went quiet
func (s *Service) sweepThrottle() {
	if s.throttle == nil {
		return
	}
	if n := s.throttle.Prune(s.config.ThrottleIdle); n > 0 {
		s.logger.Debug("dropped idle throttle state",
			zap.Int("count", n),
			zap.Int("remaining", s.throttle.Len()))
	}
}
