package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stockline/invoice-ingest/internal/pipeline"
	"go.uber.org/zap"
)

// SweeperConfig controls the scheduled pending sweep
type SweeperConfig struct {
	Schedule    string
	AutoMatch   bool
	CreateStock bool
}

// SweeperStatus reports the sweeper's runtime state
type SweeperStatus struct {
	IsRunning bool
	Runs      int
	LastRun   time.Time
	LastError error
}

// Sweeper periodically drives all PENDING invoices through the pipeline.
// Overlapping ticks are safe: the per-invoice locking inside the processor
// serializes work on any invoice an operator touches at the same time.
type Sweeper struct {
	mu        sync.RWMutex
	cfg       SweeperConfig
	processor *pipeline.Processor
	cron      *cron.Cron
	logger    *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	runs      int
	lastRun   time.Time
	lastError error
}

// NewSweeper creates a sweeper from the given schedule and stage options
func NewSweeper(cfg SweeperConfig, processor *pipeline.Processor, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		processor: processor,
		logger:    logger,
	}
}

// Name implements Worker
func (s *Sweeper) Name() string {
	return "pending-sweeper"
}

// Start schedules the sweep. The first run happens at the first cron tick,
// not immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("sweeper already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.sweep); err != nil {
		s.cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.isRunning = true

	s.logger.Info("Pending sweeper started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Bool("auto_match", s.cfg.AutoMatch),
		zap.Bool("create_stock", s.cfg.CreateStock))
	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()

	s.logger.Info("Pending sweeper stopped", zap.Int("runs", s.runs))
}

// Status returns a snapshot of the sweeper's state
func (s *Sweeper) Status() SweeperStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SweeperStatus{
		IsRunning: s.isRunning,
		Runs:      s.runs,
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
}

func (s *Sweeper) sweep() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	summary, err := s.processor.ProcessPending(ctx, pipeline.Options{
		RunMatching: s.cfg.AutoMatch,
		RunCommit:   s.cfg.CreateStock,
	})

	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now()
	s.lastError = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Pending sweep failed", zap.Error(err))
		return
	}
	if summary.Total > 0 {
		s.logger.Info("Pending sweep complete",
			zap.Int("total", summary.Total),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
	}
}
