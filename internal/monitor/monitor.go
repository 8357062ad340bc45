package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"icinga-passive-checks/internal/config"
	"icinga-passive-checks/internal/models"
)

// Monitor probes every configured target in order and submits one passive
// check result per target
type Monitor struct {
	source    string
	prober    models.Prober
	submitter models.Submitter
	logger    *zap.Logger

	mu       sync.Mutex
	targets  []config.PingConfig
	interval time.Duration
	cycles   int
	lastRun  time.Time
}

// Status is a snapshot of the monitor for the control channel
type Status struct {
	Targets  int
	Interval time.Duration
	Cycles   int
	LastRun  time.Time
}

// New creates a new Monitor reporting as host source
func New(cfg *config.Config, source string, prober models.Prober, submitter models.Submitter, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:    source,
		prober:    prober,
		submitter: submitter,
		logger:    logger,
		targets:   cfg.Pings,
		interval:  cfg.SleepInterval(),
	}
}

// RunOnce walks the target list once. Targets are handled strictly one after
// another; cancellation is only observed between targets.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.Lock()
	targets := m.targets
	m.mu.Unlock()

	m.logger.Debug("Starting check cycle", zap.Int("targets", len(targets)))

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		m.checkTarget(ctx, target)
	}

	m.mu.Lock()
	m.cycles++
	m.lastRun = time.Now()
	m.mu.Unlock()
}

// Status returns the current monitor state
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Targets:  len(m.targets),
		Interval: m.interval,
		Cycles:   m.cycles,
		LastRun:  m.lastRun,
	}
}
