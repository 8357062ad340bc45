package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"icinga-passive-checks/internal/config"
)

// ReloadFunc returns freshly loaded configuration
type ReloadFunc func() (*config.Config, error)

// Run walks all targets, sleeps for the configured interval and repeats until
// ctx is done. A signal on reload makes the monitor pick up new targets and a
// new interval from reloadFn and start the next cycle right away. Probe method
// and API credentials are fixed for the life of the Monitor.
func (m *Monitor) Run(ctx context.Context, reload <-chan struct{}, reloadFn ReloadFunc) {
	m.logger.Info("Monitor started", zap.Int("targets", len(m.targets)), zap.Duration("interval", m.interval))

	for {
		m.RunOnce(ctx)

		m.mu.Lock()
		interval := m.interval
		m.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("Monitor stopped")
			return
		case <-timer.C:
		case _, ok := <-reload:
			timer.Stop()
			if !ok {
				reload = nil
				continue
			}
			m.reload(reloadFn)
		}
	}
}

func (m *Monitor) reload(reloadFn ReloadFunc) {
	if reloadFn == nil {
		return
	}

	cfg, err := reloadFn()
	if err != nil {
		m.logger.Error("Failed to reload config, keeping previous targets", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.targets = cfg.Pings
	m.interval = cfg.SleepInterval()
	m.mu.Unlock()

	m.logger.Info("Config reloaded", zap.Int("targets", len(cfg.Pings)), zap.Duration("interval", cfg.SleepInterval()))
}
