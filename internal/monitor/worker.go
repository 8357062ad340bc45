package monitor

import (
	"context"

	"go.uber.org/zap"

	"icinga-passive-checks/internal/checks"
	"icinga-passive-checks/internal/config"
	"icinga-passive-checks/internal/models"
)

// checkTarget runs the probe, formats the result and submits it. Neither a
// degraded probe nor a failed submission stops the cycle.
func (m *Monitor) checkTarget(ctx context.Context, target config.PingConfig) {
	log := m.logger.With(zap.String("check", target.Name), zap.String("host", target.Host))

	metrics, err := m.prober.Probe(ctx, target.Host)
	if err != nil {
		log.Warn("Probe failed, reporting fail-safe metrics", zap.Error(err))
	}

	result := checks.FormatPingResult(metrics)
	log.Debug("Probe finished",
		zap.Float64("packet_loss", metrics.PacketLoss),
		zap.Float64("rtt_avg", metrics.RTTAvg),
		zap.String("exit_status", result.ExitStatus),
	)

	// the submitter logs its own outcome
	_ = m.submitter.Submit(ctx, models.Submission{
		Source: m.source,
		Name:   target.Name,
		Host:   target.Host,
		Type:   models.CheckTypePing,
		Result: result,
	})
}
