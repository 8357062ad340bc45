// Package checks turns probe metrics into plugin results and plugin results
// into Icinga passive check payloads.
package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atc0005/go-nagios"

	"icinga-passive-checks/internal/models"
)

// Ping thresholds, in Nagios perfdata order warn;crit;min
const (
	RTTWarnMS  = 3000
	RTTCritMS  = 5000
	LossWarn   = 80
	LossCrit   = 100
	TimeWarnMS = 8500
	TimeCritMS = 10000
	PerfMin    = 0
)

// PingStatus is OK only when no packet was lost
func PingStatus(metrics models.PingMetrics) models.Status {
	if metrics.PacketLoss == 0 {
		return models.StatusOK
	}
	return models.StatusCritical
}

// FormatPingResult renders metrics as a ping plugin result
func FormatPingResult(metrics models.PingMetrics) models.CheckResult {
	status := PingStatus(metrics)

	perfData := []string{
		perfDatum("rtavg", formatFloat(metrics.RTTAvg), "ms", RTTWarnMS, RTTCritMS),
		perfDatum("rtmin", formatFloat(metrics.RTTMin), "ms", RTTWarnMS, RTTCritMS),
		perfDatum("rtmax", formatFloat(metrics.RTTMax), "ms", RTTWarnMS, RTTCritMS),
		perfDatum("rtdev", formatFloat(metrics.RTTMdev), "ms", RTTWarnMS, RTTCritMS),
		perfDatum("pl", formatFloat(metrics.PacketLoss), "%", LossWarn, LossCrit),
		perfDatum("time", strconv.Itoa(metrics.Time), "ms", TimeWarnMS, TimeCritMS),
	}

	return models.CheckResult{
		ExitStatus: status.ExitStatus(),
		PluginOutput: fmt.Sprintf("PING %s - Packet loss = %s%% AVG = %sms",
			status, formatFloat(metrics.PacketLoss), formatFloat(metrics.RTTAvg)),
		PerformanceData: strings.Join(perfData, ","),
	}
}

// perfDatum renders one unquoted label=value[uom];warn;crit;min token. A value
// that is not a valid perfdata number is reported as "U" without a unit.
func perfDatum(label, value, unit string, warn, crit int) string {
	pd := nagios.PerformanceData{
		Label:             label,
		Value:             value,
		UnitOfMeasurement: unit,
		Warn:              strconv.Itoa(warn),
		Crit:              strconv.Itoa(crit),
		Min:               strconv.Itoa(PerfMin),
	}
	if err := pd.Validate(); err != nil {
		pd.Value = "U"
		pd.UnitOfMeasurement = ""
	}
	return fmt.Sprintf("%s=%s%s;%s;%s;%s", pd.Label, pd.Value, pd.UnitOfMeasurement, pd.Warn, pd.Crit, pd.Min)
}

// formatFloat prints the shortest exact decimal form, never an exponent
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
