package ping

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"icinga-passive-checks/internal/models"
)

// NativePinger probes hosts with in-process ICMP echo requests instead of the
// ping binary. Results map onto the same metrics and defaults as the parser.
type NativePinger struct {
	count    int
	timeout  time.Duration
	interval time.Duration
}

// NewNative creates a NativePinger bounded by timeout
func NewNative(timeout time.Duration) *NativePinger {
	return &NativePinger{
		count:    Count,
		timeout:  timeout,
		interval: time.Second,
	}
}

// Probe sends the echo requests and converts the statistics
func (p *NativePinger) Probe(ctx context.Context, host string) (models.PingMetrics, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return models.DefaultPingMetrics(), &ProbeError{Kind: KindInvalidHost, Host: host, Err: err}
	}

	pinger.Count = p.count
	pinger.Interval = p.interval
	if p.timeout > 0 {
		pinger.Timeout = p.timeout
	}

	// Unprivileged UDP first, raw sockets need CAP_NET_RAW
	pinger.SetPrivileged(false)
	start := time.Now()
	err = pinger.RunWithContext(ctx)
	if err != nil {
		pinger.SetPrivileged(true)
		start = time.Now()
		err = pinger.RunWithContext(ctx)
	}
	if err != nil {
		return models.DefaultPingMetrics(), &ProbeError{Kind: KindFailed, Host: host, Err: err}
	}

	return metricsFromStatistics(pinger.Statistics(), time.Since(start)), nil
}

func metricsFromStatistics(stats *probing.Statistics, elapsed time.Duration) models.PingMetrics {
	metrics := models.DefaultPingMetrics()
	metrics.Time = int(elapsed.Milliseconds())
	if stats.PacketsSent > 0 {
		metrics.PacketLoss = stats.PacketLoss
	}

	if stats.PacketsRecv > 0 {
		metrics.RTTMin = durationMillis(stats.MinRtt)
		metrics.RTTAvg = durationMillis(stats.AvgRtt)
		metrics.RTTMax = durationMillis(stats.MaxRtt)
		metrics.RTTMdev = durationMillis(stats.StdDevRtt)
	}
	return metrics
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
