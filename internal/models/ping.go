package models

// PingMetrics holds the statistics extracted from one probe invocation
type PingMetrics struct {
	PacketLoss float64 `json:"packet_loss"` // percentage, 0-100
	Time       int     `json:"time"`        // total probe duration in milliseconds
	RTTMin     float64 `json:"rtt_min"`     // milliseconds
	RTTAvg     float64 `json:"rtt_avg"`     // milliseconds
	RTTMax     float64 `json:"rtt_max"`     // milliseconds
	RTTMdev    float64 `json:"rtt_mdev"`    // milliseconds
}

// Sentinel values used when probe output lacks a field. An unreadable probe
// scores as total loss with catastrophic latency.
const (
	DefaultPacketLoss = 100.0
	DefaultTime       = 0
	DefaultRTT        = 10000.0
)

// DefaultPingMetrics returns the metrics reported for unparsable probe output
func DefaultPingMetrics() PingMetrics {
	return PingMetrics{
		PacketLoss: DefaultPacketLoss,
		Time:       DefaultTime,
		RTTMin:     DefaultRTT,
		RTTAvg:     DefaultRTT,
		RTTMax:     DefaultRTT,
		RTTMdev:    DefaultRTT,
	}
}
