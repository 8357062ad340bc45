package ping

import (
	"regexp"
	"strconv"

	"icinga-passive-checks/internal/models"
)

var (
	packetLossPattern = regexp.MustCompile(`([0-9.]+)% packet loss`)
	timePattern       = regexp.MustCompile(`time (\d+)ms`)

	// Linux iputils first, then BSD/macOS
	rttPatterns = []*regexp.Regexp{
		regexp.MustCompile(`rtt min/avg/max/mdev = ([0-9.]+)/([0-9.]+)/([0-9.]+)/([0-9.]+) ms`),
		regexp.MustCompile(`round-trip min/avg/max/stddev = ([0-9.]+)/([0-9.]+)/([0-9.]+)/([0-9.]+) ms`),
	}
)

// ParseMetrics extracts packet loss, total time and the RTT quartet from ping
// output. It never fails: every field that is missing or unreadable falls back
// to the value in models.DefaultPingMetrics.
func ParseMetrics(output string) models.PingMetrics {
	metrics := models.DefaultPingMetrics()

	if matches := packetLossPattern.FindStringSubmatch(output); len(matches) > 1 {
		if loss, err := strconv.ParseFloat(matches[1], 64); err == nil {
			metrics.PacketLoss = loss
		}
	}

	if matches := timePattern.FindStringSubmatch(output); len(matches) > 1 {
		if ms, err := strconv.Atoi(matches[1]); err == nil {
			metrics.Time = ms
		}
	}

	for _, pattern := range rttPatterns {
		matches := pattern.FindStringSubmatch(output)
		if len(matches) < 5 {
			continue
		}
		metrics.RTTMin = parseRTT(matches[1])
		metrics.RTTAvg = parseRTT(matches[2])
		metrics.RTTMax = parseRTT(matches[3])
		metrics.RTTMdev = parseRTT(matches[4])
		break
	}

	return metrics
}

func parseRTT(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return models.DefaultRTT
	}
	return v
}

// hasSummary reports whether the output contains a ping statistics block
func hasSummary(output string) bool {
	return packetLossPattern.MatchString(output)
}
