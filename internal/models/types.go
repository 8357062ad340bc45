package models

import "context"

// Prober runs a reachability probe against a host. It always returns usable
// metrics; a non-nil error only explains why they are the fail-safe defaults.
type Prober interface {
	Probe(ctx context.Context, host string) (PingMetrics, error)
}

// Submitter delivers a passive check result to the monitoring server
type Submitter interface {
	Submit(ctx context.Context, sub Submission) error
}
