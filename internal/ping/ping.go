package ping

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"icinga-passive-checks/internal/models"
)

// Count is the number of echo requests sent per probe invocation
const Count = 8

// Pinger probes hosts by running the system ping binary
type Pinger struct {
	command string
	count   int
	timeout time.Duration
}

// New creates a Pinger that kills ping after timeout
func New(timeout time.Duration) *Pinger {
	return &Pinger{
		command: "ping",
		count:   Count,
		timeout: timeout,
	}
}

// Probe pings the host and parses its statistics. Failures to run ping are
// reported as *ProbeError next to the fail-safe metrics.
func (p *Pinger) Probe(ctx context.Context, host string) (models.PingMetrics, error) {
	if host == "" || strings.HasPrefix(host, "-") {
		return models.DefaultPingMetrics(), &ProbeError{Kind: KindInvalidHost, Host: host}
	}

	output, err := p.run(ctx, host)
	metrics := ParseMetrics(output)

	if hasSummary(output) {
		// ping exits non-zero when no reply arrives; the statistics still
		// describe the result
		return metrics, nil
	}
	if err != nil {
		return metrics, err
	}
	return metrics, &ProbeError{Kind: KindUnparsable, Host: host}
}

func (p *Pinger) run(ctx context.Context, host string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.command, "-c", strconv.Itoa(p.count), host)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANG=C")
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.ToValidUTF8(stdout.String(), "�")
	if err == nil {
		return output, nil
	}

	probeErr := &ProbeError{
		Host:   host,
		Stderr: strings.TrimSpace(strings.ToValidUTF8(stderr.String(), "�")),
		Err:    err,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		probeErr.Kind = KindTimeout
	case errors.As(err, &exitErr):
		probeErr.Kind = KindExited
		probeErr.ExitCode = exitErr.ExitCode()
	default:
		probeErr.Kind = KindNotFound
	}
	return output, probeErr
}
