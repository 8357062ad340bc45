package ping

import "fmt"

// ErrorKind classifies why a probe produced fail-safe metrics
type ErrorKind int

const (
	// KindNotFound means the probe tool could not be started
	KindNotFound ErrorKind = iota
	// KindExited means the probe tool exited abnormally without statistics
	KindExited
	// KindUnparsable means the probe ran but printed no statistics
	KindUnparsable
	// KindTimeout means the probe was killed after the configured timeout
	KindTimeout
	// KindInvalidHost means the target could not be used as a probe argument
	KindInvalidHost
	// KindFailed covers native probe errors
	KindFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindExited:
		return "exited abnormally"
	case KindUnparsable:
		return "unparsable output"
	case KindTimeout:
		return "timeout"
	case KindInvalidHost:
		return "invalid host"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProbeError describes a degraded probe. The metrics returned alongside it are
// always usable.
type ProbeError struct {
	Kind     ErrorKind
	Host     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s: %s", e.Host, e.Kind)
	if e.Kind == KindExited {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
