package models

import (
	"strconv"

	"github.com/atc0005/go-nagios"
)

// Status is the monitoring-plugin state of a check, valued by its plugin
// exit code
type Status int

const (
	StatusOK       = Status(nagios.StateOKExitCode)
	StatusWarning  = Status(nagios.StateWARNINGExitCode)
	StatusCritical = Status(nagios.StateCRITICALExitCode)
	StatusUnknown  = Status(nagios.StateUNKNOWNExitCode)
)

// String returns the upper-case plugin label for the status
func (s Status) String() string {
	return nagios.ExitCodeToStateLabel(int(s))
}

// ExitStatus returns the status as the string carried by a CheckResult
func (s Status) ExitStatus() string {
	return strconv.Itoa(int(s))
}

// Service type labels prefixed to the Icinga service name
const (
	CheckTypePing    = "Passive Ping"
	CheckTypeCommand = "Passive Command"
)

// ManualCheckHost is reported as the check host for results submitted over
// the control socket
const ManualCheckHost = "127.0.0.1"

// CheckResult is a plugin result ready to be turned into a passive check
// submission. An empty field counts as absent.
type CheckResult struct {
	ExitStatus      string `json:"exit_status"`
	PluginOutput    string `json:"plugin_output"`
	PerformanceData string `json:"performance_data"` // comma-joined label=value;warn;crit;min[;max]
}

// Submission identifies where a CheckResult belongs
type Submission struct {
	Source string // Icinga host.name
	Name   string // check name, combined with Type into service.name
	Host   string // probed host, for logging only
	Type   string
	Result CheckResult
}
