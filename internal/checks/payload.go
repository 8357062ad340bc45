package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atc0005/go-nagios"

	"icinga-passive-checks/internal/models"
)

// NoOutput replaces a missing plugin output
const NoOutput = "No output provided"

// CheckPayload is the body of an Icinga process-check-result request
type CheckPayload struct {
	Type            string   `json:"type"`
	Filter          string   `json:"filter"`
	ExitStatus      int      `json:"exit_status"`
	PluginOutput    string   `json:"plugin_output"`
	PerformanceData []string `json:"performance_data"`
	CheckSource     string   `json:"check_source"`
}

// BuildPayload maps a check result onto the service identified by source,
// checkType and name
func BuildPayload(source, checkType, name string, result models.CheckResult) CheckPayload {
	output := result.PluginOutput
	if output == "" {
		output = NoOutput
	}

	return CheckPayload{
		Type:            "Service",
		Filter:          ServiceFilter(source, checkType, name),
		ExitStatus:      parseExitStatus(result.ExitStatus),
		PluginOutput:    output,
		PerformanceData: SplitPerformanceData(result.PerformanceData),
		CheckSource:     source,
	}
}

// ServiceFilter selects the service "<type>: <name>" on host source
func ServiceFilter(source, checkType, name string) string {
	return fmt.Sprintf(`host.name=="%s" && service.name=="%s: %s"`, source, checkType, name)
}

// SplitPerformanceData splits comma-joined perfdata into trimmed tokens. An
// empty string yields an empty, non-nil slice.
func SplitPerformanceData(perfData string) []string {
	if perfData == "" {
		return []string{}
	}
	tokens := strings.Split(perfData, ",")
	for i, token := range tokens {
		tokens[i] = strings.TrimSpace(token)
	}
	return tokens
}

// parseExitStatus falls back to UNKNOWN for anything that is not a 32-bit
// integer
func parseExitStatus(s string) int {
	status, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nagios.StateUNKNOWNExitCode
	}
	return int(status)
}
