package service

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// systemdUnit is installed through kardianos/service and rendered by Unit,
// so it may only use the fields of unitData and the cmd/cmdEscape funcs that
// both provide.
const systemdUnit = `[Unit]
Description={{.Description}}
ConditionFileIsExecutable={{.Path|cmdEscape}}
Wants=network-online.target
After=network-online.target{{range .Dependencies}} {{.}}{{end}}

[Service]
ExecStart={{.Path|cmdEscape}}{{range .Arguments}} {{.|cmd}}{{end}}
Restart=always
RestartSec=10
DynamicUser=yes
NoNewPrivileges=yes
ProtectSystem=strict
ProtectHome=yes
PrivateDevices=yes
PrivateTmp=yes
RestrictSUIDSGID=yes

[Install]
WantedBy=multi-user.target
`

type unitData struct {
	Description  string
	Path         string
	Arguments    []string
	Dependencies []string
}

var unitFuncs = template.FuncMap{
	"cmd": func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	},
	"cmdEscape": func(s string) string {
		return strings.ReplaceAll(s, " ", `\x20`)
	},
}

var unitTemplate = template.Must(template.New("unit").Funcs(unitFuncs).Parse(systemdUnit))

func renderUnit(data unitData) (string, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.String(), nil
}
