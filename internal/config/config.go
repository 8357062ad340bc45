package config

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for the passive check agent
type Config struct {
	// Path is the file the configuration was read from
	Path string `toml:"-"`

	Icinga  IcingaConfig  `toml:"icinga"`
	Command CommandConfig `toml:"command"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Probe   ProbeConfig   `toml:"probe"`
	Control ControlConfig `toml:"control"`
	Log     LogConfig     `toml:"log"`
	Update  UpdateConfig  `toml:"update"`
	Pings   []PingConfig  `toml:"ping" validate:"dive"`
}

// IcingaConfig describes the Icinga 2 API endpoint
type IcingaConfig struct {
	APIURL             string `toml:"api_url" validate:"required,url"`
	APIUser            string `toml:"api_user" validate:"required"`
	APIPassword        string `toml:"api_password" validate:"required"`
	CheckSource        string `toml:"check_source"`
	Timeout            int    `toml:"timeout" validate:"gt=0"` // seconds
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type CommandConfig struct {
	Debug bool `toml:"debug"`
}

type DaemonConfig struct {
	SleepDuration int `toml:"sleep_duration" validate:"gt=0"` // seconds
}

type ProbeConfig struct {
	Method  string `toml:"method" validate:"oneof=exec native"`
	Timeout int    `toml:"timeout" validate:"gt=0"` // seconds
}

type ControlConfig struct {
	Socket string `toml:"socket" validate:"required"`
}

// LogConfig enables an additional rotated JSON log file
type LogConfig struct {
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"`
	MaxAge     int    `toml:"max_age_days" validate:"gte=0"`
	Compress   bool   `toml:"compress"`
}

type UpdateConfig struct {
	Repository string `toml:"repository" validate:"required"`
	Asset      string `toml:"asset" validate:"required"`
}

// PingConfig is one named probe target
type PingConfig struct {
	Name string `toml:"name" validate:"required"`
	Host string `toml:"host" validate:"required"`
}

const (
	ProbeMethodExec   = "exec"
	ProbeMethodNative = "native"

	DefaultSocketPath = "/tmp/icinga_checks.sock"
)

// Default returns a Config populated with every default value
func Default() Config {
	return Config{
		Icinga:  IcingaConfig{Timeout: 30},
		Daemon:  DaemonConfig{SleepDuration: 60},
		Probe:   ProbeConfig{Method: ProbeMethodExec, Timeout: 30},
		Control: ControlConfig{Socket: DefaultSocketPath},
		Log:     LogConfig{MaxSize: 10, MaxBackups: 5, MaxAge: 14, Compress: true},
		Update: UpdateConfig{
			Repository: "nsg/icinga_passive_checks",
			Asset:      "icinga_passive_checks",
		},
	}
}

// SleepInterval is the pause between two daemon cycles
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.Daemon.SleepDuration) * time.Second
}

// HTTPTimeout bounds one API submission
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Icinga.Timeout) * time.Second
}

// ProbeTimeout bounds one probe invocation
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.Timeout) * time.Second
}

// MarshalLogObject logs the configuration with the API password redacted
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("path", c.Path)
	enc.AddString("api_url", c.Icinga.APIURL)
	enc.AddString("api_user", c.Icinga.APIUser)
	enc.AddString("api_password", "<redacted>")
	enc.AddString("check_source", c.Icinga.CheckSource)
	enc.AddBool("debug", c.Command.Debug)
	enc.AddDuration("sleep_duration", c.SleepInterval())
	enc.AddString("probe_method", c.Probe.Method)
	enc.AddString("control_socket", c.Control.Socket)
	return enc.AddArray("pings", zapcore.ArrayMarshalerFunc(func(arr zapcore.ArrayEncoder) error {
		for _, p := range c.Pings {
			if err := arr.AppendObject(zapcore.ObjectMarshalerFunc(func(obj zapcore.ObjectEncoder) error {
				obj.AddString("name", p.Name)
				obj.AddString("host", p.Host)
				return nil
			})); err != nil {
				return err
			}
		}
		return nil
	}))
}
