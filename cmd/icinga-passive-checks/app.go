package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"go.uber.org/zap"

	"icinga-passive-checks/internal/config"
	"icinga-passive-checks/internal/icinga"
	"icinga-passive-checks/internal/logging"
	"icinga-passive-checks/internal/models"
	"icinga-passive-checks/internal/ping"
)

// app holds what every command that talks to Icinga needs
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   *zap.Logger
	source   string
	reporter *icinga.Reporter
	prober   models.Prober
}

// newApp loads and validates the configuration and builds the pipeline
func newApp(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Command.Debug {
		logger.Debug("Loaded config", zap.Object("config", cfg))
	}

	source, err := checkSource(ctx, cfg, os.Getenv, osHostname)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		loader: loader,
		logger: logger,
		source: source,
		reporter: icinga.NewReporter(icinga.Options{
			URL:                cfg.Icinga.APIURL,
			User:               cfg.Icinga.APIUser,
			Password:           cfg.Icinga.APIPassword,
			Timeout:            cfg.HTTPTimeout(),
			InsecureSkipVerify: cfg.Icinga.InsecureSkipVerify,
		}, logger),
		prober: newProber(cfg),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// readConfig loads the configuration without validating it. A missing file
// yields the defaults.
func readConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.NewLoader().Read(configPath)
	if errors.Is(err, config.ErrNotFound) {
		def := config.Default()
		return &def, nil
	}
	return cfg, err
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(logging.Options{
		Debug:      cfg.Command.Debug,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}

func newProber(cfg *config.Config) models.Prober {
	if cfg.Probe.Method == config.ProbeMethodNative {
		return ping.NewNative(cfg.ProbeTimeout())
	}
	return ping.New(cfg.ProbeTimeout())
}

var errNoCheckSource = errors.New("cannot determine check source: set icinga.check_source or HOSTNAME")

// checkSource resolves the host.name results are reported under: the
// configured override, then $HOSTNAME, then the OS hostname
func checkSource(ctx context.Context, cfg *config.Config, getenv func(string) string, hostname func(context.Context) (string, error)) (string, error) {
	if s := strings.TrimSpace(cfg.Icinga.CheckSource); s != "" {
		return s, nil
	}
	if s := strings.TrimSpace(getenv("HOSTNAME")); s != "" {
		return s, nil
	}

	s, err := hostname(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNoCheckSource, err)
	}
	if s = strings.TrimSpace(s); s == "" {
		return "", errNoCheckSource
	}
	return s, nil
}

func osHostname(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return os.Hostname()
	}
	return info.Hostname, nil
}
