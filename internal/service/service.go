// Package service installs and runs the daemon under the host's service
// manager.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	Name        = "icinga-passive-checks"
	DisplayName = "Icinga Passive Checks"
	Description = "Probes configured hosts and submits passive check results to Icinga"
)

// RunFunc runs the daemon until ctx is done
type RunFunc func(ctx context.Context) error

// program adapts a RunFunc to service.Interface
type program struct {
	run    RunFunc
	logger *zap.Logger
	exit   func(code int)

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Go(func() {
		if err := p.run(ctx); err != nil {
			p.logger.Error("Daemon stopped with error", zap.Error(err))
			// non-zero exit lets the service manager restart us
			p.exit(1)
		}
	})
	return nil
}

func (p *program) Stop(service.Service) error {
	p.logger.Info("Stopping daemon")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

type Options struct {
	// ConfigPath is passed to the installed daemon with --config
	ConfigPath string
	// Executable defaults to the running binary
	Executable string
}

// Manager controls the daemon's system service
type Manager struct {
	svc    service.Service
	cfg    *service.Config
	run    RunFunc
	logger *zap.Logger
}

func NewManager(opts Options, run RunFunc, logger *zap.Logger) (*Manager, error) {
	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to resolve executable path: %w", err)
		}
	}

	args := []string{"daemon"}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}

	cfg := &service.Config{
		Name:        Name,
		DisplayName: DisplayName,
		Description: Description,
		Executable:  exe,
		Arguments:   args,
		Option: service.KeyValue{
			"SystemdScript": systemdUnit,
			// launchd and other unix managers
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	prg := &program{run: run, logger: logger, exit: os.Exit}
	svc, err := service.New(prg, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &Manager{svc: svc, cfg: cfg, run: run, logger: logger}, nil
}

func (m *Manager) Install() error {
	return m.svc.Install()
}

// Uninstall stops the service if it runs and removes it
func (m *Manager) Uninstall() error {
	_ = m.svc.Stop()
	return m.svc.Uninstall()
}

func (m *Manager) Start() error {
	return m.svc.Start()
}

func (m *Manager) Stop() error {
	return m.svc.Stop()
}

func (m *Manager) Status() (string, error) {
	status, err := m.svc.Status()
	if err != nil {
		return "", err
	}
	return statusText(status), nil
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	case service.StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("status %d", status)
	}
}

// Unit renders the systemd unit that Install writes on systemd hosts
func (m *Manager) Unit() (string, error) {
	return renderUnit(unitData{
		Description:  m.cfg.Description,
		Path:         m.cfg.Executable,
		Arguments:    m.cfg.Arguments,
		Dependencies: m.cfg.Dependencies,
	})
}

// Run runs the daemon. Under a service manager it hands control to it;
// interactively it runs in the foreground until SIGINT or SIGTERM.
func (m *Manager) Run() error {
	if !service.Interactive() {
		return m.svc.Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.run(ctx)
}
