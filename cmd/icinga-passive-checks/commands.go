package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"icinga-passive-checks/internal/config"
	"icinga-passive-checks/internal/control"
	"icinga-passive-checks/internal/monitor"
	"icinga-passive-checks/internal/service"
	"icinga-passive-checks/internal/update"
	"icinga-passive-checks/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Probe every configured target once and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd.Context())
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Probe targets continuously and serve the control socket",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, a, err := newServiceManager()
		if err != nil {
			return err
		}
		defer a.close()
		return mgr.Run()
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <source> <name> <exit_status> <output>",
	Short: "Submit a check result through the running daemon",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControl(cmd, "report|"+strings.Join(args, "|"))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return sendControl(cmd, "status")
	},
}

var checkUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check whether a newer release is available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := newUpdater()
		if err != nil {
			return err
		}
		msg, err := u.Check(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest release and replace this binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := newUpdater()
		if err != nil {
			return err
		}
		msg, err := u.Update(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the daemon as a system service",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	actions := []struct {
		use, short string
		fn         func(*service.Manager) error
	}{
		{"install", "Install the system service", (*service.Manager).Install},
		{"uninstall", "Stop and remove the system service", (*service.Manager).Uninstall},
		{"start", "Start the system service", (*service.Manager).Start},
		{"stop", "Stop the system service", (*service.Manager).Stop},
	}
	for _, action := range actions {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, a, err := newServiceManager()
				if err != nil {
					return err
				}
				defer a.close()
				if err := action.fn(mgr); err != nil {
					return fmt.Errorf("service %s: %w", action.use, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action.use)
				return nil
			},
		})
	}

	serviceCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the system service status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, a, err := newServiceManager()
				if err != nil {
					return err
				}
				defer a.close()
				status, err := mgr.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "print-unit",
			Short: "Print the systemd unit that install writes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, a, err := newServiceManager()
				if err != nil {
					return err
				}
				defer a.close()
				unit, err := mgr.Unit()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), unit)
				return nil
			},
		},
	)
}

// runOnce walks all targets a single time
func runOnce(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.New(a.cfg, a.source, a.prober, a.reporter, a.logger).RunOnce(ctx)
	return nil
}

// runDaemon serves the control socket and runs the monitor loop until ctx is
// done
func runDaemon(ctx context.Context, a *app) error {
	mon := monitor.New(a.cfg, a.source, a.prober, a.reporter, a.logger)
	srv := control.NewServer(a.cfg.Control.Socket, a.reporter, mon, a.logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	reload, err := config.Watch(ctx, a.cfg.Path, a.logger)
	if err != nil {
		a.logger.Warn("Config reload disabled", zap.Error(err))
	}

	a.logger.Info("Daemon started",
		zap.String("check_source", a.source),
		zap.String("config", a.cfg.Path),
		zap.String("version", version.Version),
	)

	var serveErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		serveErr = srv.Serve(ctx)
	})
	wg.Go(func() {
		mon.Run(ctx, reload, func() (*config.Config, error) {
			return a.loader.Load(a.cfg.Path)
		})
	})
	wg.Wait()

	a.logger.Info("Daemon stopped")
	return serveErr
}

func newServiceManager() (*service.Manager, *app, error) {
	a, err := newApp(context.Background())
	if err != nil {
		return nil, nil, err
	}

	cfgPath, err := filepath.Abs(a.cfg.Path)
	if err != nil {
		a.close()
		return nil, nil, err
	}

	mgr, err := service.NewManager(service.Options{ConfigPath: cfgPath}, func(ctx context.Context) error {
		return runDaemon(ctx, a)
	}, a.logger)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return mgr, a, nil
}

func newUpdater() (*update.Updater, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	return update.New(update.Options{
		Repository:     cfg.Update.Repository,
		Asset:          cfg.Update.Asset,
		CurrentVersion: version.Version,
	}, logger), nil
}

func sendControl(cmd *cobra.Command, command string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	reply, err := control.Send(cmd.Context(), cfg.Control.Socket, command)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
