// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugman/internal/console"
	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/observability"
)

const shutdownTimeout = 30 * time.Second

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// JournalOpener opens the transition journal.
	// Default: journal.Open
	JournalOpener JournalOpener

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with every component's metrics and
	// the module listing
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, modules observability.ModuleLister) ObservabilityServer

	// LogWriter receives log output. Default: os.Stderr
	LogWriter io.Writer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *ServeDeps) *cobra.Command {
	var noConsole bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the plugin directory and run the operator console",
		Long: `Load every archive in the plugin directory, then read plugman commands
from standard input until it closes, "quit" is typed, or a signal arrives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps, noConsole)
		},
	}
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "do not read commands from standard input; run until signalled")
	return cmd
}

func runServe(cmd *cobra.Command, deps *ServeDeps, noConsole bool) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, modules observability.ModuleLister) ObservabilityServer {
			srv := observability.NewServer(addr, readinessChecker,
				observability.WithRegistrations(registerMetrics),
				observability.WithModules(modules))
			srv.Metrics().SetBuildInfo(version, commit)
			return srv
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err //nolint:wrapcheck // validated by config
	}
	logger := logging.Setup("plugman", version, cfg.LogFormat, level, deps.LogWriter)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := newStack(ctx, cfg, logger, deps.JournalOpener)
	if err != nil {
		return oops.Code("STARTUP_FAILED").Wrap(err)
	}

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, s.Ready, s.moduleStatuses)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			s.shutdown(context.Background())
			return oops.Code("STARTUP_FAILED").With("addr", cfg.MetricsAddr).Wrap(startErr)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	s.start(ctx)
	logger.InfoContext(ctx, "plugman ready",
		"plugins_dir", cfg.PluginsDir,
		"journal", cfg.Journal.Driver,
		"operator", cfg.Operator)

	if noConsole {
		<-ctx.Done()
	} else {
		session := console.NewSession(s.dispatcher, s.operator(), cmd.InOrStdin(), cmd.OutOrStdout(),
			console.WithSessionLogger(logger))
		if runErr := session.Run(ctx); runErr != nil {
			logger.WarnContext(ctx, "console input failed", "error", runErr)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	s.shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a background server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
