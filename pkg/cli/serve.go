package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpctrl "github.com/LalaIAm/case-agent/pkg/controller/http"
	"github.com/LalaIAm/case-agent/pkg/service/worker"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var shutdownTimeout time.Duration
	var retentionInterval time.Duration
	var keepSessions int
	var appCfg appConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CASE_AGENT_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Time allowed for requests and running workflows to finish on shutdown",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("CASE_AGENT_SHUTDOWN_TIMEOUT"),
			Destination: &shutdownTimeout,
		},
		&cli.DurationFlag{
			Name:        "session-retention-interval",
			Usage:       "Interval between sweeps archiving old completed sessions (0 disables)",
			Value:       6 * time.Hour,
			Sources:     cli.EnvVars("CASE_AGENT_SESSION_RETENTION_INTERVAL"),
			Destination: &retentionInterval,
		},
		&cli.IntFlag{
			Name:        "keep-sessions",
			Usage:       "Number of newest sessions per case the retention sweep leaves untouched",
			Value:       usecase.DefaultKeepRecentSessions,
			Sources:     cli.EnvVars("CASE_AGENT_KEEP_SESSIONS"),
			Destination: &keepSessions,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			app, err := appCfg.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if retentionInterval > 0 {
				retention := worker.NewSessionRetentionWorker(app.uc.Case, app.uc.Session, keepSessions, retentionInterval)
				if err := retention.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start session retention worker")
				}
				defer retention.Stop()
			}

			httpHandler := httpctrl.New(app.uc,
				httpctrl.WithBroadcaster(app.broadcaster),
				httpctrl.WithHeartbeat(appCfg.workflow.Heartbeat()),
			)
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				// Running stages are cancelled and recorded as failed before the stream closes
				if err := app.uc.Workflow.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to stop running workflows")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
