package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/OsoPanda1/isabella/pkg/service/httpapi"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg             config
		addr            string
		idleTTL         time.Duration
		maxSessions     int64
		janitorInterval time.Duration
		shutdownTimeout time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ISABELLA_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "idle-ttl",
			Usage:       "Sessions idle longer than this are archived and dropped",
			Value:       30 * time.Minute,
			Sources:     cli.EnvVars("ISABELLA_IDLE_TTL"),
			Destination: &idleTTL,
		},
		&cli.IntFlag{
			Name:        "max-sessions",
			Usage:       "Live sessions kept in memory; the least recently used is evicted beyond this",
			Value:       1000,
			Sources:     cli.EnvVars("ISABELLA_MAX_SESSIONS"),
			Destination: &maxSessions,
		},
		&cli.DurationFlag{
			Name:        "janitor-interval",
			Usage:       "How often idle sessions are swept",
			Value:       time.Minute,
			Sources:     cli.EnvVars("ISABELLA_JANITOR_INTERVAL"),
			Destination: &janitorInterval,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Grace period for in-flight requests on shutdown",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("ISABELLA_SHUTDOWN_TIMEOUT"),
			Destination: &shutdownTimeout,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			logger := logging.From(ctx)

			cfg.idleTTL = idleTTL
			cfg.maxSessions = int(maxSessions)
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt.service.StartJanitor(ctx, janitorInterval)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           httpapi.New(rt.service, rt.metrics).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				serveErr = goerr.Wrap(err, "failed to serve", goerr.V("addr", addr))
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", "error", err)
				_ = httpServer.Close()
			}

			rt.close(shutdownCtx)
			logger.Info("shutdown complete")
			return serveErr
		},
	}
}
