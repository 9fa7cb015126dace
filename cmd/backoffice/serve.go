package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"backoffice/pkg/config"
	"backoffice/pkg/logx"
)

func newServeMetricsCmd(_ *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose /metrics and /healthz",
		Long: `serve-metrics runs only the metrics endpoint with the process and build
collectors. chat and ask serve the pipeline metrics themselves when
metrics.enabled is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Metrics.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveUntilDone(ctx, listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (defaults to metrics.listen)")
	return cmd
}

func serveUntilDone(ctx context.Context, listen string) error {
	logger := logx.NewLogger("metrics")
	srv := &http.Server{
		Addr:              listen,
		Handler:           metricsHandler(newMetricsRegistry()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics on %s", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down metrics server")
		return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already cancelled
	}
}
