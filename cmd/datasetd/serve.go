package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/dataops/httpapi"
	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/resilience"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = a.close(sctx)
			}()

			if listen == "" {
				listen = a.cfg.ListenAddr
			}
			handler, err := httpapi.NewHandler(httpapi.Config{
				Cache:              a.cache,
				Health:             a.health,
				Metrics:            a.observer.MetricsHandler(),
				Logger:             a.logger,
				CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
				RateLimiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
					Rate:  a.cfg.RateLimitRPS,
					Burst: a.cfg.RateLimitBurst,
				}),
			})
			if err != nil {
				return err
			}
			return serve(ctx, a.logger, &http.Server{
				Addr:              listen,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default LISTEN_ADDR)")
	return cmd
}

// serve runs srv until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, logger observe.Logger, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http listening", observe.Field{Key: "addr", Value: srv.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
