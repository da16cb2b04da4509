package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/api/handlers"
	custommiddleware "github.com/jordanlanch/outreach/pkg/middleware"
)

// newServer builds the echo instance. ctx bounds the rate limiter cleanup.
func newServer(ctx context.Context, a *app) *echo.Echo {
	apierrors.SetLogger(a.log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				a.log.Warn("request failed", append(args, "error", v.Error)...)
				return nil
			}
			a.log.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if a.cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
			Timeout: 2 * time.Second,
		}))
	}
	e.Use(a.metrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(a.cfg.CORSAllowedOrigins)))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))

	checks := map[string]handlers.Pinger{"database": a.db}
	if a.cache != nil {
		checks["redis"] = a.cache
	}
	e.GET("/health", handlers.NewHealthHandler(checks).Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ipLimiter := custommiddleware.NewRateLimiter(ctx, a.cfg.RateLimitRequestsPerMinute, a.cfg.RateLimitBurst)
	tenantLimiter := custommiddleware.NewRateLimiter(ctx, a.cfg.RateLimitRequestsPerMinute, a.cfg.RateLimitBurst).ByTenant()

	h := handlers.Handlers{
		Templates:    handlers.NewTemplateHandler(a.templates),
		Sequences:    handlers.NewSequenceHandler(a.sequences, a.templates, a.enrollments, a.log),
		Enrollments:  handlers.NewEnrollmentHandler(a.enrollments, a.prospects, a.sequences, a.metrics),
		Prospects:    handlers.NewProspectHandler(a.prospects, a.enrollments),
		Filters:      handlers.NewFilterHandler(a.filters, a.registry),
		Suppressions: handlers.NewSuppressionHandler(a.ledger, a.suppressor),
		Sync:         handlers.NewSyncHandler(a.intake, a.metrics),
		Stats:        handlers.NewStatsHandler(a.stats),
		Runner:       handlers.NewRunnerHandler(a.runner),
		Inbound:      handlers.NewInboundHandler(a.compliance, a.metrics),
	}
	h.Register(e,
		[]echo.MiddlewareFunc{
			ipLimiter.RateLimitMiddleware(),
			custommiddleware.OperatorAuth(a.cfg.JWTSecret),
			tenantLimiter.RateLimitMiddleware(),
		},
		[]echo.MiddlewareFunc{custommiddleware.RunnerAuth(a.cfg.RunnerSecretHash)},
	)

	return e
}

// serve runs the HTTP API until ctx is cancelled or SIGINT/SIGTERM arrives.
func serve(ctx context.Context, a *app, withScheduler bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := newServer(ctx, a)

	if withScheduler {
		cm := a.cronManager()
		if err := cm.SetupJobs(); err != nil {
			return err
		}
		cm.Start()
		defer func() {
			<-cm.Stop().Done()
			a.log.Info("cron jobs stopped")
		}()
	}

	go a.reportPoolStats(ctx)

	address := fmt.Sprintf("%s:%s", a.cfg.APIHost, a.cfg.APIPort)
	errc := make(chan error, 1)
	go func() {
		a.log.Info("outreach api starting", "address", address, "environment", a.cfg.APIEnvironment)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server gracefully stopped")
	return nil
}

func (a *app) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.UpdateDBConnections(float64(a.db.Stats().OpenConnections))
		}
	}
}
