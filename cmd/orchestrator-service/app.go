package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"checkout/internal/config"
	"checkout/internal/constants"
	"checkout/internal/logger"
	"checkout/internal/saga"
	"checkout/pkg/bootstrap"
	"checkout/pkg/health"
	"checkout/pkg/logging"
	"checkout/pkg/metrics"
	"checkout/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	orchestrator   *saga.Orchestrator
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base: bootstrap.NewBase(cfg, log, constants.ServiceOrchestrator),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceOrchestrator)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterSagaMetrics()
	metrics.RegisterBrokerMetrics()

	topics := a.Config.Saga.Topics
	a.orchestrator = saga.NewOrchestrator(
		saga.DefaultPipeline(topics),
		a.Publisher,
		saga.NewBusNotifier(a.Publisher, topics.NotifyEnding),
		topics,
		a.Logger,
	)
	a.orchestrator.Register(a.Consumer)

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", health.NewCheckerRegistry().Handler())
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.Consumer.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceOrchestrator)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down orchestrator")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
