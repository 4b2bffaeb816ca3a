package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"dispatch/internal/general/config"
	"dispatch/internal/general/jwt"
	"dispatch/internal/general/logger"
	"dispatch/internal/general/metrics"
	"dispatch/internal/general/postgres"
	"dispatch/internal/general/rabbitmq"
	"dispatch/internal/live"
	"dispatch/internal/push"
	"dispatch/internal/travel"
	"dispatch/internal/webhook"

	authhandler "dispatch/internal/software/auth/handler"
	authservice "dispatch/internal/software/auth/service"
	dispatchhandler "dispatch/internal/software/dispatch/handler"
	dispatchservice "dispatch/internal/software/dispatch/service"
)

// run wires the dispatch service and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	pub := rabbitmq.NewMQPublisher(rmq)

	// two independent token managers: access tokens for the API, refresh
	// tokens only for rotation
	accessMgr := jwt.NewManager(cfg.JWT.AccessSecret, cfg.AccessTTL())
	refreshMgr := jwt.NewManager(cfg.JWT.RefreshSecret, cfg.RefreshTTL())

	// set up the repos
	uow := postgres.NewUnitOfWork(pool)
	userRepo := postgres.NewUserRepo()
	tokenRepo := postgres.NewRefreshTokenRepo()
	routeRepo := postgres.NewRouteRepo()
	stopRepo := postgres.NewStopRepo()
	addressRepo := postgres.NewAddressRepo()
	depotRepo := postgres.NewDepotRepo()
	paymentRepo := postgres.NewPaymentRepo()
	settingsRepo := postgres.NewSettingsRepo()
	trackingRepo := postgres.NewTrackingRepo()

	// travel-time providers: the cheap estimator is always available, the
	// real one only when a mapping API is configured
	cheap := travel.NewCheapProvider()
	var real travel.Provider
	if cfg.Maps.URL != "" {
		real = travel.NewRealProvider(cfg.Maps.URL, cfg.Maps.APIKey)
	}

	broker := live.NewBroker(logger)
	dispatcher := webhook.NewDispatcher(logger)
	notifier := push.NewNotifier(cfg.Push.URL, cfg.Push.APIKey, userRepo, uow, logger)

	// set up the services
	authSvc := authservice.NewAuthService(logger, uow, userRepo, tokenRepo, accessMgr, refreshMgr)
	dispatchSvc := dispatchservice.NewDispatchService(dispatchservice.Deps{
		Logger:     logger,
		UoW:        uow,
		Routes:     routeRepo,
		Stops:      stopRepo,
		Addresses:  addressRepo,
		Depots:     depotRepo,
		Users:      userRepo,
		Payments:   paymentRepo,
		Settings:   settingsRepo,
		Tracking:   trackingRepo,
		Cheap:      cheap,
		Real:       real,
		Broker:     broker,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Pub:        pub,
		MQ:         rmq,
	})

	// run the background consumers for webhook and push delivery
	dispatchSvc.RunBackgroundConsumers(ctx)

	// set up the HTTP handlers and their routes
	mux := http.NewServeMux()
	authhandler.NewAuthHTTPHandler(authSvc, logger, accessMgr).RegisterRoutes(mux)
	dispatchhandler.NewDispatchHTTPHandler(dispatchSvc, logger, accessMgr, broker, cfg.Payments.WebhookSecret).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// concurrency limiter (global), blocks when capacity is full
	limitedHandler := withConcurrencyLimit(cfg.Server.MaxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		// no WriteTimeout: SSE and WebSocket connections are long-lived and
		// enforce their own per-write deadlines
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.Server.Port),
		map[string]any{"port": cfg.Server.Port, "max_concurrent": cfg.Server.MaxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Shutting down HTTP server", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Server.Port})
			return err
		}
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
