package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/alert"
	"github.com/velora-hq/salesflow/internal/api"
	"github.com/velora-hq/salesflow/internal/config"
	"github.com/velora-hq/salesflow/internal/db"
	"github.com/velora-hq/salesflow/internal/deliver"
	"github.com/velora-hq/salesflow/internal/directory"
	"github.com/velora-hq/salesflow/internal/events"
	"github.com/velora-hq/salesflow/internal/metrics"
	"github.com/velora-hq/salesflow/internal/observ"
	"github.com/velora-hq/salesflow/internal/planner"
	"github.com/velora-hq/salesflow/internal/reconcile"
	"github.com/velora-hq/salesflow/internal/redis"
	"github.com/velora-hq/salesflow/internal/tasks"
	"github.com/velora-hq/salesflow/internal/trigger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting salesflow gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("timezone", cfg.Timezone),
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for event dedup and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, event dedup disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var dedup api.Dedup
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		dedup = redis.NewEventDedup(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per caller
		})
		defer redisClient.Close()
	}

	// The delayed-execution queue is the only timer this service has;
	// without it nothing ever fires.
	if cfg.TasksQueueURL == "" {
		return fmt.Errorf("TASKS_QUEUE_URL is required")
	}
	dispatcher, err := tasks.NewSQSDispatcher(ctx, tasks.Config{
		Region:   cfg.TasksRegion,
		QueueURL: cfg.TasksQueueURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create task dispatcher: %w", err)
	}

	// Lifecycle event fan-out, optional
	var publisher *events.Publisher
	if cfg.EventsTopicARN != "" {
		publisher, err = events.NewPublisher(ctx, cfg.EventsRegion, cfg.EventsTopicARN, logger)
		if err != nil {
			logger.Warn("event publisher unavailable, lifecycle fan-out disabled",
				zap.Error(err),
			)
			publisher = nil
		}
	}

	// Escalation email for jobs that exhaust their retries, optional
	var mailer *alert.Mailer
	if cfg.AlertToEmail != "" {
		mailer, err = alert.NewMailer(ctx, alert.Config{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.AlertFromEmail,
			ToEmail:   cfg.AlertToEmail,
		}, logger)
		if err != nil {
			logger.Warn("escalation mailer unavailable",
				zap.Error(err),
			)
			mailer = nil
		}
	}

	// Delivery channel behind a circuit breaker
	webhook := deliver.NewWebhookChannel(deliver.WebhookConfig{
		URL:     cfg.ChatWebhookURL,
		Timeout: time.Duration(cfg.ChatWebhookTimeout) * time.Second,
	}, logger)
	channel := deliver.NewProtectedChannel(webhook, deliver.BreakerConfig{}, logger)

	var execEvents deliver.EventPublisher
	var execAlerts deliver.Escalator
	if publisher != nil {
		execEvents = publisher
	}
	if mailer != nil {
		execAlerts = mailer
	}

	executor := deliver.NewExecutor(repo, repo, channel, execEvents, execAlerts, deliver.Config{
		MaxAttempts: cfg.MaxAttempts,
		Location:    loc,
	}, logger)

	classifier := trigger.NewClassifier(cfg.InternalMembers, cfg.BotAccountID, cfg.DocDomains, logger)
	pl := planner.New(loc, cfg.NotificationHour)
	resolver := directory.NewResolver(repo, cfg.BroadcastUsers, logger)

	var ingestEvents api.JobEventPublisher
	if publisher != nil {
		ingestEvents = publisher
	}

	handler := api.NewHandler(logger, repo, classifier, pl, resolver, dispatcher,
		dedup, ingestEvents, executor, cfg.TasksCallbackURL, cfg.TasksSecret)

	// Reconciliation sweep for jobs whose queue registration was lost
	sweeper := reconcile.New(repo, dispatcher, reconcile.Config{
		CallbackURL: cfg.TasksCallbackURL,
	}, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start reconciliation sweep: %w", err)
	}
	defer sweeper.Stop()

	logger.Info("delivery pipeline initialized",
		zap.Bool("dedup_enabled", dedup != nil),
		zap.Bool("event_fanout_enabled", publisher != nil),
		zap.Bool("escalation_enabled", mailer != nil),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/events", handler.IngestEvent)
		r.Get("/jobs", handler.ListJobs)
		r.Get("/jobs/{id}", handler.GetJob)
		r.Get("/jobs/{id}/deliveries", handler.ListDeliveries)
		r.Get("/chats/{id}/phase", handler.GetChatPhase)
	})

	// Delivery callbacks from the delayed-execution queue
	r.Post("/tasks/notifications", handler.DeliveryCallback)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
