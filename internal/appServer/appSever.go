package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/chess-payments/config"
	"github.com/ds124wfegd/chess-payments/internal/database/memory"
	repository "github.com/ds124wfegd/chess-payments/internal/database/postgres"
	"github.com/ds124wfegd/chess-payments/internal/notifier"
	"github.com/ds124wfegd/chess-payments/internal/service"
	"github.com/ds124wfegd/chess-payments/internal/transport"
	"github.com/ds124wfegd/chess-payments/internal/worker"

	"github.com/ds124wfegd/chess-payments/pkg/kafka"
	"github.com/ds124wfegd/chess-payments/pkg/postgres"
	"github.com/ds124wfegd/chess-payments/pkg/queue"
	"github.com/ds124wfegd/chess-payments/pkg/rabbitmq"
	"github.com/ds124wfegd/chess-payments/pkg/redis"
	"github.com/ds124wfegd/chess-payments/pkg/signature"
	"github.com/ds124wfegd/chess-payments/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func newLogger(cfg *config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func NewServer(cfg *config.Config) {
	logger := newLogger(&cfg.Log)

	// Initialize storage
	var (
		repo *repository.Repository
		db   *sql.DB
	)
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory storage, state is lost on restart")
		repo = memory.NewRepository(memory.NewStore())
	default:
		var err error
		db, err = postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		// Run database migrations
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		repo = repository.NewRepository(db)
	}

	// Failed notification store
	var dlq service.FailedNotificationStore = queue.NewMemoryDLQ()
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Errorf("Failed to initialize Redis: %v. Failed notifications kept in memory", err)
		} else {
			defer redisClient.Close()
			dlq = queue.NewRedisDLQ(redisClient, cfg.Redis.DLQKey, logger)
			logger.Info("Redis DLQ initialized")
		}
	}

	// Notification sender
	var sender service.NotificationSender = notifier.NewLogSender(logger)
	if cfg.RabbitMQ.Enabled {
		publisher, err := rabbitmq.NewPublisher(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Exchange: cfg.RabbitMQ.Exchange})
		if err != nil {
			logger.Errorf("Failed to connect to RabbitMQ: %v. Notifications are only logged", err)
		} else {
			defer publisher.Close()
			sender = notifier.NewAMQPSender(publisher, cfg.RabbitMQ.ConfirmationKey, cfg.RabbitMQ.OrganizerKey, logger)
			logger.Info("RabbitMQ publisher initialized")
		}
	}

	// Initialize Telegram bot
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		bot := telegram.NewBot(cfg.Telegram.BotToken)
		sender = notifier.NewTelegramMirror(sender, bot, cfg.Telegram.ChatID, logger)
		logger.Info("Telegram bot initialized")
	} else {
		logger.Warn("Telegram bot token not provided, organizer chat mirror disabled")
	}

	// Status change feed
	var producer kafka.Producer = kafka.NopProducer{}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic)
	}
	defer producer.Close()

	// Initialize services
	dispatcher := service.NewDispatcher(
		sender,
		dlq,
		repo.Bookings,
		notifier.NewStatusFeed(producer),
		queue.NewRetryManager(cfg.Dispatcher.MaxRetries, cfg.Dispatcher.RetryBaseDelay),
		service.DispatcherConfig{
			Workers:     cfg.Dispatcher.Workers,
			QueueSize:   cfg.Dispatcher.QueueSize,
			SendTimeout: cfg.Dispatcher.SendTimeout,
		},
		logger,
	)
	dispatcher.Start()

	holdService := service.NewHoldService(repo, logger)
	correlator := service.NewCorrelator(repo.Bookings, service.CorrelatorConfig{
		HeuristicFallback: cfg.Reconcile.HeuristicFallback,
		HeuristicWindow:   cfg.Reconcile.HeuristicWindow,
	}, logger)
	if cfg.Reconcile.HeuristicFallback {
		logger.Warn("Recency heuristic correlation enabled, matches are logged as degraded")
	}

	reconciler := service.NewReconcileService(repo, correlator, dispatcher, holdService, service.ReconcileConfig{
		PersistTimeout:     cfg.Reconcile.PersistTimeout,
		MaxConflictRetries: cfg.Reconcile.MaxConflictRetries,
		SucceededDelay:     cfg.Reconcile.SucceededDelay,
	}, logger)
	notifications := service.NewNotificationService(dlq, dispatcher, logger)

	// Initialize hold sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := worker.NewHoldSweeper(holdService, cfg.Worker.SweepInterval, cfg.Worker.CheckoutTimeout, cfg.Worker.BatchSize, logger)
	go sweeper.Start(ctx)

	// Initialize handlers
	webhookHandler := transport.NewWebhookHandler(
		signature.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance),
		reconciler,
		cfg.Webhook.MaxBodyBytes,
		logger,
	)
	adminHandler := transport.NewAdminHandler(repo.Bookings, service.NewLedger(repo.Ledger), notifications)

	// a nil *sql.DB must not end up inside the interface
	healthHandler := transport.NewHealthHandler(nil, cfg.Server.AppVersion)
	if db != nil {
		healthHandler = transport.NewHealthHandler(db, cfg.Server.AppVersion)
	}

	// Setup HTTP server
	if config.GetEnv("GIN_MODE", cfg.Server.Mode) == "release" || cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Admin.Token == "" {
		logger.Warn("Admin token not set, admin API disabled")
	}

	router := transport.InitRoutes(webhookHandler, adminHandler, healthHandler, transport.RouterConfig{
		AdminToken:     cfg.Admin.Token,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logger.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("error occured on server shutting down: %s", err.Error())
	}

	// in-flight side effects finish before brokers are closed by the defers
	cancel()
	dispatcher.Close()
}
