package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"pulse/internal/analysis"
	appconfig "pulse/internal/config"
	"pulse/internal/handlers"
	"pulse/internal/metrics"
	"pulse/internal/moderation"
	"pulse/internal/notify"
	"pulse/internal/storage"
	"pulse/internal/store"
	"pulse/internal/stream"
	"pulse/internal/worker"
	"pulse/pkg/clients"
	"pulse/pkg/config"
	"pulse/pkg/database"
	"pulse/pkg/logging"
	"pulse/pkg/monitoring"
	"pulse/pkg/redis"
	"pulse/pkg/server"
	"pulse/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("pulse")

	// Load environment variables
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	cfg := appconfig.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	info := version.GetInfo()
	logger.WithFields(logging.Fields{
		"version":    info.Version,
		"commit":     info.GitCommit,
		"build_date": info.BuildDate,
		"store":      cfg.StoreDriver,
	}).Info("Starting pulse")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("pulse", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("pulse", version.Version, version.GitCommit)
	serviceMetrics := metrics.New(metricsCollector)
	breakerMetrics := clients.NewCircuitBreakerMetrics(metricsCollector.Registry())

	videos, closeStore, err := openStore(ctx, cfg, logger, serviceMetrics, healthChecker)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open video store")
	}
	defer closeStore()

	// Object storage and content analysis share one AWS configuration
	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load AWS configuration")
	}
	gateway, err := storage.NewS3Gateway(awsCfg, storage.S3Config{
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		Region:    cfg.AWSRegion,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize S3 gateway")
	}

	breakerCfg := clients.DefaultCircuitBreakerConfig()
	breakerCfg.Name = "rekognition"
	breakerCfg.Logger = logger
	breakerCfg.OnStateChange = breakerMetrics.Callback()
	jobs, err := analysis.NewRekognitionClient(awsCfg, analysis.Config{
		Bucket:    gateway.Bucket(),
		ObjectKey: gateway.ObjectKey,
	}, clients.NewCircuitBreaker(breakerCfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize moderation client")
	}
	healthChecker.AddCheck("rekognition", monitoring.PingHealthCheck("Rekognition", jobs, true))

	g, gctx := errgroup.WithContext(ctx)

	// Notification hub, optionally relayed through Redis
	hub := notify.NewHub(logger, serviceMetrics)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	var publisher notify.Publisher = hub
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))

		relay := notify.NewRelay(redisClient, hub, logger, serviceMetrics)
		publisher = relay
		g.Go(func() error {
			return relay.Run(gctx, nil)
		})
	}
	fanout := notify.NewFanout(publisher, logger)

	pool := worker.NewPool(cfg.ModerationWorkers, logger).OnPanic(serviceMetrics.IncWorkerPanic)
	orchestrator := moderation.NewOrchestrator(moderation.Config{
		MaxAttempts:   cfg.MaxPollAttempts,
		PollInterval:  cfg.PollInterval,
		MinConfidence: cfg.MinConfidence,
		PersistRetry:  moderation.DefaultConfig().PersistRetry,
	}, jobs, videos, fanout, pool, moderation.RealClock{}, logger, serviceMetrics)

	videoHandler := handlers.NewVideoHandler(handlers.Deps{
		Videos:        videos,
		Blobs:         gateway,
		Moderator:     orchestrator,
		Notifier:      fanout,
		Streamer:      stream.NewProxy(videos, gateway, logger, serviceMetrics),
		Subscriptions: hub,
		MaxUpload:     cfg.UploadMaxBytes,
		Logger:        logger,
		Metrics:       serviceMetrics,
	})

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"JWT_SECRET":     cfg.JWTSecret,
		"S3_BUCKET_NAME": cfg.S3Bucket,
		"STORE_DRIVER":   cfg.StoreDriver,
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "pulse", healthChecker, metricsCollector)
	videoHandler.RegisterRoutes(router, []byte(cfg.JWTSecret))

	serverConfig := server.DefaultConfig("pulse", cfg.Port)
	g.Go(func() error {
		return server.Start(gctx, serverConfig, router, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Service stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Moderation workers did not drain")
	}
	logger.Info("Pulse stopped")
}

// openStore connects the configured record store and registers its health check
func openStore(ctx context.Context, cfg appconfig.Config, logger logging.Logger, m *metrics.Metrics, hc *monitoring.HealthChecker) (store.VideoStore, func(), error) {
	switch cfg.StoreDriver {
	case store.DriverMongo:
		client, err := store.ConnectMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			return nil, nil, err
		}
		hc.AddCheck("mongo", monitoring.PingHealthCheck("MongoDB", mongoPinger{client}, false))

		s := store.NewMongoStore(client.Database(cfg.MongoDB), logger)
		if cfg.AutoMigrate {
			if err := s.EnsureIndexes(ctx); err != nil {
				logger.WithError(err).Warn("Failed to ensure video indexes")
			}
		}
		return s, func() { _ = client.Disconnect(context.Background()) }, nil

	case store.DriverMemory:
		logger.Warn("Using in-memory video store; records are lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	default:
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		db, err := database.Connect(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := database.ApplySchema(ctx, db, logger); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		hc.AddCheck("database", monitoring.DatabaseHealthCheck(db))

		s := store.NewPostgresStore(db).WithQueryMetrics(m.DBQueries, m.DBDuration)
		return s, func() { _ = db.Close() }, nil
	}
}

type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}
