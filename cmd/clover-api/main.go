package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/apiclient"
	"github.com/Ramsey-B/clover/internal/repositories/fieldmapping"
	"github.com/Ramsey-B/clover/internal/repositories/item"
	"github.com/Ramsey-B/clover/internal/repositories/token"
	"github.com/Ramsey-B/clover/pkg/auth"
	"github.com/Ramsey-B/clover/pkg/automation"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/detection"
	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/locks"
	clovermw "github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/redis"
	authroutes "github.com/Ramsey-B/clover/pkg/routes/auth"
	automationroutes "github.com/Ramsey-B/clover/pkg/routes/automation"
	clientroutes "github.com/Ramsey-B/clover/pkg/routes/clients"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	ingestroutes "github.com/Ramsey-B/clover/pkg/routes/ingest"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := buildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		},
	})
	if err != nil {
		fatal(logger, err, "Failed to set up tracing")
	}

	var (
		sqlxDB      *sqlx.DB
		db          database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(&startup.Dependency{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)
			conn, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
			sqlxDB = conn
			db = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})

	boot.AddDependency(&startup.Dependency{
		Name:  "migrations",
		Needs: []string{"postgres"},
		StartFunc: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			svc := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return svc.Migrate(cfg.DatabaseName, driver)
		},
	})

	if cfg.RedisEnabled {
		boot.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				redisClient = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Close()
			},
		})
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		boot.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFunc: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if producer == nil {
					return nil
				}
				return producer.Close()
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		fatal(logger, err, "Startup failed")
	}

	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), logger)

	var detector detection.Detector = detection.NewDisabled()
	if cfg.DetectorProvider == "gemini" && cfg.GeminiAPIKey != "" {
		detector = detection.NewGeminiDetector(detection.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		}, httpClient, logger)
	}

	var sender email.Sender = email.NewConsoleSender(logger)
	if cfg.EmailProvider == "resend" {
		resend, err := email.NewResendSender(email.ResendConfig{
			APIKey:  cfg.ResendAPIKey,
			From:    cfg.EmailFrom,
			BaseURL: cfg.ResendBaseURL,
		}, httpClient)
		if err != nil {
			logger.WithError(err).Warn("Resend misconfigured, falling back to console email")
		} else {
			sender = resend
		}
	}

	clientRepo := apiclient.NewRepository(db, logger)
	mappingRepo := fieldmapping.NewRepository(db, logger)
	itemRepo := item.NewRepository(db, logger)
	tokenRepo := token.NewRepository(db, logger)

	authService := auth.NewService(logger, clientRepo, tokenRepo, sender, auth.ServiceConfig{
		AccessTokenTTL:      cfg.AccessTokenTTL,
		ResetTokenTTL:       cfg.ResetTokenTTL,
		APIKeyResetCooldown: cfg.APIKeyResetCooldown,
		DebugResetTokens:    cfg.ResetTokenDebug,
	})

	cache := ingest.NewMappingCache(ingest.MappingCacheConfig{
		MaxSize: cfg.MappingCacheSize,
		TTL:     cfg.MappingCacheTTL,
	})
	resolver := ingest.NewResolver(mappingRepo, cache, detector, cfg.DetectorTimeout, logger)

	var locker locks.Locker = locks.NewKeyedMutex()
	if cfg.RedisLocksEnabled && redisClient != nil {
		locker = redis.NewBatchLocker(redisClient, "ingest", 2*time.Minute, 30*time.Second)
	}

	emitter := events.NewEmitter(producer, logger)

	engine := ingest.NewEngine(logger, db, resolver, itemRepo, locker, emitter, ingest.EngineConfig{
		MaxBatchSize: cfg.MaxBatchSize,
	})
	exporter := automation.NewExporter(logger, db, itemRepo, automation.ExporterConfig{
		DefaultLimit: cfg.AutomationBatchLimit,
		MaxLimit:     cfg.MaxBatchSize,
	})

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		fatal(logger, err, "Failed to create DI container")
	}
	mustRegister(logger, ectoinject.RegisterInstance[*auth.Service](container, authService))
	mustRegister(logger, ectoinject.RegisterInstance[*ingest.Engine](container, engine))
	mustRegister(logger, ectoinject.RegisterInstance[*automation.Exporter](container, exporter))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = clovermw.Error(logger)

	guardCfg := clovermw.GuardConfig{
		AllowedHostSuffixes: cfg.AllowedHostSuffixes,
		ExemptPaths:         []string{"/v1/bulk-ingest", "/health", "/metrics"},
	}
	if cfg.AllowedOriginRegex != "" {
		pattern, err := regexp.Compile(cfg.AllowedOriginRegex)
		if err != nil {
			fatal(logger, err, "Invalid ALLOWED_ORIGIN_REGEX")
		}
		guardCfg.AllowedOriginRegex = pattern
	}

	var limiter *redis.RateLimiter
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient, "ratelimit")
	}

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(clovermw.Context())
	e.Use(clovermw.Logger(logger))
	e.Use(clovermw.OriginGuard(guardCfg))
	e.Use(clovermw.HostGuard(guardCfg))
	e.Use(clovermw.RateLimit(limiter, logger, clovermw.RateLimitConfig{
		Max:    int64(cfg.RateLimitMax),
		Window: cfg.RateLimitWindow,
	}))

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(db, redisPinger, version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	automationAuth := clovermw.BearerAuth(authService)
	if cfg.OIDCEnabled {
		oidcAuth, err := clovermw.OIDCAuth(logger, cfg.OIDCIssuerURL, cfg.OIDCClientID, clientRepo)
		if err != nil {
			fatal(logger, err, "Failed to configure OIDC")
		}
		automationAuth = oidcAuth
	}

	v1 := e.Group("/v1")
	clientroutes.Register(v1.Group("/clients"))
	authroutes.Register(v1.Group("/auth"))
	ingestroutes.Register(v1.Group("/bulk-ingest", clovermw.APIKeyAuth(authService)))
	automationroutes.Register(v1.Group("/automation", automationAuth))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.WithField("port", cfg.Port).Infof("%s listening on :%d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server stopped unexpectedly")
			stop()
		}
	}()
	checker.SetReady(true)

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server cleanly")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies cleanly")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush traces")
	}
}

func buildLogger(cfg *config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func mustRegister(logger ectologger.Logger, err error) {
	if err != nil {
		fatal(logger, err, "Failed to register dependency")
	}
}

func fatal(logger ectologger.Logger, err error, msg string) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}
