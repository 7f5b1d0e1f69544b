package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/middleware"
	"github.com/Ramsey-B/fern/internal/platform/startup"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/archivedentity"
	"github.com/Ramsey-B/fern/internal/repositories/duplicatecandidate"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/failedrecord"
	"github.com/Ramsey-B/fern/internal/repositories/importrun"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/external"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/pushsync"
	deduproutes "github.com/Ramsey-B/fern/pkg/routes/dedup"
	entityroutes "github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	importroutes "github.com/Ramsey-B/fern/pkg/routes/imports"
	projectionroutes "github.com/Ramsey-B/fern/pkg/routes/projection"
	syncroutes "github.com/Ramsey-B/fern/pkg/routes/sync"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	logger := ectologger.NewEctoLogger(zapSink(zapLogger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Errorf("failed to set up tracing")
		os.Exit(1)
	}
	defer shutdownTracing()

	sqlDB, err := sqlx.Open(cfg.DatabaseDriver, databaseDSN(cfg))
	if err != nil {
		logger.WithError(err).Errorf("failed to open database handle")
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlDB, logger)

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	externalClient := external.NewClient(external.Config{
		BaseURL:    cfg.ExternalBaseURL,
		Token:      cfg.ExternalToken,
		Timeout:    cfg.ExternalTimeout,
		RetryCount: cfg.ExternalRetryCount,
		PageLimit:  cfg.ExternalPageLimit,
	}, logger)

	var graphClient *graph.Client
	if cfg.GraphDBEnabled {
		graphClient, err = graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Errorf("failed to create graph client")
			os.Exit(1)
		}
	}

	entityRepo := entity.NewRepository(db, logger)
	runRepo := importrun.NewRepository(db, logger)
	failureRepo := failedrecord.NewRepository(db, logger)
	candidateRepo := duplicatecandidate.NewRepository(db, logger)
	archiveRepo := archivedentity.NewRepository(db, logger)

	importService := importer.NewService(entityRepo, runRepo, failureRepo, externalClient, emitter, importer.Options{
		DefaultWorkspaceID: cfg.ExternalWorkspaceID,
		FlushPages:         cfg.ProgressFlushPages,
	}, logger)
	dedupEngine := dedup.NewEngine(entityRepo, archiveRepo, candidateRepo, emitter, cfg.FuzzyThreshold, logger)
	pushOrchestrator := pushsync.NewOrchestrator(entityRepo, externalClient, emitter, cfg.PushBatchSize, logger)

	container, err := buildContainer(logger, entityRepo, runRepo, failureRepo, candidateRepo, archiveRepo, importService, dedupEngine, pushOrchestrator, graphClient)
	if err != nil {
		logger.WithError(err).Errorf("failed to build dependency container")
		os.Exit(1)
	}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&bootDependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			driver, err := migratepg.WithInstance(sqlDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(context.Context) error { return sqlDB.Close() },
	})
	boot.AddDependency(&bootDependency{
		name:  "kafka",
		start: func(context.Context) error { return nil },
		stop:  func(context.Context) error { return producer.Close() },
	})
	if graphClient != nil {
		boot.AddDependency(&bootDependency{
			name:  "graph",
			start: func(ctx context.Context) error { return graphClient.VerifyConnectivity(ctx) },
			stop:  func(ctx context.Context) error { return graphClient.Close(ctx) },
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Errorf("startup failed")
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(containerMiddleware(container))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	var checker *health.Checker
	if graphClient != nil {
		checker = health.NewChecker(sqlDB, graphClient, version)
	} else {
		checker = health.NewChecker(sqlDB, nil, version)
	}
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	importroutes.Register(api.Group("/imports"))
	deduproutes.Register(api.Group("/deduplication"))
	syncroutes.Register(api.Group("/sync"))
	entityroutes.Register(api.Group("/entities"))
	if graphClient != nil {
		projectionroutes.Register(api.Group("/graph"))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.WithField("port", cfg.Port).Infof("%s listening on port %d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Errorf("server stopped unexpectedly")
			cancel()
		}
	}()

	checker.SetReady(true)

	<-ctx.Done()
	checker.SetReady(false)
	logger.Infof("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warnf("http server shutdown failed")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warnf("dependency shutdown failed")
	}
}

func databaseDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}
	return zapConfig.Build(zap.AddCallerSkip(2))
}

// zapSink adapts structured log messages onto the zap core
func zapSink(l *zap.Logger) func(ectologger.EctoLogMessage) {
	return func(msg ectologger.EctoLogMessage) {
		fields := make([]zap.Field, 0, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		if msg.Err != nil {
			fields = append(fields, zap.Error(msg.Err))
		}

		switch strings.ToLower(string(msg.Level)) {
		case "debug":
			l.Debug(msg.Message, fields...)
		case "warn", "warning":
			l.Warn(msg.Message, fields...)
		case "error", "fatal":
			l.Error(msg.Message, fields...)
		default:
			l.Info(msg.Message, fields...)
		}
	}
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	var exporter sdktrace.SpanExporter
	if cfg.TracingEnabled {
		otlp, err := tracing.NewOTLPExporter(ctx, tracing.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPTimeout,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	} else {
		exporter = tracing.NoopExporter{}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}

func buildContainer(
	logger ectologger.Logger,
	entityRepo *entity.Repository,
	runRepo *importrun.Repository,
	failureRepo *failedrecord.Repository,
	candidateRepo *duplicatecandidate.Repository,
	archiveRepo *archivedentity.Repository,
	importService *importer.Service,
	dedupEngine *dedup.Engine,
	pushOrchestrator *pushsync.Orchestrator,
	graphClient *graph.Client,
) (ectocontainer.DIContainer, error) {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*entity.Repository](container, entityRepo); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*importrun.Repository](container, runRepo); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*failedrecord.Repository](container, failureRepo); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*duplicatecandidate.Repository](container, candidateRepo); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*archivedentity.Repository](container, archiveRepo); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*importer.Service](container, importService); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*dedup.Engine](container, dedupEngine); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*pushsync.Orchestrator](container, pushOrchestrator); err != nil {
		return nil, err
	}
	if graphClient != nil {
		if err := ectoinject.RegisterInstance[*graph.Projector](container, graph.NewProjector(graphClient, logger)); err != nil {
			return nil, err
		}
	}

	return container, nil
}

func containerMiddleware(container ectocontainer.DIContainer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

type bootDependency struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d *bootDependency) Name() string { return d.name }

func (d *bootDependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *bootDependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
