package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/camunda"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/database"
	kafkainfra "github.com/hmcts/wa-task-management-api-sub002/internal/infra/kafka"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/logger"
	redisinfra "github.com/hmcts/wa-task-management-api-sub002/internal/infra/redis"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/roleassignment"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/security"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/telemetry"
	postgresrepo "github.com/hmcts/wa-task-management-api-sub002/internal/repository/postgres"
	redisrepo "github.com/hmcts/wa-task-management-api-sub002/internal/repository/redis"
	"github.com/hmcts/wa-task-management-api-sub002/internal/transport/http/middleware"
	"github.com/hmcts/wa-task-management-api-sub002/internal/transport/http/routes"
	"github.com/hmcts/wa-task-management-api-sub002/internal/usecase"
)

// Version is stamped at build time with -ldflags "-X .../internal/infra/app.Version=...".
var Version = "dev"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	consumer *kafkainfra.ConsumerGroup
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, Version, cfg.App.Env, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.tracer = tp
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(cfg.Redis, log,
		redisinfra.WithFlagKeys(cfg.Redis.FeatureFlagPrefix, usecase.LocalStateFirstFlag),
	)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	keyProvider, err := security.NewDirectoryKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	verifier := security.NewTokenVerifier(keyProvider, cfg.JWT.Issuer, cfg.JWT.Audience)

	repos := postgresrepo.NewRepositories(pool, cfg.Postgres.LockWaitLimit)
	flags := redisrepo.NewFeatureFlagRepository(redisClient.Client(), cfg.Redis.FeatureFlagPrefix, map[string]bool{
		usecase.LocalStateFirstFlag: cfg.Tasks.LocalStateFirstDefault,
	})

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = kafkaProducer
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	operationMetrics, err := telemetry.NewOperationMetrics(registry, telemetry.DefaultNamespace)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init operation metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	camundaClient := camunda.NewClient(cfg.Camunda, log)

	var hierarchy usecase.RoleHierarchy
	if configured := cfg.Tasks.Hierarchy(); len(configured) > 0 {
		hierarchy = configured
	}

	tasks, err := usecase.NewTaskManagementService(usecase.TaskManagementDeps{
		Transactor:   repos.Transactor,
		Tasks:        repos.Tasks,
		Roles:        roleassignment.NewClient(cfg.RoleAssignment, log),
		Engine:       camunda.NewWorkflowEngine(camundaClient),
		Configurator: camunda.NewTaskConfigurator(camundaClient),
		Flags:        flags,
		Events:       eventPublisher,
		Metrics:      operationMetrics,
		Hierarchy:    hierarchy,
		Logger:       log,
	})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init task management service: %w", err)
	}

	if cfg.Kafka.ConsumerEnabled && len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafkainfra.NewConsumerGroup(cfg.Kafka, cfg.Kafka.CaseRolesTopic,
			kafkainfra.NewCaseRolesConsumer(tasks, log), log)
		if err != nil {
			a.release()
			return nil, fmt.Errorf("init case roles consumer: %w", err)
		}
		a.consumer = consumer
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Tasks:       tasks,
		TokenParser: verifier,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		Database:    pool,
		Cache:       redisClient,
	})

	return a, nil
}

// release closes whatever New managed to open before failing.
func (a *Application) release() {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.release()

	if a.consumer != nil {
		a.consumer.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting task management API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("version", Version),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
