package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/taskflow/api/handler"
	"github.com/fastygo/taskflow/internal/config"
	"github.com/fastygo/taskflow/internal/infrastructure/buffer"
	"github.com/fastygo/taskflow/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/taskflow/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/taskflow/internal/infrastructure/redis"
	"github.com/fastygo/taskflow/internal/middleware"
	"github.com/fastygo/taskflow/internal/router"
	"github.com/fastygo/taskflow/internal/services"
	"github.com/fastygo/taskflow/internal/services/lifecycle"
	"github.com/fastygo/taskflow/pkg/httpcontext"
	"github.com/fastygo/taskflow/pkg/logger"
	"github.com/fastygo/taskflow/pkg/token"
	"github.com/fastygo/taskflow/repository"
	"github.com/fastygo/taskflow/repository/memory"
	"github.com/fastygo/taskflow/repository/postgres"
	redisRepo "github.com/fastygo/taskflow/repository/redis"
	"github.com/fastygo/taskflow/usecase"
	authUC "github.com/fastygo/taskflow/usecase/auth"
	profileUC "github.com/fastygo/taskflow/usecase/profile"
	taskUC "github.com/fastygo/taskflow/usecase/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(context.Background(), cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen()
	appCtx := manager.Context()

	var (
		pool     *pgxpool.Pool
		userRepo repository.UserRepository
		taskRepo repository.TaskRepository
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err = pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		userRepo = postgres.NewUserRepository(pool)
		taskRepo = postgres.NewTaskRepository(pool)
	default:
		zapLogger.Warn("using in-memory storage; data is lost on restart")
		userRepo = memory.NewUserRepository()
		taskRepo = memory.NewTaskRepository()
	}

	var (
		redisClient *goRedis.Client
		attempts    repository.LoginAttemptRepository
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		attempts = redisRepo.NewLoginAttemptRepository(redisClient)
	} else {
		attempts = memory.NewLoginAttemptRepository()
	}

	var bufferStore *buffer.Store
	if cfg.Buffer.Enabled {
		bufferStore, err = buffer.Open(cfg.Buffer.Path, "buffer")
		if err != nil {
			zapLogger.Fatal("failed to open buffer store", zap.Error(err))
		}
		manager.Register("buffer", func(ctx context.Context) error {
			return bufferStore.Close()
		})
	}

	mon := monitor.New(monitor.Options{
		Postgres: monitor.PostgresProbe(pool),
		Redis:    monitor.RedisProbe(redisClient),
		Buffer:   bufferStore,
		Interval: 10 * time.Second,
	}, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var opBuffer usecase.OperationBuffer
	if bufferStore != nil {
		bufferProcessor, err := services.NewBufferProcessor(
			bufferStore,
			mon,
			userRepo,
			taskRepo,
			zapLogger,
			services.ProcessorConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  50,
				MaxRetries: cfg.Buffer.MaxRetry,
				MaxSize:    cfg.Buffer.MaxSize,
				Retention:  cfg.Buffer.Retention,
			},
		)
		if err != nil {
			zapLogger.Fatal("failed to create buffer processor", zap.Error(err))
		}
		bufferProcessor.Start()
		manager.Register("buffer_processor", func(ctx context.Context) error {
			bufferProcessor.Stop(ctx)
			return nil
		})
		opBuffer = services.NewBufferBridge(bufferProcessor)
	}

	tokens := token.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	authUseCase := authUC.New(userRepo, attempts, tokens, authUC.Config{
		PasswordMinLength: cfg.Auth.PasswordMinLength,
		BcryptCost:        cfg.Auth.BcryptCost,
		MaxLoginAttempts:  cfg.Auth.MaxLoginAttempts,
		LoginWindow:       cfg.Auth.LoginWindow,
	}, zapLogger)
	profileUseCase := profileUC.New(userRepo, authUseCase, opBuffer, zapLogger)
	taskUseCase := taskUC.New(taskRepo, authUseCase, opBuffer, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Task:    apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, cfg.Storage.Driver, ctxAdapter, zapLogger),
	}

	r := router.New(handlers, middleware.BearerToken(zapLogger))

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage.Driver),
			zap.Bool("redis", cfg.Redis.Enabled),
			zap.Bool("buffer", bufferStore != nil))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	if err := manager.Wait(); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
