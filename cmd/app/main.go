package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"habitquest/config"
	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"
	"habitquest/internal/infrastructure/cache"
	"habitquest/internal/infrastructure/notify"
	"habitquest/internal/infrastructure/repository"
	"habitquest/internal/infrastructure/repository/memory"
	"habitquest/internal/infrastructure/security"
	"habitquest/internal/infrastructure/storage"
	"habitquest/internal/middleware"
	"habitquest/internal/scheduler"
	"habitquest/internal/seed"
	grpc_server "habitquest/internal/transport/grpc"
	handlers "habitquest/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type backend struct {
	uow      usecase.UnitOfWork
	catalog  usecase.ChallengeCatalog
	progress usecase.Progress
	seeder   usecase.Seeder
	ping     func(ctx context.Context) error
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func openBackend(cfg config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.StorageBackend == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		st := memory.NewStore()
		return &backend{uow: st, catalog: st, progress: st, seeder: st}, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	st := repository.NewStore(db, cfg.DBLockTimeout)
	return &backend{
		uow:      st,
		catalog:  repository.NewChallengeRepository(db),
		progress: repository.NewProgressRepository(db),
		seeder:   st,
		ping:     sqlDB.PingContext,
	}, nil
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, _ := cfg.Location()
	dailyAt, _ := cfg.DailyRunOffset()
	clock := domain.SystemClock{}

	be, err := openBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	pings := []func(context.Context) error{}
	if be.ping != nil {
		pings = append(pings, be.ping)
	}

	// redis is optional: without it the catalog is uncached and rate limiting is off
	var limiterClient redis.Cmdable
	catalog := be.catalog
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		limiterClient = rdb
		catalog = cache.NewChallengeCache(rdb, be.catalog, logger)
		pings = append(pings, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	tokens := security.NewTokenManager(cfg.AccessSecret)

	data := seed.Catalog(clock.Now())
	if cfg.SeedDemo {
		data = seed.Demo(clock.Now())
	}
	if err := be.seeder.Seed(ctx, data); err != nil {
		logger.Fatal("failed to seed reference data", zap.Error(err))
	}
	if cfg.SeedDemo {
		if tok, err := tokens.Generate(seed.DemoUserID.String(), 24*time.Hour); err == nil {
			logger.Info("demo account ready", zap.String("user_id", seed.DemoUserID.String()), zap.String("access_token", tok))
		}
	}

	evidence := storage.NewEvidenceStore(afero.NewOsFs(), cfg.EvidenceDir)

	var notifier usecase.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken)
	}

	opts := usecase.Options{
		MaxProofAttempts:        cfg.MaxProofAttempts,
		RevivalResetPenalty:     cfg.ResetPenalty,
		RevivalChallengePenalty: cfg.ChallengePenalty,
		ExpiryWarningWindow:     time.Duration(cfg.ExpiryWarningHours) * time.Hour,
		Location:                loc,
	}

	cleanupQueue := usecase.NewCleanupQueue(be.uow, evidence, clock, logger)
	revival := usecase.NewRevivalEngine(be.uow, catalog, cleanupQueue, notifier, clock, opts, logger)
	engine := usecase.NewRedemptionEngine(be.uow, catalog, evidence, cleanupQueue, revival, be.progress, notifier, clock, opts, logger)
	proofQueue := usecase.NewProofQueue(be.uow, engine, cleanupQueue, notifier, be.progress, clock, opts, logger)
	evaluator := usecase.NewDailyEvaluator(be.uow, engine, be.progress, logger)
	warner := usecase.NewExpiryNotifier(be.uow, notifier, clock, opts, logger)
	lifeChallenges := usecase.NewLifeChallengeService(be.uow, clock, logger)

	if cfg.SchedulerEnabled {
		sched := scheduler.New(engine, evaluator, warner, cleanupQueue, scheduler.NewState(), clock,
			scheduler.Config{DailyAt: dailyAt, Location: loc}, logger)
		sched.Start(ctx)
		defer sched.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		Redemptions:    handlers.NewRedemptionHandler(engine, logger),
		Revival:        handlers.NewRevivalHandler(revival, logger),
		LifeChallenges: handlers.NewLifeChallengeHandler(lifeChallenges, logger),
		Moderation:     handlers.NewModerationHandler(proofQueue, evidence, logger),
		Tokens:         tokens,
		Limiter:        middleware.NewRateLimiter(limiterClient),
		ModeratorKey:   cfg.ModeratorKey,
		AllowedOrigins: cfg.Origins(),
		ProofLimit:     cfg.ProofRateLimit,
		ProofWindow:    cfg.ProofRateWindow,
		Ping: func(ctx context.Context) error {
			for _, p := range pings {
				if err := p(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer := grpc_server.NewServer(proofQueue, cfg.ModeratorKey, logger)
	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCPort), zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server running", zap.String("addr", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("gRPC moderation service running", zap.String("addr", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}
