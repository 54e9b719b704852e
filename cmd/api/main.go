package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/candidate-registry/internal/api/http"
	"github.com/spec-kit/candidate-registry/internal/api/http/handlers"
	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/config"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/observability"
	"github.com/spec-kit/candidate-registry/internal/persistence"
	"github.com/spec-kit/candidate-registry/internal/repository"
	"github.com/spec-kit/candidate-registry/internal/service"
	"github.com/spec-kit/candidate-registry/internal/storage"
	"github.com/spec-kit/candidate-registry/internal/worker"
)

type repositories struct {
	candidates repository.CandidateRepository
	profiles   repository.ProfileRepository
	history    repository.StatusHistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	broker := events.NewBroker(logger)
	defer broker.Close()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	repos := buildRepositories(ctx, cfg, pg, broker, logger)

	changeWorker := worker.NewChangeWorker(broker, logger, metrics)
	changeWorker.Start()
	defer changeWorker.Stop()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		revoker service.TokenRevoker
		checker auth.RevocationChecker
	)
	if redis.Enabled() {
		revoker = redis
		checker = redis
	}

	blobs, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Fatal("failed to prepare storage", zap.Error(err))
	}

	tokenMgr := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	roles := auth.NewProfileRoleResolver(repos.profiles)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		ProfileRepo:  repos.profiles,
		TokenManager: tokenMgr,
		Revoker:      revoker,
		Logger:       logger,
	})
	if err := authService.BootstrapAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		CandidateRepo: repos.candidates,
		HistoryRepo:   repos.history,
		Feed:          broker,
		Roles:         roles,
		Metrics:       metrics,
		Logger:        logger,
	})
	candidates := service.NewCandidateService(service.CandidateDependencies{
		CandidateRepo: repos.candidates,
		HistoryRepo:   repos.history,
		Blobs:         blobs,
		Feed:          broker,
		Roles:         roles,
		Limits: service.UploadLimits{
			MaxPhotoBytes:   cfg.Storage.MaxPhotoBytes,
			MaxCertBytes:    cfg.Storage.MaxCertBytes,
			MaxCertificates: cfg.Storage.MaxCertificates,
		},
		Logger: logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		BodyLimit:             bodyLimit(cfg.Storage),
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Dependency{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:            handlers.NewAuthHandler(authService),
		Candidates:      handlers.NewCandidatesHandler(candidates, lifecycle, metrics),
		AdminCandidates: handlers.NewAdminCandidatesHandler(candidates, lifecycle, metrics),
		AuthMiddleware:  auth.NewAuthMiddleware(tokenMgr, repos.profiles, checker, logger),
		Metrics:         metrics,
		FilesPrefix:     cfg.Storage.PublicBaseURL,
		FilesDir:        blobs.Root(),
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	broker.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

// buildRepositories picks Postgres when a pool is available and in-memory
// storage otherwise. Both publish committed candidate writes to broker.
func buildRepositories(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, broker *events.Broker, logger *zap.Logger) repositories {
	if !pg.Enabled() {
		return repositories{
			candidates: repository.NewMemoryCandidateRepository(broker),
			profiles:   repository.NewMemoryProfileRepository(),
			history:    repository.NewMemoryStatusHistoryRepository(),
		}
	}

	pool := pg.Pool()
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	repos := repositories{
		candidates: repository.NewCandidateRepository(pool),
		profiles:   repository.NewProfileRepository(pool),
		history:    repository.NewStatusHistoryRepository(pool),
	}
	listener := persistence.NewListener(pool, cfg.Postgres.FeedChannel, repos.candidates, broker, logger)
	go listener.Run(ctx)
	return repos
}

func bodyLimit(cfg config.StorageConfig) int {
	limit := cfg.MaxPhotoBytes + cfg.MaxCertBytes*int64(cfg.MaxCertificates) + 1<<20
	if limit <= 0 {
		return fiber.DefaultBodyLimit
	}
	return int(limit)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
