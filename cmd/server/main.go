package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/savannah-faces/data-service/internal/config"
	"github.com/savannah-faces/data-service/internal/database"
	"github.com/savannah-faces/data-service/internal/handler"
	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/middleware"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/retry"
	"github.com/savannah-faces/data-service/internal/service"
	"github.com/savannah-faces/data-service/internal/storage"
	"github.com/savannah-faces/data-service/internal/utils"
	"github.com/savannah-faces/data-service/pkg/logger"
	"go.uber.org/zap"
)

const publicAssetPrefix = "/data"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zlog)

	if err := run(cfg, zlog); err != nil {
		zlog.Error("Server stopped with error", zap.Error(err))
		logger.Sync(zlog)
		os.Exit(1)
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := prepareSQLiteDir(cfg.Database); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zlog.Warn("Failed to close database", zap.Error(err))
		}
	}()

	policy := retry.FromConfig(cfg.Retry)
	if err := database.Migrate(ctx, db, policy, zlog); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage, publicAssetPrefix)
	if err != nil {
		return err
	}
	var assetDir string
	if local, ok := store.(*storage.LocalStore); ok {
		assetDir = local.Dir()
	}
	zlog.Info("Image storage ready", zap.String("backend", cfg.Storage.Backend))

	limiter, closeRedis := rateLimiter(ctx, cfg, zlog)
	defer closeRedis()

	m := metrics.New()
	deps := repository.Deps{DB: db, Policy: policy, Log: zlog, Metrics: m}
	uow := database.NewTransactor(db, policy, zlog, m)

	hasher := utils.NewPasswordHasher(utils.Argon2Params{
		Memory:      cfg.Password.Memory,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
	})
	tokens, err := utils.NewTokenManager(cfg.Token.SecretKey, cfg.Token.Algorithm, cfg.Token.TTL)
	if err != nil {
		return err
	}

	users := service.NewUserService(uow, repository.NewUserRepository(deps), hasher, tokens, zlog)
	images := service.NewImageService(uow, repository.NewImageRepository(deps), store, m, zlog)
	labels := service.NewImageLabelService(uow, repository.NewImageLabelRepository(deps), zlog)

	router := handler.NewRouter(handler.RouterConfig{
		Config:      cfg,
		Log:         zlog,
		Metrics:     m,
		DB:          db,
		Users:       users,
		Images:      images,
		Labels:      labels,
		RateLimiter: limiter,
		AssetDir:    assetDir,
	})

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
			zap.String("api_version", cfg.APIVersion),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	zlog.Info("Server stopped")
	return nil
}

// rateLimiter connects to Redis when REDIS_URL is set. Without Redis, login
// and registration are not rate limited.
func rateLimiter(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*middleware.RateLimiter, func()) {
	noop := func() {}
	if cfg.RedisURL == "" {
		zlog.Warn("REDIS_URL not set, rate limiting disabled")
		return nil, noop
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Warn("Invalid REDIS_URL, rate limiting disabled", zap.Error(err))
		return nil, noop
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// the limiter fails open, so keep it and let Redis come back later
		zlog.Warn("Redis not reachable yet", zap.Error(err))
	}

	limiter := middleware.NewRateLimiter(client, middleware.RateLimiterConfig{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      cfg.RateLimitWindow,
		BlockTime:   cfg.RateLimitBlockTime,
	}, zlog)

	return limiter, func() {
		if err := client.Close(); err != nil {
			zlog.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}

func prepareSQLiteDir(cfg config.DatabaseConfig) error {
	if cfg.Driver != config.DriverSQLite || strings.HasPrefix(cfg.URL, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(cfg.URL), 0o755)
}
