package main

import (
	"context"
	"log"

	"github.com/savannah-faces/data-service/internal/config"
	"github.com/savannah-faces/data-service/internal/database"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/retry"
	"github.com/savannah-faces/data-service/internal/service"
	"github.com/savannah-faces/data-service/internal/utils"
	"github.com/savannah-faces/data-service/pkg/logger"
	"go.uber.org/zap"
)

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

	if cfg.DefaultUserName == "" || cfg.DefaultUserEmail == "" || cfg.DefaultUserPassword == "" {
		zlog.Fatal("Missing environment variables: DEFAULT_USER_NAME, DEFAULT_USER_EMAIL, DEFAULT_USER_PASSWORD")
	}

	ctx := context.Background()

	db, err := database.Open(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	policy := retry.FromConfig(cfg.Retry)
	if err := database.Migrate(ctx, db, policy, zlog); err != nil {
		zlog.Fatal("Failed to migrate database", zap.Error(err))
	}

	tokens, err := utils.NewTokenManager(cfg.Token.SecretKey, cfg.Token.Algorithm, cfg.Token.TTL)
	if err != nil {
		zlog.Fatal("Invalid token settings", zap.Error(err))
	}
	hasher := utils.NewPasswordHasher(utils.Argon2Params{
		Memory:      cfg.Password.Memory,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
	})

	users := service.NewUserService(
		database.NewTransactor(db, policy, zlog, nil),
		repository.NewUserRepository(repository.Deps{DB: db, Policy: policy, Log: zlog}),
		hasher,
		tokens,
		zlog,
	)

	user, created, err := users.EnsureDefaultUser(ctx, cfg.DefaultUserName, cfg.DefaultUserEmail, cfg.DefaultUserPassword)
	if err != nil {
		zlog.Fatal("Failed to seed default user", zap.Error(err))
	}

	if created {
		zlog.Info("Default user created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	} else {
		zlog.Info("Default user already exists", zap.String("user_id", user.ID), zap.String("email", user.Email))
	}
}
