// Package main is the entry point for the raid API server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"city-raid/internal/catalog"
	"city-raid/internal/config"
	"city-raid/internal/game/raid"
	"city-raid/internal/pkg/db"
	"city-raid/internal/pkg/lock"
	"city-raid/internal/pkg/ratelimit"
	"city-raid/internal/repository"
	"city-raid/internal/server"
	"city-raid/internal/service"
	"city-raid/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	profileRepo := repository.NewProfileRepository(dbPool.Pool)
	purchaseRepo := repository.NewPurchaseRepository(dbPool.Pool)
	raidRepo := repository.NewRaidRepository(dbPool.Pool)
	rewardRepo := repository.NewRewardRepository(dbPool.Pool)
	tagRepo := repository.NewTagRepository(dbPool.Pool)

	if err := purchaseRepo.SyncCatalog(ctx, catalog.AllItems()); err != nil {
		log.Fatal().Err(err).Msg("Failed to sync item catalog")
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Backend == config.LimiterRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
	}

	limiter, err := ratelimit.New(cfg.RateLimit, redisClient, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rate limiter")
	}

	// Validate already rejected a bad timezone.
	loc, _ := cfg.Raid.Location()

	rewards := service.NewRewards(rewardRepo, tagRepo, cfg.Raid.TagDuration())
	raidService := service.NewRaidService(service.Deps{
		Profiles:  profileRepo,
		Purchases: purchaseRepo,
		Raids:     raidRepo,
		Rewards:   rewards,
		Limiter:   limiter,
		Lock:      lock.NewKeyedLock(),
	}, service.Settings{
		MaxPerDay:   cfg.Raid.MaxPerDay,
		TagDuration: cfg.Raid.TagDuration(),
		XP: raid.XPTable{
			WinAttacker:  cfg.Raid.XPWinAttacker,
			WinDefender:  cfg.Raid.XPWinDefender,
			LoseDefender: cfg.Raid.XPLoseDefender,
		},
		Location:    loc,
		LockTimeout: cfg.Raid.LockTimeout,
	})

	ipLimiter := server.NewIPLimiter(cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst, nil)
	srv := server.New(&server.Dependencies{
		Config:    cfg,
		Raids:     raidService,
		DB:        dbPool,
		IPLimiter: ipLimiter,
	})

	sweepers := []ratelimit.Sweeper{ipLimiter}
	if s, ok := limiter.(ratelimit.Sweeper); ok {
		sweepers = append(sweepers, s)
	}
	jobs, err := worker.New(worker.Dependencies{
		Config:   cfg.Jobs,
		Tags:     tagRepo,
		Rewards:  rewards,
		Raids:    raidRepo,
		Limiters: sweepers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker")
	}
	jobs.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down server")
	}
	if err := jobs.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop worker")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
