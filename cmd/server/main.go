package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdvsystem/backend/internal/backup"
	"pdvsystem/backend/internal/cache"
	"pdvsystem/backend/internal/config"
	"pdvsystem/backend/internal/httpapi"
	"pdvsystem/backend/internal/service"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/store/memory"
	pgstore "pdvsystem/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	setupLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.LockTimeout())
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Str("repository", "postgres").Msg("storage ready")
	} else {
		repo = memory.NewSeeded(seedPassword(cfg))
		log.Info().Str("repository", "memory").Msg("storage ready")
	}

	statusCache := cache.StatusCache(cache.NoopStatusCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop status cache")
			_ = redisCache.Close()
		} else {
			statusCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("cache", "redis").Msg("status cache ready")
		}
	}

	svc := service.New(repo, statusCache, service.Options{
		StatusCacheTTL: cfg.StatusCacheTTL(),
		MaxAttempts:    cfg.TxMaxAttempts,
		Location:       loc,
		Logger:         log.Logger,
	})

	if cfg.DatabaseURL != "" {
		seeded, err := svc.EnsureAdmin(ctx, seedPassword(cfg))
		if err != nil {
			log.Fatal().Err(err).Msg("seed admin account")
		}
		if seeded {
			log.Info().Str("username", "admin").Msg("created initial admin account")
		}
	}

	backups, err := backup.NewManager(cfg.BackupDir, svc, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.BackupDir).Msg("backup directory unavailable")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), svc)
	api := httpapi.New(svc, auth, backups, cfg.AllowedOrigin, log.Logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("env", cfg.Env).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func seedPassword(cfg config.Config) string {
	if cfg.SeedAdminPassword != "" {
		return cfg.SeedAdminPassword
	}
	log.Warn().Msg("using default dev admin password, set SEED_ADMIN_PASSWORD to override")
	return "admin123"
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		if cfg.IsProduction() || cfg.AuthSecret != "" {
			return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
		}
		return fmt.Errorf("AUTH_SECRET must be set")
	}
	if cfg.IsProduction() {
		if err := validateSeedPassword(cfg.SeedAdminPassword); err != nil {
			return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validateSeedPassword rejects short passwords and the well-known defaults.
func validateSeedPassword(pwd string) error {
	if len(pwd) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}
	known := map[string]bool{
		"admin123": true, "password": true, "12345678": true, "admin1234": true,
		"changeme": true, "senha123": true, "administrator": true,
	}
	if known[strings.ToLower(pwd)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(pwd); i++ {
		if pwd[i] != pwd[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
