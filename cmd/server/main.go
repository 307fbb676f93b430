package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"udhaar/backend/internal/cache"
	"udhaar/backend/internal/config"
	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/httpapi"
	"udhaar/backend/internal/logging"
	"udhaar/backend/internal/metrics"
	"udhaar/backend/internal/report"
	"udhaar/backend/internal/service"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/store/memory"
	pgstore "udhaar/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	var ready func(context.Context) error
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Options{
			BreakerFailures: cfg.DBBreakerFailures,
			BreakerTimeout:  cfg.DBBreakerTimeout,
			Logger:          logger.WithField("module", "postgres"),
		})
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migration failed: %v", err)
		}
		owner, ok, err := bootstrapOwner(cfg)
		if err != nil {
			logger.Fatalf("invalid bootstrap owner: %v", err)
		}
		if ok {
			if err := pg.UpsertUser(ctx, owner); err != nil {
				logger.Fatalf("bootstrap owner: %v", err)
			}
			logger.WithFields(logrus.Fields{"tenant": owner.TenantID, "username": owner.Username}).Info("bootstrap owner ready")
		}
		repo = pg
		ready = pg.Ping
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	var fillLocker cache.FillLocker = cache.NoopFillLocker{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warnf("redis unavailable (%v), using noop report cache", err)
		} else {
			reportCache = redisCache
			fillLocker = cache.NewRedisFillLocker(redisCache.Client())
			closers = append(closers, redisCache.Close)
			logger.Info("report cache: redis")
		}
	} else {
		logger.Info("report cache: noop")
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		InvoicePrefix:  cfg.InvoicePrefix,
		DefaultDueDays: cfg.DefaultDueDays,
		Cache:          reportCache,
		Logger:         logger.WithField("module", "service"),
		Metrics:        m,
	})
	reports := report.New(repo, report.Options{
		Cache:   reportCache,
		Locker:  fillLocker,
		TTL:     cfg.ReportCacheTTL,
		Logger:  logger.WithField("module", "report"),
		Metrics: m,
	})
	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err != nil {
		logger.Fatalf("auth manager: %v", err)
	}
	api := httpapi.New(svc, reports, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Metrics:       m,
		Logger:        logger.WithField("module", "httpapi"),
		Ready:         ready,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("udhaar backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Errorf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < httpapi.MinSecretLength {
		return fmt.Errorf("AUTH_SECRET must be set and at least %d characters", httpapi.MinSecretLength)
	}
	if cfg.BootstrapOwnerPassword != "" && len(cfg.BootstrapOwnerPassword) < 8 {
		return fmt.Errorf("BOOTSTRAP_OWNER_PASSWORD must be at least 8 characters")
	}
	return nil
}

// bootstrapOwner builds the owner account described by BOOTSTRAP_*. ok is false when the
// variables are unset.
func bootstrapOwner(cfg config.Config) (user domain.UserAccount, ok bool, err error) {
	if cfg.BootstrapTenant == "" && cfg.BootstrapOwnerUsername == "" && cfg.BootstrapOwnerPassword == "" {
		return domain.UserAccount{}, false, nil
	}
	if cfg.BootstrapTenant == "" || cfg.BootstrapOwnerUsername == "" || cfg.BootstrapOwnerPassword == "" {
		return domain.UserAccount{}, false, errors.New("BOOTSTRAP_TENANT, BOOTSTRAP_OWNER_USERNAME and BOOTSTRAP_OWNER_PASSWORD must be set together")
	}
	hash, err := httpapi.HashPassword(cfg.BootstrapOwnerPassword)
	if err != nil {
		return domain.UserAccount{}, false, err
	}
	return domain.UserAccount{
		TenantID: cfg.BootstrapTenant,
		Username: cfg.BootstrapOwnerUsername,
		Password: hash,
		Role:     domain.RoleOwner,
		Active:   true,
	}, true, nil
}
