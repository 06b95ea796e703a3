package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dkrasnov/tenantauth/internal/config"
	"github.com/dkrasnov/tenantauth/internal/csrf"
	"github.com/dkrasnov/tenantauth/internal/db"
	"github.com/dkrasnov/tenantauth/internal/events"
	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/httpserver"
	"github.com/dkrasnov/tenantauth/internal/keyring"
	"github.com/dkrasnov/tenantauth/internal/logging"
	"github.com/dkrasnov/tenantauth/internal/middleware"
	"github.com/dkrasnov/tenantauth/internal/ratelimit"
	"github.com/dkrasnov/tenantauth/internal/repo"
	"github.com/dkrasnov/tenantauth/internal/service"
	"github.com/dkrasnov/tenantauth/internal/tokens"
	"github.com/dkrasnov/tenantauth/internal/versioncache"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustKeys(cfg.JWTKeys, "JWT_KEYS")

	logger := logging.New(cfg.LogLevel)

	ring, err := keyring.New(cfg.JWTKeys)
	if err != nil {
		log.Fatalf("keyring init error: %v", err)
	}
	// The one fatal condition in this service: an unverifiable signer must
	// abort startup instead of serving traffic.
	if err := ring.VerifyAllSigningKeys(); err != nil {
		log.Fatalf("keyring self-check failed: %v", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	gormRepo := &repo.GormRepo{DB: gdb}
	issuer := &tokens.Issuer{
		Ring:      ring,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.AccessTokenTTL,
	}
	versions := versioncache.New()

	svc := &service.AuthService{
		Repo:        gormRepo,
		Issuer:      issuer,
		Hasher:      hash.Bcrypt{},
		Limiter:     ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.RateLimitDryRun),
		Versions:    versions,
		Events:      producer,
		SlidingTTL:  cfg.RefreshSlidingTTL,
		MaxLifetime: cfg.RefreshMaxLifetime,
		MagicTTL:    cfg.MagicLinkTTL,
		CacheTTL:    cfg.TokenVersionCacheTTL,
	}

	guard := &csrf.Guard{Enabled: cfg.CSRFEnabled}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(middleware.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Auth: &httpserver.AuthHTTP{
			Svc:                 svc,
			RefreshBodyFallback: cfg.RefreshBodyFallback,
			ForceSecureCookies:  cfg.ForceSecureCookies,
		},
		Csrf: &httpserver.CsrfHTTP{
			Guard:              guard,
			ForceSecureCookies: cfg.ForceSecureCookies,
		},
		AuthMW:             middleware.NewAuth(issuer, gormRepo, versions, cfg.TokenVersionCacheTTL),
		Guard:              guard,
		SessionsAPIEnabled: cfg.SessionsAPIEnabled,
	})

	go func() {
		if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
}
