package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/visitorgate/internal/cache"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/handlers"
	"github.com/diagnosis/visitorgate/internal/http/middleware"
	"github.com/diagnosis/visitorgate/internal/notify"
	"github.com/diagnosis/visitorgate/internal/platform/mailer"
	"github.com/diagnosis/visitorgate/internal/platform/qr"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/diagnosis/visitorgate/internal/repo/memory"
	"github.com/diagnosis/visitorgate/internal/repo/postgres"
	"github.com/diagnosis/visitorgate/internal/service"
	"github.com/diagnosis/visitorgate/pkg/auth"
	"github.com/diagnosis/visitorgate/pkg/config"
	"github.com/diagnosis/visitorgate/pkg/database"
	"github.com/diagnosis/visitorgate/pkg/events"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Entity store
	var (
		store        *repo.Store
		loginCounter middleware.Counter
	)
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		store = memory.NewStore()
		loginCounter = middleware.NewMemoryCounter(cfg.RateLimit.LoginWindow)
	default:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				logger.Error("Failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(pool)
		limits := postgres.NewRateLimitRepo(pool)
		loginCounter = limits
		go cleanupRateLimits(ctx, limits)
	}
	defer store.Close()

	// Cache
	cacheStore, closeCache := cache.New(ctx, cfg.Cache, cfg.Redis)
	defer closeCache()
	visitorCache := cache.NewVisitorCache(cacheStore, cfg.Cache.TTL)

	// Event mirror
	var bus events.EventBus = events.NopBus{}
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, lifecycle events will not be mirrored", "error", err)
		} else {
			bus = nb
			if err := bus.Subscribe(events.SubjectPrefix+">", func(msg *events.Message) {
				logger.Debug("Lifecycle event", "subject", msg.Subject, "data", string(msg.Data))
			}); err != nil {
				logger.Warn("Failed to subscribe to lifecycle events", "error", err)
			}
		}
	}
	defer bus.Close()

	// Notifications
	registry := notify.NewRegistry(0)
	dispatcher := notify.NewDispatcher(registry, bus, mailer.New(cfg.Email))

	// Services
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	verifier := middleware.NewTokenVerifier(issuer)
	accounts := service.NewAccountService(store, auth.NewArgon2Hasher(nil), issuer, cfg.Visitor.DefaultPreApprovalLimit)
	visitors := service.NewVisitorService(store, qr.NewPNGEncoder(), dispatcher, visitorCache, cfg.Visitor.Location())

	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		created, err := accounts.EnsureAdmin(ctx, domain.CreateAdminRequest{
			Name:     cfg.Auth.AdminName,
			Username: cfg.Auth.AdminUsername,
			Password: cfg.Auth.AdminPassword,
		})
		if err != nil {
			logger.Error("Failed to create bootstrap admin", "error", err)
			os.Exit(1)
		}
		if created {
			logger.Info("Bootstrap admin created", "username", cfg.Auth.AdminUsername)
		}
	}

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		logger.Error("Invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	router := handlers.NewRouter(handlers.Deps{
		Visitors:       visitors,
		Accounts:       accounts,
		VisitorCache:   visitorCache,
		Verifier:       verifier,
		Realtime:       notify.NewHandler(registry, verifier, cfg.Server.AllowedOrigins),
		LoginCounter:   loginCounter,
		LoginRequests:  cfg.RateLimit.LoginRequests,
		LoginWindow:    cfg.RateLimit.LoginWindow,
		TrustedProxies: trustedProxies,
		Idempotency:    cacheStore,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("Shutting down visitorgate...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Sockets are hijacked and not tracked by Shutdown.
		registry.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		dispatcher.Wait()
	}()

	logger.Info("Starting visitorgate", "port", cfg.Server.Port, "store", cfg.Store.Driver, "cache", cfg.Cache.Driver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	<-stopped
}

func cleanupRateLimits(ctx context.Context, limits *postgres.RateLimitRepo) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := limits.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("Rate limit cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Rate limit counters removed", "count", n)
			}
		}
	}
}
