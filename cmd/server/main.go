package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"virtualaddresshub/backend/internal/auth"
	jwtpkg "virtualaddresshub/backend/internal/auth/jwt"
	"virtualaddresshub/backend/internal/config"
	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/guard"
	"virtualaddresshub/backend/internal/health"
	"virtualaddresshub/backend/internal/logger"
	"virtualaddresshub/backend/internal/monitoring"
	"virtualaddresshub/backend/internal/pool"
	"virtualaddresshub/backend/internal/service"
	"virtualaddresshub/backend/internal/storage"
	"virtualaddresshub/backend/internal/storage/memory"
	sqlstore "virtualaddresshub/backend/internal/storage/sql"
	httptransport "virtualaddresshub/backend/internal/transport/http"
	"virtualaddresshub/backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting virtualaddresshub server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// Storage: SQL when configured, in-memory otherwise.
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()

	// Forwarding guard: Redis when configured so the admission limits
	// hold across instances, otherwise in-process.
	guardCfg := guard.Config{
		RateLimitMax:    cfg.Forwarding.RateLimitMax,
		RateLimitWindow: cfg.Forwarding.RateLimitWindow,
		IdempotencyTTL:  cfg.Forwarding.IdempotencyTTL,
		SweepInterval:   cfg.Forwarding.SweepInterval,
	}
	var forwardingGuard guard.Guard
	var memGuard *guard.MemoryGuard
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisGuard, err := guard.NewRedisGuard(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, guardCfg)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer redisGuard.Close()
		forwardingGuard = redisGuard
		redisClient = redisGuard.Client()
		log.Info("using redis forwarding guard", zap.String("address", cfg.Redis.Address))
	} else {
		memGuard = guard.NewMemoryGuard(guardCfg)
		forwardingGuard = memGuard
		log.Info("using in-process forwarding guard")
	}

	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// Webhook delivery worker pool.
	workers := pool.NewWorkerPool(cfg.Notify.Workers, 256)

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store)
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)

	webhookService := service.NewWebhookService(store, workers, metrics, log, cfg.Notify.Timeout, cfg.Notify.MaxRetries)

	// Events fan out to webhook endpoints and live websocket sessions.
	events := service.PublisherGroup{webhookService, wsHub}

	mailService := service.NewMailItemService(store, metrics, log, cfg.Forwarding.StorageDays,
		service.WithMailItemEvents(events))
	forwardingService := service.NewForwardingService(store, forwardingGuard, metrics, log,
		service.WithEventPublisher(events))
	adminService := service.NewAdminService(store, log)

	if cfg.Log.Development {
		createDefaultAdmin(store, log)
	}

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:            cfg,
		MailItemService:   mailService,
		ForwardingService: forwardingService,
		WebhookService:    webhookService,
		AdminService:      adminService,
		AuthService:       authService,
		JWTManager:        jwtManager,
		WebSocketHub:      wsHub,
		Metrics:           metrics,
		Logger:            log,
	})

	router.GET("/health/live", gin.WrapH(healthChecker.Handler()))
	router.GET("/health/ready", gin.WrapH(healthChecker.Handler()))
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)
	defer workers.Stop()

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	if memGuard != nil {
		group.Go(func() error {
			guard.RunSweep(groupCtx, memGuard, cfg.Forwarding.SweepInterval, log)
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting storage expiry scan", zap.Int("storage_days", cfg.Forwarding.StorageDays))
		mailService.RunExpiryScan(groupCtx, time.Hour)
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(cfg.Notify.RetryInterval)
		defer ticker.Stop()

		log.Info("starting webhook retry task", zap.Duration("interval", cfg.Notify.RetryInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("webhook retry task stopped")
				return nil
			case <-ticker.C:
				if err := webhookService.RetryFailedDeliveries(); err != nil {
					log.Error("failed to retry webhook deliveries", zap.Error(err))
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// createDefaultAdmin seeds a back-office account for local development.
func createDefaultAdmin(store storage.Store, log *zap.Logger) {
	email := "admin@vah.local"
	password := "Admin123456!"

	if _, err := store.GetUserByEmail(email); err == nil {
		log.Info("default admin already exists, skipping", zap.String("email", email))
		return
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		log.Error("failed to hash default admin password", zap.Error(err))
		return
	}

	user := &domain.User{
		ID:           "super-admin-001",
		Email:        email,
		Username:     "admin",
		PasswordHash: hashedPassword,
		Role:         domain.RoleSuper,
		KycStatus:    domain.KycStatusVerified,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := store.CreateUser(user); err != nil {
		log.Error("failed to create default admin", zap.Error(err))
		return
	}

	log.Warn("default admin user created (development only)",
		zap.String("email", email),
		zap.String("password", password),
	)
}
