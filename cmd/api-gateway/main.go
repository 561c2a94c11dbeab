package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "github.com/noah-isme/hostel-fee-api/api/swagger"
	"github.com/noah-isme/hostel-fee-api/internal/handler"
	"github.com/noah-isme/hostel-fee-api/internal/localcache"
	"github.com/noah-isme/hostel-fee-api/internal/middleware"
	"github.com/noah-isme/hostel-fee-api/internal/models"
	"github.com/noah-isme/hostel-fee-api/internal/service"
	"github.com/noah-isme/hostel-fee-api/internal/store"
	rediscache "github.com/noah-isme/hostel-fee-api/pkg/cache"
	"github.com/noah-isme/hostel-fee-api/pkg/config"
	"github.com/noah-isme/hostel-fee-api/pkg/database"
	"github.com/noah-isme/hostel-fee-api/pkg/jobs"
	"github.com/noah-isme/hostel-fee-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hostel-fee-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hostel-fee-api/pkg/middleware/requestid"
)

// @title Hostel Fee API
// @version 1.0.0
// @description Hostel fee collection and expense tracking service
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local cache first: the service must come up even when the remote
	// store is unreachable.
	cache, err := localcache.Open(cfg.LocalCache.Path)
	if err != nil {
		logr.Fatal("failed to open local cache", zap.Error(err))
	}
	defer cache.Close() //nolint:errcheck

	var mongoDB *mongo.Database
	if cfg.Mongo.Configured() {
		client, err := database.NewMongo(cfg.Mongo)
		if err != nil {
			logr.Warn("remote store unreachable, starting on local cache only", zap.Error(err))
		} else {
			mongoDB = client.Database(cfg.Mongo.Database)
			defer client.Disconnect(context.Background()) //nolint:errcheck
		}
	} else {
		logr.Info("remote store not configured, running on local cache only")
	}

	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = rediscache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, notification fan-out disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	metricsService := service.NewMetricsService()

	students := store.NewCollection(store.Options[*models.Student]{
		Name:           store.CollectionStudents,
		Remote:         remoteFor(mongoDB, store.CollectionStudents, func() *models.Student { return &models.Student{} }),
		Cache:          cache,
		New:            func() *models.Student { return &models.Student{} },
		TimestampField: "lastUpdated",
		Timeout:        cfg.Mongo.Timeout,
		OnFallback:     metricsService.RecordRemoteFallback,
		Logger:         logr,
	})
	expenses := store.NewCollection(store.Options[*models.Expense]{
		Name:       store.CollectionExpenses,
		Remote:     remoteFor(mongoDB, store.CollectionExpenses, func() *models.Expense { return &models.Expense{} }),
		Cache:      cache,
		New:        func() *models.Expense { return &models.Expense{} },
		IDCounter:  store.CounterExpenseID,
		Timeout:    cfg.Mongo.Timeout,
		OnFallback: metricsService.RecordRemoteFallback,
		Logger:     logr,
	})
	settings := store.NewCollection(store.Options[*models.HostelSettings]{
		Name:       store.CollectionSettings,
		Remote:     remoteFor(mongoDB, store.CollectionSettings, func() *models.HostelSettings { return &models.HostelSettings{} }),
		Cache:      cache,
		New:        func() *models.HostelSettings { return &models.HostelSettings{} },
		Seed:       []*models.HostelSettings{service.DefaultSettings()},
		Timeout:    cfg.Mongo.Timeout,
		OnFallback: metricsService.RecordRemoteFallback,
		Logger:     logr,
	})
	notifications := store.NewCollection(store.Options[*models.Notification]{
		Name:       store.CollectionNotifications,
		Remote:     remoteFor(mongoDB, store.CollectionNotifications, func() *models.Notification { return &models.Notification{} }),
		Cache:      cache,
		New:        func() *models.Notification { return &models.Notification{} },
		IDCounter:  store.CounterNotificationID,
		Timeout:    cfg.Mongo.Timeout,
		OnFallback: metricsService.RecordRemoteFallback,
		Logger:     logr,
	})
	admins := store.NewCollection(store.Options[*models.Admin]{
		Name:           store.CollectionAdmins,
		Remote:         remoteFor(mongoDB, store.CollectionAdmins, func() *models.Admin { return &models.Admin{} }),
		Cache:          cache,
		New:            func() *models.Admin { return &models.Admin{} },
		TimestampField: "updatedAt",
		Timeout:        cfg.Mongo.Timeout,
		OnFallback:     metricsService.RecordRemoteFallback,
		Logger:         logr,
	})
	sessions := store.NewCollection(store.Options[*models.AdminSession]{
		Name:       store.CollectionSessions,
		Remote:     remoteFor(mongoDB, store.CollectionSessions, func() *models.AdminSession { return &models.AdminSession{} }),
		Cache:      cache,
		New:        func() *models.AdminSession { return &models.AdminSession{} },
		Timeout:    cfg.Mongo.Timeout,
		OnFallback: metricsService.RecordRemoteFallback,
		Logger:     logr,
	})

	for name, init := range map[string]func(context.Context) error{
		store.CollectionStudents:      students.Init,
		store.CollectionExpenses:      expenses.Init,
		store.CollectionSettings:      settings.Init,
		store.CollectionNotifications: notifications.Init,
		store.CollectionAdmins:        admins.Init,
		store.CollectionSessions:      sessions.Init,
	} {
		if err := init(ctx); err != nil {
			logr.Fatal("failed to init collection", zap.String("collection", name), zap.Error(err))
		}
	}
	defer func() {
		students.Dispose()
		expenses.Dispose()
		settings.Dispose()
		notifications.Dispose()
		admins.Dispose()
		sessions.Dispose()
	}()

	queue := jobs.NewQueue("payments", jobs.QueueConfig{
		Workers: cfg.Payments.Workers,
		Logger:  logr,
	})

	notificationService := service.NewNotificationService(notifications, cache, redisClient, cfg.Redis.Channel, logr).
		WithMetrics(metricsService)
	settingsService := service.NewSettingsService(settings, nil, logr)
	studentService := service.NewStudentService(students, notificationService, nil, logr)
	resetService := service.NewResetService(settingsService, students, logr).
		WithMetrics(metricsService)
	expenseService := service.NewExpenseService(expenses, studentService, settingsService, nil, logr)
	authService := service.NewAuthService(admins, sessions, service.AuthConfig{
		Secret: []byte(cfg.JWT.Secret),
		Expiry: cfg.JWT.Expiration,
	}, nil, logr)
	paymentService := service.NewPaymentService(students, settingsService, notificationService, queue, service.PaymentConfig{
		ProcessingDelay: cfg.Payments.ProcessingDelay,
		CompletionDelay: cfg.Payments.CompletionDelay,
	}, nil, logr).WithMetrics(metricsService)

	if err := authService.EnsureBootstrapAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminEmail); err != nil {
		logr.Fatal("failed to seed bootstrap admin", zap.Error(err))
	}

	queue.Start(ctx)
	defer queue.Stop()

	runner := jobs.NewRunner(logr)
	runner.Add(jobs.Task{
		Name:     "monthly-reset-check",
		Interval: cfg.Reset.CheckInterval,
		Run: func(ctx context.Context) {
			if _, err := resetService.CheckAndReset(ctx); err != nil {
				logr.Warn("scheduled reset check failed", zap.Error(err))
			}
		},
	})
	runner.Add(jobs.Task{
		Name:     "session-sweep",
		Interval: cfg.Reset.CheckInterval,
		Run: func(ctx context.Context) {
			authService.SweepExpiredSessions(ctx)
		},
	})
	runner.Start(ctx)
	defer runner.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	authHandler := handler.NewAuthHandler(authService)
	studentHandler := handler.NewStudentHandler(studentService)
	portalHandler := handler.NewPortalHandler(studentService, settingsService)
	expenseHandler := handler.NewExpenseHandler(expenseService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	adminHandler := handler.NewAdminHandler(resetService)

	api := r.Group(cfg.APIPrefix)
	api.GET("/health", adminHandler.Health)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/portal/students/:mobile", portalHandler.Lookup)
	api.PATCH("/portal/students/:mobile/fee-status", portalHandler.SelfReport)
	api.POST("/payments", paymentHandler.Initiate)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))
	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/me", authHandler.Me)

	protected.GET("/students", studentHandler.List)
	protected.POST("/students", studentHandler.Create)
	protected.GET("/students/:id", studentHandler.Get)
	protected.PUT("/students/:id", studentHandler.Update)
	protected.DELETE("/students/:id", studentHandler.Delete)
	protected.PATCH("/students/:id/fee-status", studentHandler.UpdateFeeStatus)

	protected.GET("/expenses", expenseHandler.List)
	protected.POST("/expenses", expenseHandler.Create)
	protected.DELETE("/expenses", expenseHandler.ClearAll)
	protected.GET("/expenses/summary", expenseHandler.Summary)
	protected.GET("/expenses/export", expenseHandler.Export)
	protected.GET("/expenses/:id", expenseHandler.Get)
	protected.PUT("/expenses/:id", expenseHandler.Update)
	protected.DELETE("/expenses/:id", expenseHandler.Delete)

	protected.GET("/settings", settingsHandler.Get)
	protected.PUT("/settings", settingsHandler.Update)

	protected.GET("/notifications", notificationHandler.List)
	protected.PATCH("/notifications/:id/read", notificationHandler.MarkAsRead)
	protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

	protected.GET("/payments", paymentHandler.List)
	protected.GET("/payments/:id", paymentHandler.Get)

	protected.POST("/admin/monthly-reset", adminHandler.MonthlyReset)
	protected.GET("/admin/check-monthly-reset", adminHandler.CheckMonthlyReset)

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
}

// remoteFor returns the MongoDB-backed remote for a collection, or nil
// when no remote store is configured.
func remoteFor[T store.Record](db *mongo.Database, name string, newRecord func() T) store.Remote[T] {
	if db == nil {
		return nil
	}
	return store.NewMongoRemote(db, name, newRecord)
}
