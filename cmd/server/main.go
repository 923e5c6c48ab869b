package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/database"
	"github.com/ispops/backend/internal/handlers"
	"github.com/ispops/backend/internal/middleware"
	"github.com/ispops/backend/internal/repository"
	"github.com/ispops/backend/internal/services"
	"github.com/ispops/backend/internal/storage"
	"github.com/ispops/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := config.GetLogger()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Seed default issue types
	if err := database.Seed(db); err != nil {
		logger.WithError(err).Warn("Failed to seed database")
	}

	redisClient, err := database.ConnectRedis(&cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)
	redisStore := database.NewRedisStore(redisClient)

	minioStorage, err := storage.NewMinIOStorage(&cfg.MinIO, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to MinIO")
	}

	// Initialize repositories
	complaintRepo := repository.NewComplaintRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	engineerRepo := repository.NewEngineerRepository(db)
	reporterRepo := repository.NewReporterRepository(db)
	issueTypeRepo := repository.NewIssueTypeRepository(db)
	notificationLogRepo := repository.NewNotificationLogRepository(db)

	// Initialize services
	analyticsService := services.NewAnalyticsService(complaintRepo, redisStore, services.AnalyticsOptions{
		DefaultPeriodDays: cfg.Analytics.DefaultPeriodDays,
		CacheTTL:          cfg.Analytics.CacheTTL,
		Aggregate: services.AggregateOptions{
			TrendDays:      cfg.Analytics.TrendDays,
			TopIssueTypes:  cfg.Analytics.TopIssueTypes,
			RecentActivity: cfg.Analytics.RecentActivity,
		},
	}, logger, time.Now)

	lifecycle := services.NewLifecycle(services.LifecycleDeps{
		Complaints: complaintRepo,
		History:    historyRepo,
		Locker:     database.NewRedisLocker(redisClient, cfg.Lifecycle.LockTTL),
		Events:     redisStore,
		Cache:      analyticsService,
		Logger:     logger,
		Retry: services.RetryPolicy{
			Attempts: cfg.Lifecycle.RetryAttempts,
			Backoff:  cfg.Lifecycle.RetryBackoff,
		},
		Clock: time.Now,
	})

	notifier := services.NewEmailOtpNotifier(cfg.Notification, cfg.IsDevelopment(), notificationLogRepo, logger)
	assignmentService := services.NewAssignmentService(lifecycle, engineerRepo, engineerRepo)
	verificationService := services.NewVerificationService(lifecycle, notifier, reporterRepo, services.OtpPolicy{
		Length:   cfg.Lifecycle.OTPLength,
		HashCost: cfg.Lifecycle.OTPHashCost,
	})
	complaintService := services.NewComplaintService(
		lifecycle,
		assignmentService,
		verificationService,
		reporterRepo,
		issueTypeRepo,
		minioStorage,
		services.ComplaintServiceConfig{DefaultRegion: cfg.Lifecycle.DefaultRegion},
	)

	// Keep the default dashboard warm
	refresher := services.NewAnalyticsRefresher(analyticsService, cfg.Analytics.RefreshInterval, logger)
	refresher.Start(context.Background())
	defer refresher.Stop()

	// Initialize handlers
	complaintHandler := handlers.NewComplaintHandler(complaintService, assignmentService, verificationService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	attachmentHandler := handlers.NewAttachmentHandler(minioStorage)
	catalogHandler := handlers.NewCatalogHandler(issueTypeRepo, engineerRepo)
	notificationHandler := handlers.NewNotificationHandler(notificationLogRepo)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": redisStore.Ping,
		"minio": minioStorage.Ping,
	})

	// Initialize middleware
	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHour)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, redisStore)

	app := fiber.New(fiber.Config{
		AppName:      "ISP Complaint Service",
		ErrorHandler: customErrorHandler(logger),
		BodyLimit:    int(storage.MaxAttachmentSize) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(middleware.RequestLoggerConfig{
		Enabled:   true,
		SkipPaths: []string{"/api/v1/health", "/api/v1/ready"},
		Logger:    logger,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	v1 := app.Group("/api/v1")

	// Health routes
	v1.Get("/health", healthHandler.Health)
	v1.Get("/ready", healthHandler.Ready)

	authenticated := v1.Group("", authMiddleware.Authenticate())
	adminOnly := authMiddleware.RequireRole(string(services.RoleAdmin))

	// Catalog routes
	authenticated.Get("/issue-types", catalogHandler.ListIssueTypes)
	authenticated.Get("/engineers", adminOnly, catalogHandler.ListEngineers)
	authenticated.Get("/engineers/workload", adminOnly, complaintHandler.ListWorkloads)

	// Attachment routes
	authenticated.Post("/attachments", attachmentHandler.Upload)

	// Complaint routes
	complaints := authenticated.Group("/complaints")
	complaints.Post("/", complaintHandler.CreateComplaint)
	complaints.Get("/", complaintHandler.ListComplaints)
	complaints.Get("/:id", complaintHandler.GetComplaint)
	complaints.Patch("/:id", adminOnly, complaintHandler.UpdateComplaint)
	complaints.Delete("/:id", adminOnly, complaintHandler.DeleteComplaint)
	complaints.Get("/:id/history", complaintHandler.ListHistory)
	complaints.Get("/:id/report", complaintHandler.GenerateReport)
	complaints.Put("/:id/assign", adminOnly, complaintHandler.AssignEngineer)
	complaints.Put("/:id/reassign", adminOnly, complaintHandler.ReassignEngineer)
	complaints.Post("/:id/transition", complaintHandler.Transition)
	complaints.Post("/:id/override", adminOnly, complaintHandler.OverrideStatus)
	complaints.Post("/:id/otp", complaintHandler.IssueOtp)
	complaints.Post("/:id/otp/verify", complaintHandler.VerifyOtp)
	complaints.Get("/:id/notifications", adminOnly, notificationHandler.ListForComplaint)

	// Analytics routes
	analytics := authenticated.Group("/analytics", adminOnly)
	analytics.Get("/", analyticsHandler.GetAnalytics)
	analytics.Get("/export", analyticsHandler.ExportAnalytics)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		logger.WithField("addr", addr).Info("Server starting")
		if err := app.Listen(addr); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.WithError(err).Error("Error during shutdown")
	}
	logger.Info("Server stopped")
}

func customErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		} else {
			logger.WithError(err).WithField("path", c.Path()).Error("unhandled error")
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
