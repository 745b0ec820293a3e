package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sjperalta/fintera-prestamos/docs" // Swagger docs
	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/database"
	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/handlers"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/middleware"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/internal/services"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

// @title Fintera Préstamos API
// @version 1.0
// @description REST API for the Fintera loan servicing engine

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry (GlitchTip) when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	eng, err := engine.NewFromPolicy(cfg.Policy)
	if err != nil {
		logger.Error("Invalid business policy", "error", err)
		os.Exit(1)
	}
	logger.Info("Loan engine ready",
		"strategy", eng.StrategyName(),
		"base_rate", cfg.Policy.BaseRate.String(),
		"penalty_rate", cfg.Policy.BasePenaltyRate.String())

	repos := repository.NewRepositories(db)

	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	svcs := services.NewServices(repos, worker, eng, cfg, services.SystemClock)

	scheduleJobs(worker, svcs, cfg)

	h := handlers.NewHandlers(svcs, func() error { return database.Ping(db) })

	paymentLimiter := middleware.NewRateLimiter(cfg.PaymentRateLimit, cfg.PaymentRateBurst)
	defer paymentLimiter.Stop()

	router := setupRouter(h, cfg, paymentLimiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	worker.Shutdown()
	logger.Info("Background worker stopped")

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, paymentLimiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()

	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Health.Index)

		clients := v1.Group("/clients")
		{
			clients.GET("", h.Client.Index)
			clients.POST("", h.Client.Create)
			clients.GET("/:client_id", h.Client.Show)
			clients.GET("/:client_id/loans", h.Client.Loans)
			clients.GET("/:client_id/classification", h.Client.Classification)
		}

		loans := v1.Group("/loans")
		{
			loans.GET("", h.Loan.Index)
			loans.POST("", h.Loan.Create)
			loans.POST("/advance", h.Loan.AdvanceAll)
			loans.GET("/:loan_id", h.Loan.Show)
			loans.GET("/:loan_id/installments", h.Loan.Installments)
			loans.GET("/:loan_id/payments", h.Loan.Payments)
			loans.POST("/:loan_id/payments", middleware.RateLimit(paymentLimiter), h.Payment.Create)
			loans.GET("/:loan_id/history", h.Loan.History)
			loans.GET("/:loan_id/statement.csv", h.Report.LoanStatementCSV)
			loans.GET("/:loan_id/quote", h.Loan.Quote)
			loans.POST("/:loan_id/advance", h.Loan.Advance)
			loans.POST("/:loan_id/cancel", h.Loan.Cancel)
		}

		v1.GET("/payments/:payment_id", h.Payment.Show)
		v1.GET("/payments/:payment_id/receipt.pdf", h.Report.PaymentReceiptPDF)

		v1.POST("/classifications/run", h.Classification.Run)

		reports := v1.Group("/reports")
		{
			reports.GET("/portfolio", h.Report.Portfolio)
			reports.GET("/arrears.xlsx", h.Report.ArrearsXLSX)
		}

		v1.GET("/jobs/status", h.Job.Status)
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Materialize missed periods and refresh loan statuses
	worker.ScheduleEveryImmediate("advance-loans", cfg.MaintenanceInterval,
		jobs.RetryLinear("advance-loans", cfg.JobMaxAttempts, cfg.JobBackoffStep, func(ctx context.Context) error {
			_, err := svcs.Loan.AdvanceAll(ctx)
			return err
		}))

	// Reclassify clients after loan statuses are current
	worker.ScheduleEvery("classify-clients", cfg.ClassificationInterval,
		jobs.RetryLinear("classify-clients", cfg.JobMaxAttempts, cfg.JobBackoffStep, func(ctx context.Context) error {
			_, err := svcs.Classification.UpdateAll(ctx)
			return err
		}))

	logger.Info("Scheduled recurring jobs",
		"maintenance_interval", cfg.MaintenanceInterval.String(),
		"classification_interval", cfg.ClassificationInterval.String())
}
