package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/api/swagger"
	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
	"github.com/noah-isme/sma-gradebook-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-gradebook-api/pkg/storage"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

// @title SMA Gradebook API
// @version 1.0.0
// @description Role based gradebook: rosters, weighted quarterly grades, dashboards and grade sheet exports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	validate := validation.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr, repository.WithCacheNamespace(cfg.Redis.KeyPrefix))
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Grades.CacheTTL, logr, cfg.Grades.CacheEnabled && cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradebookRepo := repository.NewGradebookRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	subjectGradeRepo := repository.NewSubjectGradeRepository(db)
	reportRepo := repository.NewReportRepository(db)

	notifications := service.NewNotificationService(mailer.New(cfg.Mail, logr), metrics, logr)
	access := service.NewAccessService(classRepo, logr)

	authSvc := service.NewAuthService(userRepo, notifications, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sma-gradebook-api",
	})

	gradeSvc := service.NewGradeService(service.GradeServiceParams{
		Gradebooks:    gradebookRepo,
		Tasks:         taskRepo,
		Scores:        scoreRepo,
		Enrollments:   enrollmentRepo,
		ClassSubjects: classRepo,
		Users:         userRepo,
		SubjectGrades: subjectGradeRepo,
		Access:        access,
		Cache:         cacheSvc,
		Metrics:       metrics,
		Config:        service.GradeServiceConfig{CacheTTL: cfg.Grades.CacheTTL},
		Logger:        logr,
	})

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Registrations: registrationRepo,
		Users:         userRepo,
		Gradebooks:    gradebookRepo,
		Classes:       classRepo,
		Enrollments:   enrollmentRepo,
		Grades:        gradeSvc,
		Cache:         cacheSvc,
		Metrics:       metrics,
		Config:        service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
		Logger:        logr,
	})

	registrationSvc := service.NewRegistrationService(service.RegistrationServiceParams{
		Repo:       registrationRepo,
		Users:      userRepo,
		Notifier:   notifications,
		Dashboards: dashboardSvc,
		Validator:  validate,
		Logger:     logr,
		Enabled:    cfg.Registration.Enabled,
	})

	userSvc := service.NewUserService(userRepo, dashboardSvc, validate, logr)
	rosterSvc := service.NewRosterService(enrollmentRepo, classRepo, userRepo, gradeSvc, validate, logr)

	gradebookSvc := service.NewGradebookService(service.GradebookServiceParams{
		Gradebooks:    gradebookRepo,
		Tasks:         taskRepo,
		Scores:        scoreRepo,
		Enrollments:   enrollmentRepo,
		ClassSubjects: classRepo,
		Grades:        gradeSvc,
		Access:        access,
		Validator:     validate,
		Config: service.GradebookServiceConfig{
			QuartersPerTerm: cfg.Grades.QuartersPerTerm,
			PassingGrade:    cfg.Grades.PassingGrade,
		},
		Logger: logr,
	})

	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Registrations: handler.NewRegistrationHandler(registrationSvc),
		Roster:        handler.NewRosterHandler(rosterSvc, access),
		Gradebooks:    handler.NewGradebookHandler(gradebookSvc),
		Grades:        handler.NewGradeHandler(gradeSvc),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
	}

	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportSvc, queue, err := setupReports(ctx, cfg, reportRepo, gradebookRepo, enrollmentRepo, gradeSvc, access, metrics, validate, logr)
		if err != nil {
			logr.Fatal("failed to set up reports", zap.Error(err))
		}
		reportQueue = queue
		handlers.Reports = handler.NewReportHandler(reportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposedHeaders: []string{reqidmiddleware.Header, middleware.CacheHeader, "Content-Disposition"},
	}))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	ops := handler.NewOpsHandler(metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		swagger.SwaggerInfo.BasePath = cfg.APIPrefix
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, handler.RouteDeps{
		Tokens:              authSvc,
		Audit:               userRepo,
		Logger:              logr,
		RegistrationEnabled: cfg.Registration.Enabled,
		ReportsEnabled:      cfg.Reports.Enabled,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func setupReports(
	ctx context.Context,
	cfg *config.Config,
	reportRepo *repository.ReportRepository,
	gradebookRepo *repository.GradebookRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	gradeSvc *service.GradeService,
	access *service.AccessService,
	metrics *service.MetricsService,
	validate *validator.Validate,
	logr *zap.Logger,
) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	secret := cfg.Reports.SignedURLSecret
	if secret == "" {
		secret = cfg.JWT.Secret
	}

	exportSvc := service.NewExportService(service.ExportServiceParams{
		Gradebooks: gradebookRepo,
		Grades:     gradeSvc,
		Storage:    store,
		Signer:     storage.NewSignedURLSigner(secret, cfg.Reports.SignedURLTTL),
		Config: service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		},
		Logger: logr,
	})

	worker := service.NewReportWorker(reportRepo, exportSvc, metrics, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:       cfg.Reports.WorkerConcurrency,
		MaxRetries:    cfg.Reports.WorkerRetries,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: time.Minute,
		JobTimeout:    2 * time.Minute,
		OnGiveUp:      worker.GiveUp,
		Logger:        logr,
	})
	queue.Start(ctx)

	reportSvc := service.NewReportService(service.ReportServiceParams{
		Repo:        reportRepo,
		Gradebooks:  gradebookRepo,
		Enrollments: enrollmentRepo,
		Access:      access,
		Queue:       queue,
		Exporter:    exportSvc,
		Metrics:     metrics,
		Validator:   validate,
		Config: service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		},
		Logger: logr,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)

	return reportSvc, queue, nil
}
