package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aabhi25/chronalive-v0.9-sub003/api/swagger"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/handler"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/middleware"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/repository"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/cache"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/config"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/database"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/lock"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/logger"
	corsmiddleware "github.com/aabhi25/chronalive-v0.9-sub003/pkg/middleware/cors"
	reqidmiddleware "github.com/aabhi25/chronalive-v0.9-sub003/pkg/middleware/requestid"
)

// @title Chronalive Timetable API
// @version 0.9.0
// @description Schedule resolution, weekly overrides and substitution management
// @BasePath /api/v1
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
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var locker lock.Locker = lock.NewLocalLocker()
	var cacheRepo *repository.CacheRepository

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, using in-process locks and no cache", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		locker = lock.NewRedisLocker(redisClient, lock.Config{
			TTL:        cfg.Locks.TTL,
			RetryDelay: cfg.Locks.RetryDelay,
			MaxRetries: cfg.Locks.MaxRetries,
		})
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	structureRepo := repository.NewStructureRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	weeklyRepo := repository.NewWeeklyOverrideRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	substitutionRepo := repository.NewSubstitutionRepository(db)
	changeRepo := repository.NewChangeRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Services.
	policy := service.NewAuthorizationPolicy()
	metricsSvc := service.NewMetricsService()
	cacheEnabled := cfg.Resolver.CacheEnabled && cacheRepo != nil
	var cacheSvc *service.CacheService
	if cacheRepo != nil {
		cacheSvc = service.NewCacheService(cacheRepo, cfg.Resolver.CacheTTL, cacheEnabled, logr)
	}

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, policy, nil, logr)
	structureSvc := service.NewStructureService(structureRepo, policy, cacheSvc, userRepo, nil, logr)
	freezeSvc := service.NewFreezeService(settingsRepo, policy, userRepo, logr)
	resolverSvc := service.NewResolverService(
		structureRepo, timetableRepo, weeklyRepo, attendanceRepo,
		changeRepo, substitutionRepo, cacheSvc, metricsSvc, logr,
	)
	candidateSvc := service.NewCandidateService(
		teacherRepo, attendanceRepo, timetableRepo, weeklyRepo,
		substitutionRepo, changeRepo, structureRepo, logr,
	)
	attendanceSvc := service.NewAttendanceService(
		attendanceRepo, timetableRepo, weeklyRepo, substitutionRepo,
		locker, cacheSvc, userRepo, nil, logr,
	)
	assignmentSvc := service.NewAssignmentService(
		weeklyRepo, timetableRepo, changeRepo, structureRepo,
		resolverSvc, candidateSvc, freezeSvc, policy,
		locker, cacheSvc, userRepo, nil, logr,
	)
	substitutionSvc := service.NewSubstitutionService(
		substitutionRepo, timetableRepo, resolverSvc, candidateSvc,
		policy, locker, cacheSvc, userRepo, nil, logr,
	)
	changeSvc := service.NewChangeService(
		changeRepo, timetableRepo, weeklyRepo, candidateSvc, policy,
		locker, cacheSvc, metricsSvc, userRepo, nil, logr,
	)
	generatorSvc := service.NewGeneratorService(
		structureRepo, teacherRepo, timetableRepo, db,
		freezeSvc, policy, cacheSvc, metricsSvc, userRepo, nil, logr,
		service.GeneratorConfig{ProposalTTL: cfg.Generator.ProposalTTL},
	)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	structureHandler := handler.NewStructureHandler(structureSvc)
	freezeHandler := handler.NewFreezeHandler(freezeSvc)
	scheduleHandler := handler.NewScheduleHandler(resolverSvc, assignmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	candidateHandler := handler.NewCandidateHandler(candidateSvc)
	substitutionHandler := handler.NewSubstitutionHandler(substitutionSvc)
	changeHandler := handler.NewChangeHandler(changeSvc)
	generatorHandler := handler.NewGeneratorHandler(generatorSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/structure", structureHandler.Get)
	authed.GET("/freeze-status", freezeHandler.Get)
	authed.GET("/teachers", teacherHandler.List)
	authed.GET("/teachers/:id", teacherHandler.Get)
	authed.GET("/classes/:id/effective-schedule", scheduleHandler.Effective)
	authed.GET("/attendance", attendanceHandler.ListDay)
	authed.GET("/substitutions/candidates", candidateHandler.Find)
	authed.GET("/changes", changeHandler.List)

	authed.POST("/attendance", attendanceHandler.Mark)
	authed.POST("/timetable/assign", scheduleHandler.Assign)
	authed.DELETE("/timetable/slot", scheduleHandler.Delete)
	authed.POST("/substitutions", substitutionHandler.Assign)
	authed.POST("/changes", changeHandler.Propose)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))

	admin.PUT("/structure", structureHandler.Update)
	admin.PUT("/freeze-status", freezeHandler.Set)
	admin.POST("/teachers", teacherHandler.Create)
	admin.PUT("/teachers/:id", teacherHandler.Update)
	admin.POST("/classes/:id/set-as-global", scheduleHandler.SetAsGlobal)
	admin.POST("/classes/:id/copy-from-global", scheduleHandler.CopyFromGlobal)
	admin.POST("/substitutions/:id/confirm", substitutionHandler.Confirm)
	admin.POST("/substitutions/:id/reject", substitutionHandler.Reject)
	admin.POST("/changes/:id/approve", changeHandler.Approve)
	admin.POST("/changes/:id/reject", changeHandler.Reject)
	if cfg.Generator.Enabled {
		admin.POST("/timetable/generate", generatorHandler.Generate)
		admin.POST("/timetable/generate/:id/commit", generatorHandler.Commit)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}
}
