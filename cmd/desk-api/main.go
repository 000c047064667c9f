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
	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/handler"
	internalmiddleware "github.com/noah-isme/academic-desk/internal/middleware"
	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/repository"
	"github.com/noah-isme/academic-desk/internal/service"
	"github.com/noah-isme/academic-desk/pkg/cache"
	"github.com/noah-isme/academic-desk/pkg/config"
	"github.com/noah-isme/academic-desk/pkg/database"
	"github.com/noah-isme/academic-desk/pkg/enrollcode"
	"github.com/noah-isme/academic-desk/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-desk/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academic-desk/pkg/middleware/requestid"
)

// @title Academic Desk API
// @version 1.0.0
// @description Enrollment and library reservation desk over remote academic catalogs
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	settings := service.CatalogSettings{
		TTL:           cfg.Catalog.TTL,
		SlowThreshold: cfg.Catalog.SlowThreshold,
		LoadTimeout:   cfg.Catalog.WarmupTimeout,
		Observer:      metrics,
		Logger:        logr,
	}
	var mirror *repository.CatalogMirrorRepository
	if cfg.Catalog.MirrorEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("catalog mirror disabled, redis unreachable", zap.Error(err))
		} else {
			mirror = repository.NewCatalogMirrorRepository(redisClient, cfg.Catalog.MirrorTTL, logr)
			defer mirror.Close() //nolint:errcheck
			settings.Mirror = mirror
		}
	}

	students := service.NewStudentService(
		repository.NewCatalogClient[models.Student](service.CatalogStudents, cfg.Catalog.StudentsURL, cfg.Catalog.HTTPTimeout, nil), settings)
	disciplines := service.NewDisciplineService(
		repository.NewCatalogClient[models.Discipline](service.CatalogDisciplines, cfg.Catalog.DisciplinesURL, cfg.Catalog.HTTPTimeout, nil), settings)
	books := service.NewBookService(
		repository.NewCatalogClient[models.Book](service.CatalogBooks, cfg.Catalog.BooksURL, cfg.Catalog.HTTPTimeout, nil), settings)

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	reservationRepo := repository.NewReservationRepository(db)

	availability := service.NewAvailabilityService(students, disciplines, books, enrollmentRepo, reservationRepo,
		cfg.Booking.MaxEnrollmentsPerStudent, validate, logr)

	var sequence enrollcode.SequenceSource = service.NewStoreSequence(enrollmentRepo)
	if cfg.Booking.SequenceSource == config.SequenceSourceClock {
		sequence = enrollcode.ClockSequence{}
	}
	bookings := service.NewBookingService(availability, disciplines, books, enrollmentRepo, reservationRepo, service.BookingOptions{
		Guarded:  cfg.Booking.GuardedInsert,
		Sequence: sequence,
		Events:   []service.EventSink{service.NewLogEventSink(logr), metrics},
		Metrics:  metrics,
	}, validate, logr)

	warmupOpts := service.WarmupOptions{
		Timeout:    cfg.Catalog.WarmupTimeout,
		Retries:    cfg.Catalog.WarmupRetries,
		RetryDelay: cfg.Catalog.WarmupRetryDelay,
		Logger:     logr,
	}
	if mirror != nil {
		warmupOpts.Mirror = mirror
	}
	warmup := service.NewWarmupService(warmupOpts, students, disciplines, books)
	warmup.Start(ctx)
	defer warmup.Stop()
	go warmup.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Catalog: handler.NewCatalogHandler(students, disciplines, books, availability),
		Booking: handler.NewBookingHandler(bookings),
		Metrics: handler.NewMetricsHandler(metrics, warmup, students, disciplines, books),
		Docs:    cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
