package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"beaconattend/internal/attendance"
	"beaconattend/internal/auth"
	"beaconattend/internal/config"
	"beaconattend/internal/geo"
	"beaconattend/internal/handler"
	"beaconattend/internal/httpmiddleware"
	"beaconattend/internal/logger"
	"beaconattend/internal/metrics"
	"beaconattend/internal/ocr"
	"beaconattend/internal/photostore"
	"beaconattend/internal/queue"
	"beaconattend/internal/scheduler"
	"beaconattend/internal/store"
	"beaconattend/internal/timetable"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	redisUp := redisClient.Healthy(ctx)
	if !redisUp {
		log.Warn("redis not reachable, state will not survive a restart", zap.String("addr", cfg.Redis.Addr))
	}

	mem := store.NewMemory()
	var snapshots *store.Snapshotter
	if redisUp {
		snapshots = store.NewSnapshotter(mem, redisClient.Client, cfg.Redis.SnapshotKey, log.Named("snapshot"))
		if err := snapshots.Load(ctx); err != nil {
			log.Error("snapshot restore failed, starting empty", zap.Error(err))
		}
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" || !redisUp {
		mq := queue.NewInMemory(256)
		go drainEvents(ctx, mq, log.Named("events"))
		q = mq
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}
	events := queue.NewEmitter(q, log.Named("events"))

	m := metrics.New()

	parser := ocr.New(cfg.OCR.BaseURL, cfg.OCR.Model, cfg.OCR.APIKey)
	if parser.Mock() {
		log.Info("GEMINI_API_KEY not set, timetable OCR returns the sample timetable")
	}

	var uploader photostore.Uploader
	if cfg.Cloudinary.Enabled() {
		uploader = photostore.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		log.Info("cloudinary configured", zap.String("cloud", cfg.Cloudinary.CloudName))
	} else {
		log.Info("cloudinary not configured, photos are kept inline")
	}
	photos := photostore.New(uploader, cfg.Cloudinary.Folder, log.Named("photos"))

	band := geo.Band{Min: cfg.Attendance.ProximityMinMeters, Max: cfg.Attendance.ProximityMaxMeters}
	if err := band.Validate(); err != nil {
		return err
	}

	timetables := timetable.NewService(mem, parser, log.Named("timetable"), cfg.Timezone)
	att := attendance.NewService(mem, photos, m, log.Named("attendance"), attendance.Options{
		Band:         band,
		MaxBeaconAge: cfg.Attendance.BeaconMaxAge,
		Location:     cfg.Timezone,
	})

	sched := scheduler.New(scheduler.Config{
		AutoActivateInterval: cfg.Scheduler.AutoActivateInterval,
		SnapshotInterval:     cfg.Scheduler.SnapshotInterval,
		Location:             cfg.Timezone,
	}, timetables, saver(snapshots), events, m, log.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}

	dir := auth.NewDirectory(cfg.Access.MentorEmails, cfg.Access.TeacherEmails, cfg.Access.StaffDomain, cfg.Access.StudentDomain)
	h := handler.New(dir, timetables, att, mem, events, log.Named("http"), handler.Options{
		JWT:               cfg.JWT,
		LocationFixMaxAge: cfg.Attendance.LocationFixMaxAge,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestIDMiddleware())
	r.Use(logger.GinMiddleware(log, "/healthz", "/metrics"))
	r.Use(m.GinMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if redisUp && !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "redis": redisHealthy, "ocrMock": parser.Mock(), "photosRemote": photos.Remote()})
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h.Register(r, limiter.GinMiddleware(auth.UserKey))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
	if snapshots != nil {
		if err := snapshots.Save(shutdownCtx, true); err != nil {
			log.Error("final snapshot failed", zap.Error(err))
		}
	}
	log.Info("server exited")
	return nil
}

// saver avoids handing the scheduler a typed nil.
func saver(s *store.Snapshotter) scheduler.Saver {
	if s == nil {
		return nil
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}


// drainEvents keeps the in-process queue moving when no worker can reach it.
// Events are only logged.
func drainEvents(ctx context.Context, q queue.Queue, log *zap.Logger) {
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Error("event drain failed", zap.Error(err))
		return
	}
	for msg := range messages {
		log.Debug("event", zap.String("type", msg.Type), zap.ByteString("body", msg.Body))
	}
}
