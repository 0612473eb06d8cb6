package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presensi/internal/apiclient"
	"presensi/internal/attendance"
	"presensi/internal/config"
	"presensi/internal/httpapi"
	"presensi/internal/httpmiddleware"
	"presensi/internal/meeting"
	"presensi/internal/queue"
	"presensi/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	tokens := store.NewRedisTokens(redisClient.Client, "")
	client := apiclient.New(cfg.UpstreamURL, cfg.UpstreamTimeout, tokens, logger)
	remote := func(key string) attendance.Source { return client.As(key) }

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if cfg.Source == config.SourceMirror {
			return err
		}
		logger.Warn("mirror db not reachable, sync disabled", slog.Any("error", err))
		_ = db.Close()
		db = nil
	} else {
		defer db.Close()
	}

	read := remote
	var repo *attendance.Repository
	if db != nil {
		repo = attendance.NewRepository(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		if cfg.Source == config.SourceMirror {
			read = func(string) attendance.Source { return repo }
		}
	}
	meeting.SetTimestampLocation(cfg.Location())
	svc := attendance.NewService(read, cfg.Location(), logger)
	if repo != nil {
		svc.WithMirror(remote, repo)
	}

	// Sync jobs only make sense with a mirror to write into. Without one the
	// handler answers 503 instead of queueing work nobody runs.
	var q queue.Queue
	switch {
	case repo == nil:
		logger.Warn("sync disabled, no mirror database")
	case cfg.QueueBackend == "memory":
		mem := queue.NewInMemory(64)
		q = mem
		go func() {
			if err := svc.RunSync(ctx, mem, cfg.WorkerConcurrency); err != nil {
				logger.Error("in-process sync stopped", slog.Any("error", err))
			}
		}()
	default:
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(browserMiddleware(gin.Mode() == gin.ReleaseMode)...)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		body := gin.H{"status": "ok", "redis": redisHealthy, "source": cfg.Source}
		if db != nil {
			dbHealthy := db.Healthy(c.Request.Context())
			body["db"] = dbHealthy
			if !dbHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h := &httpapi.Handler{
		Service:    svc,
		Client:     client,
		Tokens:     tokens,
		Queue:      q,
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		SessionTTL: cfg.AccessTTL,
		Log:        logger,
	}
	h.Register(r, limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr), slog.String("source", cfg.Source))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", slog.Any("error", err))
	}
	logger.Info("server exited")
	return nil
}

// browserMiddleware answers CORS preflights and sets the response headers
// browser clients rely on. Export downloads need Content-Disposition exposed.
func browserMiddleware(hsts bool) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:   []string{"Content-Disposition", "Retry-After"},
			MaxAge:          24 * time.Hour,
		}),
		noSniff(hsts),
	}
}

// noSniff stops browsers from guessing the type of exported files and from
// framing the API. hsts adds Strict-Transport-Security.
func noSniff(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		if hsts {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}
		c.Next()
	}
}
