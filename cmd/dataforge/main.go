package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/config"
	dbMinio "github.com/kailas-cloud/dataforge/internal/db/minio"
	dbMongo "github.com/kailas-cloud/dataforge/internal/db/mongo"
	dbRedis "github.com/kailas-cloud/dataforge/internal/db/redis"
	"github.com/kailas-cloud/dataforge/internal/events"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
	"github.com/kailas-cloud/dataforge/internal/metrics"
	"github.com/kailas-cloud/dataforge/internal/ratelimit"
	documentrepo "github.com/kailas-cloud/dataforge/internal/repository/document"
	filerepo "github.com/kailas-cloud/dataforge/internal/repository/file"
	historyrepo "github.com/kailas-cloud/dataforge/internal/repository/history"
	"github.com/kailas-cloud/dataforge/internal/repository/jobstate"
	modelrepo "github.com/kailas-cloud/dataforge/internal/repository/model"
	"github.com/kailas-cloud/dataforge/internal/repository/modelcache"
	amqpTransport "github.com/kailas-cloud/dataforge/internal/transport/amqp"
	chiTransport "github.com/kailas-cloud/dataforge/internal/transport/chi"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
	filesuc "github.com/kailas-cloud/dataforge/internal/usecase/files"
	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
	historyuc "github.com/kailas-cloud/dataforge/internal/usecase/history"
	"github.com/kailas-cloud/dataforge/internal/usecase/importer"
	modeluc "github.com/kailas-cloud/dataforge/internal/usecase/model"
	"github.com/kailas-cloud/dataforge/internal/usecase/pipeline"
	"github.com/kailas-cloud/dataforge/internal/usecase/schedule"
	searchuc "github.com/kailas-cloud/dataforge/internal/usecase/search"
	usageuc "github.com/kailas-cloud/dataforge/internal/usecase/usage"
	"github.com/kailas-cloud/dataforge/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dataforge API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_name", cfg.Database.Name),
		zap.Bool("redis", cfg.Redis.Enabled()),
	)

	ctx := context.Background()
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

	store, err := dbMongo.NewStore(ctx, dbMongo.Config{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Name,
		ConnectTimeout: readiness,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Optional infrastructure. Every unconfigured piece stays a nil interface,
	// never a typed nil pointer.
	var kv *dbRedis.Store
	if cfg.Redis.Enabled() {
		kv, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Redis.Addrs,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer kv.Close()
		if err := kv.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis")
	}

	var objects filesuc.ObjectRemover
	var objectsHealth healthuc.Pinger
	if cfg.Files.Endpoint != "" {
		fs, err := dbMinio.NewStore(ctx, dbMinio.Config{
			Endpoint:  cfg.Files.Endpoint,
			AccessKey: cfg.Files.AccessKey,
			SecretKey: cfg.Files.SecretKey,
			Bucket:    cfg.Files.Bucket,
			Region:    cfg.Files.Region,
			UseSSL:    cfg.Files.UseSSL,
		})
		if err != nil {
			logger.Fatal("Failed to create object store", zap.Error(err))
		}
		objects, objectsHealth = fs, fs
		logger.Info("Object storage enabled", zap.String("bucket", cfg.Files.Bucket))
	}

	var broker *amqpTransport.Publisher
	if cfg.Events.AMQPURL != "" {
		broker, err = amqpTransport.Dial(amqpTransport.Config{
			URL:      cfg.Events.AMQPURL,
			Exchange: cfg.Events.Exchange,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to broker", zap.Error(err))
		}
		defer func() { _ = broker.Close() }()
		logger.Info("Event forwarding enabled", zap.String("exchange", cfg.Events.Exchange))
	}

	// Register data metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterDataMetrics()

	bus := events.New(logger)
	events.RegisterData(bus)

	limits := cfg.Limits.Domain()

	// Repositories
	docRepo := documentrepo.New(store)
	models := modelcache.New(
		modelrepo.New(store, logger),
		time.Duration(cfg.Limits.SchemaCacheTTLSec)*time.Second,
		metrics.SchemaCacheTotal,
		logger,
	)
	builder := pipeline.New(models, limits, logger).
		WithMetrics(metrics.PipelineStages, metrics.RelationSkipsTotal)

	var jobs importer.JobStore = jobstate.NewMemory()
	if cfg.Import.JobStore == config.JobStoreRedis {
		jobs = jobstate.NewShared(kv, time.Duration(cfg.Import.JobTTLSec)*time.Second)
	}

	// Use case services
	usageSvc := usageuc.New(docRepo, models, limits)
	docSvc := documentuc.New(docRepo, models, limits, logger).
		WithCapacity(usageSvc).
		WithEvents(bus)
	modelSvc := modeluc.New(models, docRepo, logger).WithEvents(bus)
	searchSvc := searchuc.New(docRepo, builder, limits.SearchTimeoutFloor, logger).
		WithMetrics(metrics.SearchDuration)
	exportSvc := exportuc.New(docRepo, builder, models, cfg.Export.MaxDocuments, logger)
	importSvc := importer.New(docSvc, modelSvc, jobs, logger).
		WithChunking(cfg.Import.ChunkSize, cfg.Import.ChunkDelay()).
		WithMetrics(metrics.ImportChunksTotal)
	historySvc := historyuc.New(historyrepo.New(store), logger)

	// Event listeners
	var scheduler schedule.Scheduler = schedule.NewLogScheduler(logger)
	if broker != nil {
		scheduler = amqpTransport.NewScheduler(broker)
	}
	listeners := []interface{ Register(*events.Bus) error }{
		historySvc,
		schedule.NewBridge(scheduler, logger),
		filesuc.NewCleaner(filerepo.New(store), objects, logger),
	}
	if broker != nil {
		listeners = append(listeners, amqpTransport.NewForwarder(broker))
	}
	for _, l := range listeners {
		if err := l.Register(bus); err != nil {
			logger.Fatal("Failed to register event listener", zap.Error(err))
		}
	}

	healthSvc := healthuc.New(store).WithDependency("files", objectsHealth)
	if kv != nil {
		healthSvc.WithDependency("redis", kv)
	}
	if broker != nil {
		healthSvc.WithDependency("events", broker)
	}

	server := chiTransport.NewServer(chiTransport.Services{
		Models:    modelSvc,
		Documents: docSvc,
		Search:    searchSvc,
		Imports:   importSvc,
		Exports:   exportSvc,
		History:   historySvc,
		Usage:     usageSvc,
		Health:    healthSvc,
	}, logger).
		WithAuth(chiTransport.AuthConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			DevUser:  cfg.Auth.DevUser,
		}).
		WithBodyLimits(cfg.Limits.MaxRequestBytes, cfg.Import.MaxFileBytes)
	if kv != nil && cfg.RateLimit.Requests > 0 {
		server.WithRateLimit(ratelimit.New(
			kv, cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSec)*time.Second, logger,
		))
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Running imports finish their current chunk against a live store.
	done := make(chan struct{})
	go func() {
		importSvc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Imports still running at shutdown deadline")
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Error: "internal error",
						Code:  chiTransport.CodeInternalError,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request. Handlers may have annotated
			// the scope with user and model.
			logpkg.FromContext(ctx).Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
