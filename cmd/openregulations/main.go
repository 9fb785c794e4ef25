package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jxucoder/openregulations.ai/internal/config"
	dbRedis "github.com/jxucoder/openregulations.ai/internal/db/redis"
	logpkg "github.com/jxucoder/openregulations.ai/internal/logger"
	"github.com/jxucoder/openregulations.ai/internal/metrics"
	analysisrepo "github.com/jxucoder/openregulations.ai/internal/repository/analysis"
	commentsrepo "github.com/jxucoder/openregulations.ai/internal/repository/comments"
	quotarepo "github.com/jxucoder/openregulations.ai/internal/repository/quota"
	chiTransport "github.com/jxucoder/openregulations.ai/internal/transport/chi"
	openaiTransport "github.com/jxucoder/openregulations.ai/internal/transport/openai"
	chatuc "github.com/jxucoder/openregulations.ai/internal/usecase/chat"
	healthuc "github.com/jxucoder/openregulations.ai/internal/usecase/health"
	quotauc "github.com/jxucoder/openregulations.ai/internal/usecase/quota"
	searchuc "github.com/jxucoder/openregulations.ai/internal/usecase/search"
	"github.com/jxucoder/openregulations.ai/internal/version"
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

	logger.Info("Starting openregulations chat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterLLMMetrics()

	llmTimeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second
	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Embedding.Model,
		Dimensions: cfg.LLM.Embedding.Dimensions,
		Timeout:    llmTimeout,
		Logger:     logger,
	})
	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Completion.Model,
		MaxTokens: cfg.LLM.Completion.MaxTokens,
		Timeout:   llmTimeout,
		Logger:    logger,
	})
	logger.Info("LLM providers created",
		zap.String("embedding_model", cfg.LLM.Embedding.Model),
		zap.Int("dimensions", cfg.LLM.Embedding.Dimensions),
		zap.String("completion_model", cfg.LLM.Completion.Model),
	)

	// Repositories
	comments := commentsrepo.New(store, cfg.Storage.KeyPrefix)
	analysis := analysisrepo.New(store, cfg.Storage.KeyPrefix)
	counters := quotarepo.New(store, cfg.Storage.KeyPrefix)

	// Use case services
	quotaSvc := quotauc.New(
		counters,
		cfg.Quota.DailyLimit,
		time.Duration(cfg.Quota.WindowHours)*time.Hour,
		logger,
	)
	searchSvc := searchuc.New(comments, embedder)
	chatSvc := chatuc.New(quotaSvc, embedder, searchSvc, analysis, completer, logger)
	healthSvc := healthuc.New(store, completerHealthChecker{embedder})

	server := chiTransport.NewServer(chatSvc, searchSvc, quotaSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	logger.Info("Server stopped gracefully")
}

// completerHealthChecker adapts the embedding provider's ListModels probe
// to the health service contract. One probe covers both LLM providers:
// they share a base URL and key.
type completerHealthChecker struct {
	embedder *openaiTransport.Embedder
}

func (h completerHealthChecker) HealthCheck(ctx context.Context) error {
	if err := h.embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("llm health check: %w", err)
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
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
