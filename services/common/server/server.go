// Package server holds the HTTP and observability bootstrap shared by every service main.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/services/common/logger"
	"github.com/shopswift/commerce-backend/services/common/middleware"
)

// Options configures the common middleware stack.
type Options struct {
	ServiceName    string
	RateLimitRPM   int
	CORSOrigins    string
	RequestTimeout time.Duration
}

// Observability builds the logger (optionally shipping to CloudWatch Logs) and the metrics
// recorder. CloudWatch failures are not fatal; the service falls back to local logging.
func Observability(ctx context.Context, env, serviceName string, cwEnabled bool, namespace, logGroup string, settings awspkg.Settings) (*zap.Logger, awspkg.Recorder) {
	if !cwEnabled {
		return logger.Initialize(env), awspkg.NopRecorder{}
	}

	awsCfg, err := awspkg.LoadAWSConfig(ctx, settings)
	if err != nil {
		log := logger.Initialize(env)
		log.Warn("CloudWatch disabled: aws config failed", zap.Error(err))
		return log, awspkg.NopRecorder{}
	}

	cwLogs, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, logGroup, serviceName, true)
	var log *zap.Logger
	if err != nil {
		log = logger.Initialize(env)
		log.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(err))
	} else {
		log = logger.InitializeWithWriter(env, cwLogs)
	}
	return log, awspkg.NewMetricsClient(ctx, awsCfg, namespace)
}

// NewRouter returns a gin engine with recovery, request ids, logging, metrics, security
// headers, CORS, rate limiting, a per-request timeout and /health.
func NewRouter(log *zap.Logger, metrics awspkg.Recorder, opts Options) *gin.Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.MetricsMiddleware(metrics, opts.ServiceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(middleware.RateLimitMiddleware(opts.RateLimitRPM, max(opts.RateLimitRPM/10, 1)))
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": opts.ServiceName})
	})
	return r
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("Server shutdown complete.")
	return nil
}
