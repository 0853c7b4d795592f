package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the global logger instance
	Log = zap.NewNop()
)

// RequestIDKey is the key used to store request ID in context
const RequestIDKey = "request_id"

type ctxKey struct{}

// Initialize sets up the logger with the specified environment
func Initialize(env string) *zap.Logger {
	return InitializeWithWriter(env, nil)
}

// InitializeWithWriter sets up the logger with the specified environment and an optional extra
// sink (CloudWatch Logs in deployed environments). The result is also installed as the zap
// global so packages using zap.L() share it.
func InitializeWithWriter(env string, sink io.Writer) *zap.Logger {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if sink != nil {
		level := zap.NewAtomicLevelAt(config.Level.Level())
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(config.EncoderConfig), zapcore.AddSync(os.Stdout), level)

		jsonConfig := config.EncoderConfig
		jsonConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		sinkCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), zapcore.AddSync(sink), level)

		Log = zap.New(zapcore.NewTee(consoleCore, sinkCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		l, err := config.Build()
		if err != nil {
			fmt.Printf("Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		Log = l
	}

	zap.ReplaceGlobals(Log)
	return Log
}

// RequestID tags every request with an id, reusing X-Request-ID when the caller sent one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), requestID))
		c.Next()
	}
}

// FromContext returns a logger annotated with the request id carried by ctx, if any.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Log
	}
	if id := RequestIDFrom(ctx); id != "" {
		return base.With(zap.String(RequestIDKey, id))
	}
	return base
}

// RequestIDFrom extracts the request id from a plain or gin context.
func RequestIDFrom(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.GetString(RequestIDKey)
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext creates a new context with the given request ID
func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}
