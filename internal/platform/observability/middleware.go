package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/platform/requestctx"
)

func ensureHandler(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return next
}

// InjectLoggerMiddleware stores the provided logger on the request context to make it accessible downstream.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		next = ensureHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLoggerMiddleware logs request start and completion with structured fields suitable for Cloud Logging.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		next = ensureHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := routePattern(r)
			logger := requestFields(ctx, r, route)

			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			recorder := newStatusRecorder(w)
			start := time.Now()
			logger.Info("request started")

			var panicked bool
			defer func() {
				status := recorder.Status()
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				annotateSpan(ctx, status, route)
				logCompletion(logger, status, time.Since(start), recorder.BytesWritten(), panicked)
			}()

			defer func() {
				if rec := recover(); rec != nil {
					panicked = true
					panic(rec)
				}
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// requestFields builds the per-request logger carrying the correlation fields
// every line for this request should share.
func requestFields(ctx context.Context, r *http.Request, route string) *zap.Logger {
	traceInfo, _ := requestctx.Trace(ctx)
	logger := WithRequestFields(requestctx.Logger(ctx),
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("route", SanitizeRoute(route)),
		zap.String("trace_id", traceInfo.TraceID),
		zap.String("user_id", sanitizedUserID(ctx)),
	)
	if traceResource := loggingTraceResource(traceInfo); traceResource != "" {
		logger = logger.With(zap.String("logging.googleapis.com/trace", traceResource))
	}
	if ip := realIP(r); ip != "" {
		logger = logger.With(zap.String("remote_ip", ip))
	}
	return logger
}

func annotateSpan(ctx context.Context, status int, route string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	attrs := []attribute.KeyValue{semconv.HTTPResponseStatusCode(status)}
	if route != "" {
		attrs = append(attrs, semconv.HTTPRoute(SanitizeRoute(route)))
	}
	span.SetAttributes(attrs...)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, http.StatusText(status))
	}
}

func logCompletion(logger *zap.Logger, status int, latency time.Duration, bytes int64, panicked bool) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.Int64("bytes", bytes),
	}
	switch {
	case panicked || status >= http.StatusInternalServerError:
		logger.Error("request completed", fields...)
	case status >= http.StatusBadRequest:
		logger.Warn("request completed", fields...)
	default:
		logger.Info("request completed", fields...)
	}
}

// RecoveryMiddleware captures panics, logs the stack trace, and returns a JSON error response.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		next = ensureHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					ctx := r.Context()
					panicLogger(ctx, fallback).Error("panic recovered",
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()),
					)
					httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func panicLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := requestctx.Logger(ctx)
	if logger != nil && logger != requestctx.NoopLogger() {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return requestctx.NoopLogger()
}

func sanitizedUserID(ctx context.Context) string {
	return SanitizeUserID(requestctx.UserID(ctx))
}

func routePattern(r *http.Request) string {
	if r == nil {
		return "/"
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

func realIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

func loggingTraceResource(info requestctx.TraceInfo) string {
	if info.ProjectID == "" || info.TraceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", info.ProjectID, info.TraceID)
}

// statusRecorder tracks the status code and byte count written by downstream
// handlers so completion logs can report them.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(status int) {
	if status < 100 {
		status = http.StatusOK
	}
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) BytesWritten() int64 {
	return r.bytes
}
