package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokensmith/internal/cache"
	"github.com/dropDatabas3/tokensmith/internal/observability/logger"
	"github.com/dropDatabas3/tokensmith/internal/observability/metrics"
)

// Middleware envuelve un handler; Chain aplica en orden (el primero es el más externo).
type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ─────────────── Request ID ───────────────
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		// logger scoped al request, para que From(ctx) ya traiga el id
		ctx := logger.ToContext(r.Context(), logger.L().With(zap.String("request_id", rid)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ─────────────── Recover de pánicos ───────────────
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.From(r.Context()).Error("panic", zap.Any("recover", rec))
				WriteError(w, http.StatusInternalServerError, "internal_error", "panic recover")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Logging ───────────────
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur.Seconds())

		logger.From(r.Context()).Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Int64("duration_ms", dur.Milliseconds()),
		)
	})
}

// ─────────────── Rate Limit ───────────────
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateConfig: ventana fija por ip|path sobre cache.Client.
type RateConfig struct {
	Window      time.Duration
	MaxRequests int
}

func WithRateLimit(client cache.Client, cfg RateConfig) Middleware {
	return func(next http.Handler) http.Handler {
		if client == nil || cfg.MaxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// whitelist: no contar /healthz ni /metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key := "rl:" + clientIP(r) + "|" + r.URL.Path
			n, err := client.Incr(r.Context(), key, cfg.Window)
			if err != nil {
				// backend caído: dejamos pasar
				logger.From(r.Context()).Warn("rate_limit_error", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			remaining := int64(cfg.MaxRequests) - n
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if n > int64(cfg.MaxRequests) {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiadas solicitudes")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
