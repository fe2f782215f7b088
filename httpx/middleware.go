package httpx

import (
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AuthMiddleware runs a net/http guard in front of an echo handler. The guard
// writes its own rejection; errors from next reach the echo error handler.
func AuthMiddleware(guard func(http.Handler) http.Handler) MiddlewareFunc {
	if guard == nil {
		return func(HandlerFunc) HandlerFunc {
			return func(Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			guard(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

func RecoverMiddleware() MiddlewareFunc { return middleware.Recover() }

// RequestIDMiddleware stamps every request with a UUIDv4 X-Request-ID unless
// the caller already sent one.
func RequestIDMiddleware() MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			id, err := uuid.NewV4()
			if err != nil {
				return ""
			}
			return id.String()
		},
	})
}

// RequestLoggerMiddleware logs each request through zap: Info for success,
// Warn for 4xx and Error for 5xx.
func RequestLoggerMiddleware(log *zap.Logger) MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				log.Error("request", fields...)
			case v.Status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		},
	})
}

// SecureHeadersMiddleware sets nosniff, frame denial, XSS protection, HSTS and a
// restrictive CSP.
func SecureHeadersMiddleware() MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "no-referrer",
	})
}

// RateLimit allows Requests per Window for each client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// DefaultRateLimit is 100 requests per 15 minutes.
var DefaultRateLimit = RateLimit{Requests: 100, Window: 15 * time.Minute}

// RateLimitMiddleware enforces limit per client IP with a token bucket whose
// burst equals the request budget.
func RateLimitMiddleware(limit RateLimit) MiddlewareFunc {
	if limit.Requests <= 0 || limit.Window <= 0 {
		limit = DefaultRateLimit
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Every(limit.Window / time.Duration(limit.Requests)),
		Burst:     limit.Requests,
		ExpiresIn: limit.Window,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return HTTPError(StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return HTTPError(StatusTooManyRequests, "too many requests, try again later")
		},
	})
}

// CORSMiddleware builds a CORS middleware from cfg; nil uses echo's defaults.
func CORSMiddleware(cfg *middleware.CORSConfig) MiddlewareFunc {
	if cfg == nil {
		return middleware.CORSWithConfig(middleware.DefaultCORSConfig)
	}
	return middleware.CORSWithConfig(*cfg)
}

// BodyLimitMiddleware rejects request bodies larger than limit, e.g. "1M".
func BodyLimitMiddleware(limit string) MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
