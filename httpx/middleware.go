package httpx

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func RecoverMiddleware() MiddlewareFunc { return middleware.Recover() }

// RequestLogger logs one line per request through logger.
func RequestLogger(logger *zap.Logger) MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

// TokenMiddleware rejects requests whose bearer token differs from token.
// An empty token disables the check.
func TokenMiddleware(token string) MiddlewareFunc {
	want := []byte(token)
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			if len(want) == 0 {
				return next(c)
			}
			got, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				return HTTPError(StatusUnauthorized, "invalid or missing token")
			}
			return next(c)
		}
	}
}
