package middleware

import (
	"strconv"
	"time"

	"BarLake/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestRecorder receives one observation per request. pkg/metrics.Recorder
// satisfies it.
type RequestRecorder interface {
	RecordHTTPRequest(method, route, status string, seconds float64)
}

// Metrics records request metrics labelled by the route template
// ("/api/fetch/:symbol/:start/:end") to keep cardinality low. 5xx
// responses are logged as errors and slow requests as warnings.
func Metrics(rec RequestRecorder, l *logger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := c.Response().Status
			status := strconv.Itoa(code)
			duration := time.Since(start)

			rec.RecordHTTPRequest(method, route, status, duration.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					logger.String("route", route),
					logger.String("method", method),
					logger.String("status", status),
					logger.Duration("duration_ms", duration),
					logger.Int64("bytes", c.Response().Size),
				)
			case slowThreshold > 0 && duration >= slowThreshold:
				l.Warn("http request slow",
					logger.String("route", route),
					logger.String("method", method),
					logger.String("status", status),
					logger.Duration("duration_ms", duration),
					logger.Int64("bytes", c.Response().Size),
				)
			}
			return nil
		}
	}
}
