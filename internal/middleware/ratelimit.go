package middleware

import (
	"BarLake/internal/service/ratelimit"
	xhttp "BarLake/pkg/http"

	"github.com/labstack/echo/v4"
)

// RateLimit throttles requests per client IP with a token bucket.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.TooManyRequestsResponse(c)
			}
			return next(c)
		}
	}
}
