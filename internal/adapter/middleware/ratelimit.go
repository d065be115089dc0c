package middleware

import (
	"net/http"
	"strconv"

	"halonet-payments/internal/infrastructure/logging"

	"github.com/labstack/echo/v4"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewLimiter parses rates such as "10-M" into an in-memory limiter.
func NewLimiter(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}

// RateLimit counts per authenticated user, falling back to the client IP.
func RateLimit(l *limiter.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if p, ok := PrincipalFrom(c.Request().Context()); ok {
				key = p.CompanyID + ":" + p.UserID
			}
			lc, err := l.Get(c.Request().Context(), c.Path()+"|"+key)
			if err != nil {
				logging.LogError(c.Request().Context(), "middleware", "RateLimit", "limiter lookup", key, err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "rate limit check failed"})
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			if lc.Reached {
				logging.FromContext(c.Request().Context()).WithField("key", key).Warn("rate limit exceeded")
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests, try again later"})
			}
			return next(c)
		}
	}
}
