package middleware

import (
	"time"

	"halonet-payments/internal/infrastructure/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger attaches a request-scoped logrus entry carrying request_id and
// writes one access line when the handler returns.
func RequestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		rid := req.Header.Get(echo.HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, rid)

		entry := logging.L().WithFields(logrus.Fields{
			"request_id": rid,
			"method":     req.Method,
			"path":       c.Path(),
		})
		c.SetRequest(req.WithContext(logging.WithEntry(req.Context(), entry)))

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logging.FromContext(c.Request().Context()).WithFields(logrus.Fields{
			"status":     c.Response().Status,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("http: request served")
		return nil
	}
}
