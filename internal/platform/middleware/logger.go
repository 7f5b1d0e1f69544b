package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/labstack/echo/v4"
)

// Logger emits one structured line per request. Server errors log at error
// level and client errors at warn so noisy 4xx traffic can be filtered
// without losing it.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":  context.GetRequestID(req.Context()),
				"tenant_id":   context.GetTenantID(req.Context()),
				"method":      req.Method,
				"route":       c.Path(),
				"uri":         req.RequestURI,
				"status":      res.Status,
				"remote_ip":   c.RealIP(),
				"user_agent":  req.UserAgent(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes_out":   res.Size,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("request")
			case res.Status >= http.StatusBadRequest:
				log.Warn("request")
			default:
				log.Info("request")
			}
			return nil
		}
	}
}
