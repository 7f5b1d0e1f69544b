package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body every failed request returns. RequestID and
// TraceID let a caller hand support something that maps back to the logs.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error translates handler errors into JSON responses. Typed httperrors keep
// their status and meta; everything else collapses to a 500 with no internals
// leaked.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")

		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		switch {
		case httperror.IsHTTPError(err):
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		default:
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
				if msg, ok := he.Message.(string); ok {
					message = msg
				}
			}
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
