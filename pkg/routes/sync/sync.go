package sync

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pushsync"
)

var validate = validator.New()

// Register registers outbound sync routes
func Register(g *echo.Group) {
	g.POST("/push", PushPendingSyncs)
}

// PushPendingSyncs pushes every pending or errored entity of a kind to the
// external service and returns the pass summary
func PushPendingSyncs(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	var req models.PushSyncRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, orchestrator, err := ectoinject.GetContext[*pushsync.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := orchestrator.Run(ctx, tenantID, req.EntityKind)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
