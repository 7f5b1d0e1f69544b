package imports

import (
	stdcontext "context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/failedrecord"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// Register registers import run routes
func Register(g *echo.Group) {
	g.POST("", StartImport)
	g.GET("", ListImports)
	g.GET("/:id", GetImport)
	g.POST("/:id/cancel", CancelImport)
	g.GET("/:id/failures", ListFailures)
}

// StartImport creates a run and executes it in the background. The response
// is the pending run; callers poll GetImport to watch it progress.
func StartImport(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	var req models.StartImportRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*importer.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := service.StartRun(ctx, tenantID, req.CollectionType, req.WorkspaceID)
	if err != nil {
		return err
	}

	// Execution outlives the request; the run row is the observable handle
	runCtx := context.SetTenantID(stdcontext.Background(), tenantID)
	runCtx = context.SetRequestID(runCtx, context.GetRequestID(ctx))
	go func() {
		if err := service.Execute(runCtx, run); err != nil {
			_, logger, _ := ectoinject.GetContext[ectologger.Logger](runCtx)
			if logger != nil {
				logger.WithContext(runCtx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Import run execution failed")
			}
		}
	}()

	return c.JSON(http.StatusAccepted, run)
}

// GetImport returns the current state of one run
func GetImport(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*importer.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := service.GetRun(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListImports returns a page of runs for the tenant, newest first
func ListImports(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	ctx, service, err := ectoinject.GetContext[*importer.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, totalCount, err := service.ListRuns(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ImportRunListResponse{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// CancelImport requests cancellation of a live run. The run finishes the page
// it is on before terminating, so the response only acknowledges the request.
func CancelImport(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*importer.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := service.Cancel(ctx, tenantID, id); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// ListFailures returns the failed records of one run
func ListFailures(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*failedrecord.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListByRun(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FailedRecordListResponse{
		Items:      records,
		TotalCount: len(records),
	})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
