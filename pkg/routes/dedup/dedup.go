package dedup

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/duplicatecandidate"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// Register registers deduplication routes
func Register(g *echo.Group) {
	g.POST("", RunDeduplication)
	g.GET("/candidates", ListCandidates)
	g.PUT("/candidates/:id", ReviewCandidate)
}

// RunDeduplication executes one deduplication pass for an entity kind and
// returns its summary
func RunDeduplication(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	var req models.RunDeduplicationRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*dedup.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := engine.Run(ctx, tenantID, req.EntityKind)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}

// ListCandidates returns fuzzy duplicate pairs awaiting review
func ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	status := c.QueryParam("status")
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	ctx, repo, err := ectoinject.GetContext[*duplicatecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, totalCount, err := repo.List(ctx, tenantID, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.DuplicateCandidateListResponse{
		Items:      candidates,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// ReviewCandidate records the reviewer's decision on one candidate pair
func ReviewCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	var req models.UpdateCandidateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*duplicatecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.UpdateStatus(ctx, tenantID, id, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
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
