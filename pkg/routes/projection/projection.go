package projection

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/archivedentity"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Register registers graph projection routes
func Register(g *echo.Group) {
	g.POST("/rebuild", RebuildProjection)
}

// RebuildResult reports one projection rebuild pass
type RebuildResult struct {
	Projected int `json:"projected"`
	Archivals int `json:"archivals"`
	Failed    int `json:"failed"`
}

// RebuildProjection re-projects every live entity and every archival edge for
// the tenant into the graph database. Used after enabling the graph store or
// recovering it from a backup.
func RebuildProjection(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	ctx, projector, err := ectoinject.GetContext[*graph.Projector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph projection is not enabled")
	}

	ctx, entities, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, archives, err := ectoinject.GetContext[*archivedentity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result := &RebuildResult{}

	kinds := []models.EntityKind{models.EntityKindInvestor, models.EntityKindFirm, models.EntityKindContact}
	for _, kind := range kinds {
		live, err := entities.ListByKind(ctx, tenantID, string(kind))
		if err != nil {
			return err
		}

		for i := range live {
			if err := projector.UpsertEntity(ctx, &live[i]); err != nil {
				result.Failed++
				continue
			}
			result.Projected++
		}
	}

	page := 1
	const pageSize = 200
	for {
		archived, total, err := archives.List(ctx, tenantID, page, pageSize)
		if err != nil {
			return err
		}

		for _, a := range archived {
			if err := projector.RecordArchival(ctx, tenantID, a.EntityKind, a.EntityID, a.MergedIntoID); err != nil {
				result.Failed++
				continue
			}
			result.Archivals++
		}

		if page*pageSize >= total || len(archived) == 0 {
			break
		}
		page++
	}

	return c.JSON(http.StatusOK, result)
}
