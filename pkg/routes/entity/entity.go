package entity

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/archivedentity"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Register registers entity routes
func Register(g *echo.Group) {
	g.GET("", ListEntities)
	g.GET("/:id", GetEntity)
	g.GET("/:id/archive", GetEntityArchive)
	g.POST("/:id/sync", MarkEntitySyncPending)
}

// ListEntities returns a page of canonical entities, optionally filtered by
// kind
func ListEntities(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	entityKind := c.QueryParam("entity_kind")
	if entityKind != "" && !models.ValidEntityKind(entityKind) {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown entity kind")
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	ctx, repo, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entities, totalCount, err := repo.List(ctx, tenantID, entityKind, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EntityListResponse{
		Items:      entities,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetEntity returns one canonical entity
func GetEntity(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	found, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, found)
}

// GetEntityArchive returns the archive snapshot of an entity removed by
// deduplication, including the winner it was merged into
func GetEntityArchive(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*archivedentity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	archived, err := repo.GetByEntityID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, archived)
}

// MarkEntitySyncPending flags an entity for the next outbound push
func MarkEntitySyncPending(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.MarkSyncPending(ctx, tenantID, id); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "sync pending"})
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
