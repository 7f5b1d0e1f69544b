package archivedentity

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/models"
)

var archivedColumns = []string{
	"id", "tenant_id", "entity_id", "entity_kind", "data", "archive_reason",
	"merged_into_id", "archived_at",
}

// Repository handles archived entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new archived entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ArchiveGroup snapshots the losing entities of one duplicate group and
// removes them from the active table, in a single transaction. Either every
// loser is archived and deleted or none are, so a failure mid-group leaves
// the group untouched for the next run.
func (r *Repository) ArchiveGroup(ctx context.Context, tenantID string, winner *models.Entity, losers []models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "archivedentity.Repository.ArchiveGroup")
	defer span.End()

	if len(losers) == 0 {
		return nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctxTx)

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("archived_entities")
	ib.Cols("id", "tenant_id", "entity_id", "entity_kind", "data", "archive_reason", "merged_into_id", "archived_at")

	loserIDs := make([]any, 0, len(losers))
	for i := range losers {
		loser := &losers[i]
		snapshot := database.JSONB[models.Entity]{Data: *loser}
		ib.Values(uuid.New().String(), tenantID, loser.ID, loser.EntityKind, snapshot, models.ArchiveReasonLessComplete, winner.ID, now)
		loserIDs = append(loserIDs, loser.ID)
	}

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctxTx).WithError(err).WithFields(map[string]any{
			"winner_id":   winner.ID,
			"loser_count": len(losers),
		}).Error("Failed to insert archived entities")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive entities")
	}

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("entities")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.In("id", loserIDs...),
	)

	query, args = del.Build()
	if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctxTx).WithError(err).WithFields(map[string]any{"winner_id": winner.ID}).Error("Failed to delete archived entities from active table")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove archived entities")
	}

	if err := tx.Commit(ctxTx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit archive transaction")
	}
	return nil
}

// GetByEntityID retrieves the archive snapshot of a removed entity
func (r *Repository) GetByEntityID(ctx context.Context, tenantID, entityID string) (*models.ArchivedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "archivedentity.Repository.GetByEntityID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(archivedColumns...)
	sb.From("archived_entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_id", entityID),
	)
	sb.OrderBy("archived_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var archived models.ArchivedEntity
	if err := r.db.GetContext(ctx, &archived, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no archive found for entity %s", entityID))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to get archived entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get archived entity")
	}
	return &archived, nil
}

// List returns a page of archive snapshots, newest first
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.ArchivedEntity, int, error) {
	ctx, span := tracing.StartSpan(ctx, "archivedentity.Repository.List")
	defer span.End()

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("archived_entities")
	countSb.Where(countSb.Equal("tenant_id", tenantID))

	query, args := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count archived entities")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count archived entities")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(archivedColumns...)
	sb.From("archived_entities")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("archived_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var archived []models.ArchivedEntity
	if err := r.db.SelectContext(ctx, &archived, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list archived entities")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list archived entities")
	}
	return archived, totalCount, nil
}
