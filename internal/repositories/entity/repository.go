package entity

import (
	"context"
	"encoding/json"
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

var entityColumns = []string{
	"id", "tenant_id", "entity_kind", "external_id", "name", "email", "phone",
	"website", "location", "classification", "sectors", "stages", "contacts",
	"social_links", "bio", "notes", "internal_status", "source", "sync_status",
	"sync_error", "last_external_sync_at", "fingerprint", "created_at", "updated_at",
}

// Repository handles canonical entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional callers
func (r *Repository) DB() database.DB {
	return r.db
}

// GetByID retrieves an entity by its local identity
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("entity %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to get entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}
	return &entity, nil
}

// GetByExternalID looks up an entity by its external identity. Exact match
// only; fuzzy resolution belongs to the duplicate detector. Returns nil when
// no entity carries the identity.
func (r *Repository) GetByExternalID(ctx context.Context, tenantID, entityKind, externalID string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByExternalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_kind", entityKind),
		sb.Equal("external_id", externalID),
	)

	query, args := sb.Build()
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"entity_kind": entityKind,
			"external_id": externalID,
		}).Error("Failed to get entity by external id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity by external id")
	}
	return &entity, nil
}

// Insert creates a new entity row
func (r *Repository) Insert(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Insert")
	defer span.End()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	if entity.SyncStatus == "" {
		entity.SyncStatus = models.SyncStatusSynced
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entities")
	sb.Cols(entityColumns...)
	sb.Values(
		entity.ID, entity.TenantID, entity.EntityKind, entity.ExternalID, entity.Name,
		entity.Email, entity.Phone, entity.Website, entity.Location, entity.Classification,
		entity.Sectors, entity.Stages, entity.Contacts, entity.SocialLinks, entity.Bio,
		entity.Notes, entity.InternalStatus, entity.Source, entity.SyncStatus,
		entity.SyncError, entity.LastExternalSyncAt, entity.Fingerprint,
		entity.CreatedAt, entity.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entity.ID}).Error("Failed to insert entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert entity")
	}
	return entity, nil
}

// UpdateMapped replaces the pipeline-owned columns of an entity and refreshes
// the sync timestamp. Local-only columns (notes, internal status) and the
// outbound sync columns are left untouched.
func (r *Repository) UpdateMapped(ctx context.Context, tenantID, id string, mapped *models.MappedFields, fp string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.UpdateMapped")
	defer span.End()

	now := time.Now().UTC()

	sectors, err := marshalList(mapped.Sectors)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode sectors")
	}
	stages, err := marshalList(mapped.Stages)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode stages")
	}
	contacts, err := marshalAny(mapped.Contacts)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode contacts")
	}
	socialLinks, err := marshalAny(mapped.SocialLinks)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode social links")
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("external_id", mapped.ExternalID),
		ub.Assign("name", mapped.Name),
		ub.Assign("email", mapped.Email),
		ub.Assign("phone", mapped.Phone),
		ub.Assign("website", mapped.Website),
		ub.Assign("location", mapped.Location),
		ub.Assign("classification", mapped.Classification),
		ub.Assign("sectors", sectors),
		ub.Assign("stages", stages),
		ub.Assign("contacts", contacts),
		ub.Assign("social_links", socialLinks),
		ub.Assign("bio", mapped.Bio),
		ub.Assign("fingerprint", fp),
		ub.Assign("last_external_sync_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to update mapped entity fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity")
	}
	return nil
}

// List returns a page of entities for the tenant, newest first, optionally
// filtered by kind
func (r *Repository) List(ctx context.Context, tenantID, entityKind string, page, pageSize int) ([]models.Entity, int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.List")
	defer span.End()

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("entities")
	countWhere := []string{countSb.Equal("tenant_id", tenantID)}
	if entityKind != "" {
		countWhere = append(countWhere, countSb.Equal("entity_kind", entityKind))
	}
	countSb.Where(countWhere...)

	query, args := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count entities")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count entities")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if entityKind != "" {
		where = append(where, sb.Equal("entity_kind", entityKind))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list entities")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}
	return entities, totalCount, nil
}

// ListByKind returns every active entity of one kind for the tenant. The
// duplicate detector consumes this as its working set.
func (r *Repository) ListByKind(ctx context.Context, tenantID, entityKind string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListByKind")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_kind", entityKind),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"entity_kind": entityKind,
		}).Error("Failed to list entities by kind")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}
	return entities, nil
}

// ListForPush returns entities whose sync status is pending or error and
// which carry enough data to sync. Re-running the push after a partial pass
// naturally picks up only the leftovers.
func (r *Repository) ListForPush(ctx context.Context, tenantID, entityKind string, limit int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListForPush")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_kind", entityKind),
		sb.In("sync_status", models.SyncStatusPending, models.SyncStatusError),
		sb.NotEqual("name", ""),
	)
	sb.OrderBy("updated_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"entity_kind": entityKind,
		}).Error("Failed to list entities for push")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities for push")
	}
	return entities, nil
}

// UpdateSyncResult records the outcome of one outbound push on the entity
func (r *Repository) UpdateSyncResult(ctx context.Context, tenantID, id, status string, syncErr *string, externalID *string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.UpdateSyncResult")
	defer span.End()

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	assigns := []string{
		ub.Assign("sync_status", status),
		ub.Assign("sync_error", syncErr),
		ub.Assign("updated_at", now),
	}
	if status == models.SyncStatusSynced {
		assigns = append(assigns, ub.Assign("last_external_sync_at", now))
	}
	if externalID != nil {
		assigns = append(assigns, ub.Assign("external_id", *externalID))
	}
	ub.Set(assigns...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id, "sync_status": status}).Error("Failed to update entity sync result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity sync result")
	}
	return nil
}

// MarkSyncPending flags an entity for the next outbound push
func (r *Repository) MarkSyncPending(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.MarkSyncPending")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("sync_status", models.SyncStatusPending),
		ub.Assign("sync_error", nil),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to mark entity sync pending")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark entity sync pending")
	}
	return nil
}

func marshalList(values []string) (json.RawMessage, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func marshalAny(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(v)
}
