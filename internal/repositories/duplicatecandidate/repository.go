package duplicatecandidate

import (
	"context"
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

var candidateColumns = []string{
	"id", "tenant_id", "entity_kind", "entity_a_id", "entity_b_id", "match_type",
	"similarity", "status", "created_at", "updated_at",
}

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts candidate pairs, keeping the highest similarity seen
// for a pair already on file. Pairs are stored ordered (entity_a_id is the
// lexicographically smaller id) so each pair exists at most once.
func (r *Repository) CreateBatch(ctx context.Context, candidates []models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.CreateBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto("duplicate_candidates")
	ib.Cols(candidateColumns...)

	for i := range candidates {
		c := &candidates[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Status == "" {
			c.Status = models.CandidateStatusPending
		}
		if c.EntityAID > c.EntityBID {
			c.EntityAID, c.EntityBID = c.EntityBID, c.EntityAID
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		ib.Values(c.ID, c.TenantID, c.EntityKind, c.EntityAID, c.EntityBID, c.MatchType, c.Similarity, c.Status, c.CreatedAt, c.UpdatedAt)
	}

	ib.OnConflictUpdate(
		[]string{"tenant_id", "entity_a_id", "entity_b_id"},
		fmt.Sprintf("similarity = GREATEST(duplicate_candidates.similarity, %s)", database.Excluded("similarity")),
		fmt.Sprintf("match_type = %s", database.Excluded("match_type")),
		fmt.Sprintf("updated_at = %s", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(candidates)}).Error("Failed to create duplicate candidates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate candidates")
	}
	return nil
}

// GetByID retrieves one candidate
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("duplicate_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to get duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}
	return &candidate, nil
}

// List returns a page of candidates, optionally filtered by status, highest
// similarity first
func (r *Repository) List(ctx context.Context, tenantID, status string, page, pageSize int) ([]models.DuplicateCandidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.List")
	defer span.End()

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("duplicate_candidates")
	countSb.Where(countSb.Equal("tenant_id", tenantID))
	if status != "" {
		countSb.Where(countSb.Equal("status", status))
	}

	query, args := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate candidates")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("duplicate_candidates")
	sb.Where(sb.Equal("tenant_id", tenantID))
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("similarity DESC", "created_at ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var candidates []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}
	return candidates, totalCount, nil
}

// UpdateStatus moves a candidate through review (merged, dismissed, reviewed)
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.UpdateStatus")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("duplicate_candidates")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to update duplicate candidate status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update duplicate candidate")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", id))
	}

	return r.GetByID(ctx, tenantID, id)
}

// DeleteByEntity removes every candidate referencing an entity. Called when
// the entity is archived so reviewers never see pairs pointing at removed
// records.
func (r *Repository) DeleteByEntity(ctx context.Context, tenantID, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.DeleteByEntity")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("duplicate_candidates")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Or(
			db.Equal("entity_a_id", entityID),
			db.Equal("entity_b_id", entityID),
		),
	)

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to delete duplicate candidates for entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate candidates")
	}
	return nil
}
