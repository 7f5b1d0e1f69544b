package failedrecord

import (
	"context"
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

var failedRecordColumns = []string{
	"id", "run_id", "tenant_id", "external_id", "payload", "error_code",
	"error_message", "retry_count", "resolved_at", "created_at",
}

// Repository handles failed record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new failed record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records one reconciliation failure for a run
func (r *Repository) Create(ctx context.Context, record *models.FailedRecord) (*models.FailedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "failedrecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("failed_records")
	sb.Cols("id", "run_id", "tenant_id", "external_id", "payload", "error_code", "error_message", "retry_count", "created_at")
	sb.Values(record.ID, record.RunID, record.TenantID, record.ExternalID, record.Payload, record.ErrorCode, record.ErrorMessage, record.RetryCount, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":      record.RunID,
			"external_id": record.ExternalID,
		}).Error("Failed to record failed record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record import failure")
	}
	return record, nil
}

// ListByRun returns every failure recorded for one run
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string) ([]models.FailedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "failedrecord.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(failedRecordColumns...)
	sb.From("failed_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var records []models.FailedRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to list failed records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list failed records")
	}
	return records, nil
}

// MarkResolved stamps a failure as resolved after a successful retry
func (r *Repository) MarkResolved(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "failedrecord.Repository.MarkResolved")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("failed_records")
	ub.Set(
		ub.Assign("resolved_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.IsNull("resolved_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"failed_record_id": id}).Error("Failed to mark failed record resolved")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve failed record")
	}
	return nil
}
