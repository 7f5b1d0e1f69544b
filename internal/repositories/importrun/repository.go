package importrun

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

var runColumns = []string{
	"id", "tenant_id", "collection_type", "workspace_id", "status",
	"total_records", "processed_records", "created_records", "updated_records",
	"skipped_records", "failed_records", "percent_complete", "cursor",
	"error_summary", "started_at", "completed_at", "created_at", "updated_at",
}

// Repository handles import run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending run
func (r *Repository) Create(ctx context.Context, tenantID, collectionType, workspaceID string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	run := &models.ImportRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		CollectionType: collectionType,
		WorkspaceID:    workspaceID,
		Status:         models.ImportRunStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("import_runs")
	sb.Cols("id", "tenant_id", "collection_type", "workspace_id", "status", "created_at", "updated_at")
	sb.Values(run.ID, run.TenantID, run.CollectionType, run.WorkspaceID, run.Status, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import run")
	}
	return run, nil
}

// GetByID retrieves one run
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("import_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.ImportRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id}).Error("Failed to get import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import run")
	}
	return &run, nil
}

// List returns a page of runs, newest first
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.ImportRun, int, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.List")
	defer span.End()

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("import_runs")
	countSb.Where(countSb.Equal("tenant_id", tenantID))

	query, args := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count import runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count import runs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("import_runs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var runs []models.ImportRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import runs")
	}
	return runs, totalCount, nil
}

// MarkInProgress transitions a pending run to in_progress and records the
// total record count and start time
func (r *Repository) MarkInProgress(ctx context.Context, tenantID, id string, totalRecords int) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.MarkInProgress")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_runs")
	ub.Set(
		ub.Assign("status", models.ImportRunStatusInProgress),
		ub.Assign("total_records", totalRecords),
		ub.Assign("started_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.Equal("status", models.ImportRunStatusPending),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id}).Error("Failed to mark import run in progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start import run")
	}
	return nil
}

// UpdateProgress persists the live counters of an in_progress run so callers
// polling the run observe progress during execution. Terminal runs are never
// touched here, which keeps frozen counters frozen.
func (r *Repository) UpdateProgress(ctx context.Context, run *models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.UpdateProgress")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_runs")
	ub.Set(
		ub.Assign("total_records", run.TotalRecords),
		ub.Assign("processed_records", run.ProcessedRecords),
		ub.Assign("created_records", run.CreatedRecords),
		ub.Assign("updated_records", run.UpdatedRecords),
		ub.Assign("skipped_records", run.SkippedRecords),
		ub.Assign("failed_records", run.FailedRecords),
		ub.Assign("percent_complete", run.PercentComplete),
		ub.Assign("cursor", run.Cursor),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", run.ID),
		ub.Equal("tenant_id", run.TenantID),
		ub.Equal("status", models.ImportRunStatusInProgress),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to update import run progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import run progress")
	}
	return nil
}

// Finish transitions a run to a terminal status exactly once, freezing the
// counters and forcing percent_complete to 100
func (r *Repository) Finish(ctx context.Context, run *models.ImportRun, status models.ImportRunStatus, errorSummary *string) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_runs")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("total_records", run.TotalRecords),
		ub.Assign("processed_records", run.ProcessedRecords),
		ub.Assign("created_records", run.CreatedRecords),
		ub.Assign("updated_records", run.UpdatedRecords),
		ub.Assign("skipped_records", run.SkippedRecords),
		ub.Assign("failed_records", run.FailedRecords),
		ub.Assign("percent_complete", 100),
		ub.Assign("cursor", run.Cursor),
		ub.Assign("error_summary", errorSummary),
		ub.Assign("completed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", run.ID),
		ub.Equal("tenant_id", run.TenantID),
		ub.In("status", models.ImportRunStatusPending, models.ImportRunStatusInProgress),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID, "status": status}).Error("Failed to finish import run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish import run")
	}
	return nil
}

// RequestCancel flags a live run for cancellation. The pipeline observes the
// flag between pages; in-flight records complete before the run finishes as
// cancelled.
func (r *Repository) RequestCancel(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.RequestCancel")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_runs")
	ub.Set(
		ub.Assign("cancel_requested", true),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.In("status", models.ImportRunStatusPending, models.ImportRunStatusInProgress),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id}).Error("Failed to request import run cancellation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel import run")
	}
	return nil
}

// IsCancelRequested reports whether cancellation has been requested for a run
func (r *Repository) IsCancelRequested(ctx context.Context, tenantID, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.IsCancelRequested")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("cancel_requested")
	sb.From("import_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var requested bool
	if err := r.db.GetContext(ctx, &requested, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return false, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id}).Error("Failed to read cancellation flag")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read cancellation flag")
	}
	return requested, nil
}
