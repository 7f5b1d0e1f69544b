// Package importer runs the inbound reconciliation pipeline: fetch external
// pages, extract and map fields, and upsert canonical entities while tracking
// run progress.
package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/external"
	"github.com/Ramsey-B/fern/pkg/fieldmap"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
)

// entityStore is the entity persistence surface the pipeline needs
type entityStore interface {
	GetByExternalID(ctx context.Context, tenantID, entityKind, externalID string) (*models.Entity, error)
	Insert(ctx context.Context, entity *models.Entity) (*models.Entity, error)
	UpdateMapped(ctx context.Context, tenantID, id string, mapped *models.MappedFields, fp string) error
}

// runStore is the run persistence surface the pipeline needs
type runStore interface {
	Create(ctx context.Context, tenantID, collectionType, workspaceID string) (*models.ImportRun, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.ImportRun, error)
	List(ctx context.Context, tenantID string, page, pageSize int) ([]models.ImportRun, int, error)
	MarkInProgress(ctx context.Context, tenantID, id string, totalRecords int) error
	UpdateProgress(ctx context.Context, run *models.ImportRun) error
	Finish(ctx context.Context, run *models.ImportRun, status models.ImportRunStatus, errorSummary *string) error
	RequestCancel(ctx context.Context, tenantID, id string) error
	IsCancelRequested(ctx context.Context, tenantID, id string) (bool, error)
}

// failureStore records per-record reconciliation failures
type failureStore interface {
	Create(ctx context.Context, record *models.FailedRecord) (*models.FailedRecord, error)
}

// pageFetcher streams external pages for one workspace-scoped collection
type pageFetcher interface {
	FetchPages(ctx context.Context, collection, workspaceID, startCursor string, fn external.PageFunc) error
}

// runEmitter publishes run and entity lifecycle events
type runEmitter interface {
	EmitRunStarted(ctx context.Context, run *models.ImportRun) error
	EmitRunFinished(ctx context.Context, run *models.ImportRun) error
	EmitEntityCreated(ctx context.Context, entity *models.Entity) error
	EmitEntityUpdated(ctx context.Context, entity *models.Entity) error
}

var _ runEmitter = (*events.Emitter)(nil)

// Options tunes run behavior that is deployment-specific rather than
// per-request.
type Options struct {
	// DefaultWorkspaceID scopes runs that do not name a workspace themselves.
	DefaultWorkspaceID string
	// FlushPages is how many pages to process between progress writes.
	// Values below 1 flush after every page.
	FlushPages int
}

// Service orchestrates import runs
type Service struct {
	entities entityStore
	runs     runStore
	failures failureStore
	fetcher  pageFetcher
	emitter  runEmitter
	opts     Options
	logger   ectologger.Logger
}

// NewService creates a new import service
func NewService(entities entityStore, runs runStore, failures failureStore, fetcher pageFetcher, emitter runEmitter, opts Options, logger ectologger.Logger) *Service {
	if opts.FlushPages < 1 {
		opts.FlushPages = 1
	}
	return &Service{
		entities: entities,
		runs:     runs,
		failures: failures,
		fetcher:  fetcher,
		emitter:  emitter,
		opts:     opts,
		logger:   logger,
	}
}

// StartRun registers a pending run for the collection. Execution happens in
// Execute, which the caller may run on its own goroutine; pollers observe the
// run through GetRun either way. An empty workspaceID falls back to the
// configured default workspace.
func (s *Service) StartRun(ctx context.Context, tenantID, collectionType, workspaceID string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.StartRun")
	defer span.End()

	if workspaceID == "" {
		workspaceID = s.opts.DefaultWorkspaceID
	}
	return s.runs.Create(ctx, tenantID, collectionType, workspaceID)
}

// GetRun returns the current observable state of a run
func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.GetRun")
	defer span.End()

	return s.runs.GetByID(ctx, tenantID, runID)
}

// ListRuns returns a page of runs for the tenant, newest first
func (s *Service) ListRuns(ctx context.Context, tenantID string, page, pageSize int) ([]models.ImportRun, int, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.ListRuns")
	defer span.End()

	return s.runs.List(ctx, tenantID, page, pageSize)
}

// Cancel requests cancellation of a live run. The pipeline observes the flag
// between pages; records already being processed complete normally first.
func (s *Service) Cancel(ctx context.Context, tenantID, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Cancel")
	defer span.End()

	return s.runs.RequestCancel(ctx, tenantID, runID)
}

// Execute drives a pending run to a terminal status. Per-record failures are
// recorded and counted without stopping the run; only page-level fetch
// failures fail the whole run.
func (s *Service) Execute(ctx context.Context, run *models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Execute")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":          run.ID,
		"collection_type": run.CollectionType,
		"workspace_id":    run.WorkspaceID,
	})

	collection, err := external.CollectionForKind(run.CollectionType)
	if err != nil {
		summary := err.Error()
		return s.finish(ctx, NewTracker(run, s.runs, s.logger), models.ImportRunStatusFailed, &summary)
	}

	if err := s.runs.MarkInProgress(ctx, run.TenantID, run.ID, 0); err != nil {
		return err
	}
	run.Status = models.ImportRunStatusInProgress

	if err := s.emitter.EmitRunStarted(ctx, run); err != nil {
		log.WithError(err).Warn("Run started event not delivered")
	}

	tracker := NewTracker(run, s.runs, s.logger)
	cache := newIdentityCache()
	mapping := fieldmap.DefaultMapping(run.CollectionType)

	startCursor := ""
	if run.Cursor != nil {
		startCursor = *run.Cursor
	}

	cancelled := false
	fetchErr := s.fetcher.FetchPages(ctx, collection, run.WorkspaceID, startCursor, func(pageIndex int, items []models.ExternalRecord, cursor string) error {
		requested, err := s.runs.IsCancelRequested(ctx, run.TenantID, run.ID)
		if err != nil {
			log.WithError(err).Warn("Failed to read cancellation flag, continuing")
		}
		if requested {
			cancelled = true
			return errCancelled
		}

		tracker.AddPage(len(items), cursor)
		for i := range items {
			outcome := s.processRecord(ctx, run, mapping, cache, &items[i])
			tracker.Advance(outcome)
		}
		if (pageIndex+1)%s.opts.FlushPages == 0 {
			tracker.Flush(ctx)
		}
		return nil
	})

	switch {
	case cancelled:
		log.Info("Import run cancelled")
		return s.finish(ctx, tracker, models.ImportRunStatusCancelled, nil)
	case fetchErr != nil:
		summary := fetchErr.Error()
		log.WithError(fetchErr).Error("Import run failed")
		return s.finish(ctx, tracker, models.ImportRunStatusFailed, &summary)
	default:
		log.WithFields(map[string]any{
			"processed": run.ProcessedRecords,
			"created":   run.CreatedRecords,
			"updated":   run.UpdatedRecords,
			"skipped":   run.SkippedRecords,
			"failed":    run.FailedRecords,
		}).Info("Import run completed")
		return s.finish(ctx, tracker, models.ImportRunStatusCompleted, nil)
	}
}

var errCancelled = fmt.Errorf("cancellation requested")

func (s *Service) finish(ctx context.Context, tracker *Tracker, status models.ImportRunStatus, summary *string) error {
	if err := tracker.Finish(ctx, status, summary); err != nil {
		return err
	}
	if err := s.emitter.EmitRunFinished(ctx, tracker.Run()); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Run finished event not delivered")
	}
	return nil
}

// processRecord reconciles one external record into the canonical store.
// Every failure path records a FailedRecord and returns OutcomeFailed; the
// run itself never aborts on a single record.
func (s *Service) processRecord(ctx context.Context, run *models.ImportRun, mapping *fieldmap.Mapping, cache *identityCache, record *models.ExternalRecord) Outcome {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.processRecord")
	defer span.End()

	if record.ID == "" {
		s.recordFailure(ctx, run, record, models.ErrorCodeMissing, "external record has no id")
		return OutcomeFailed
	}

	fields := fieldmap.Extract(record.CustomFields, run.WorkspaceID)
	mapped := mapping.Map(record, fields)
	if mapped.Name == "" {
		s.recordFailure(ctx, run, record, models.ErrorCodeMapping, "mapped record has no name")
		return OutcomeFailed
	}

	fp, err := fingerprint.GenerateFromStruct(mapped)
	if err != nil {
		s.recordFailure(ctx, run, record, models.ErrorCodeMapping, err.Error())
		return OutcomeFailed
	}

	existing, ok := cache.get(record.ID)
	if !ok {
		existing, err = s.entities.GetByExternalID(ctx, run.TenantID, run.CollectionType, record.ID)
		if err != nil {
			s.recordFailure(ctx, run, record, models.ErrorCodeUpsert, err.Error())
			return OutcomeFailed
		}
	}

	if existing != nil {
		if existing.Fingerprint == fp {
			cache.put(record.ID, existing)
			return OutcomeSkipped
		}
		if err := s.entities.UpdateMapped(ctx, run.TenantID, existing.ID, &mapped, fp); err != nil {
			s.recordFailure(ctx, run, record, models.ErrorCodeUpsert, err.Error())
			return OutcomeFailed
		}
		existing.Fingerprint = fp
		cache.put(record.ID, existing)
		if err := s.emitter.EmitEntityUpdated(ctx, existing); err != nil {
			s.logger.WithContext(ctx).WithError(err).Debug("Entity updated event not delivered")
		}
		return OutcomeUpdated
	}

	entity := entityFromMapped(run, &mapped, fp)
	created, err := s.entities.Insert(ctx, entity)
	if err != nil {
		s.recordFailure(ctx, run, record, models.ErrorCodeUpsert, err.Error())
		return OutcomeFailed
	}
	cache.put(record.ID, created)
	if err := s.emitter.EmitEntityCreated(ctx, created); err != nil {
		s.logger.WithContext(ctx).WithError(err).Debug("Entity created event not delivered")
	}
	return OutcomeCreated
}

func (s *Service) recordFailure(ctx context.Context, run *models.ImportRun, record *models.ExternalRecord, code, message string) {
	payload, err := json.Marshal(record)
	if err != nil {
		payload = nil
	}

	failed := &models.FailedRecord{
		RunID:        run.ID,
		TenantID:     run.TenantID,
		ExternalID:   record.ID,
		Payload:      payload,
		ErrorCode:    code,
		ErrorMessage: message,
	}
	if _, err := s.failures.Create(ctx, failed); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":      run.ID,
			"external_id": record.ID,
		}).Warn("Failed to persist failed record")
	}
}

// entityFromMapped builds a fresh canonical entity from one mapped record
func entityFromMapped(run *models.ImportRun, mapped *models.MappedFields, fp string) *models.Entity {
	externalID := mapped.ExternalID
	entity := &models.Entity{
		TenantID:       run.TenantID,
		EntityKind:     run.CollectionType,
		ExternalID:     &externalID,
		Name:           mapped.Name,
		Email:          mapped.Email,
		Phone:          mapped.Phone,
		Website:        mapped.Website,
		Location:       mapped.Location,
		Classification: mapped.Classification,
		Bio:            mapped.Bio,
		Source:         models.SourceExternal,
		SyncStatus:     models.SyncStatusSynced,
		Fingerprint:    fp,
	}

	entity.Sectors, _ = json.Marshal(orEmpty(mapped.Sectors))
	entity.Stages, _ = json.Marshal(orEmpty(mapped.Stages))
	if mapped.Contacts != nil {
		entity.Contacts, _ = json.Marshal(mapped.Contacts)
	}
	if mapped.SocialLinks != nil {
		entity.SocialLinks, _ = json.Marshal(mapped.SocialLinks)
	}
	return entity
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
