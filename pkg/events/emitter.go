// Package events handles event emission for reconciliation lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes reconciliation lifecycle events. Every emit is
// best-effort: a broker outage is logged and swallowed by callers so event
// delivery never decides the fate of a run.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitRunStarted emits a run.started event
func (e *Emitter) EmitRunStarted(ctx context.Context, run *models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunStarted")
	defer span.End()

	event := &kafka.RunEvent{
		EventType:      "run.started",
		TenantID:       run.TenantID,
		RunID:          run.ID,
		CollectionType: run.CollectionType,
	}

	if err := e.producer.PublishRunEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.started event")
		return err
	}

	return nil
}

// EmitRunFinished emits the terminal event for a run (run.completed,
// run.failed or run.cancelled) with the frozen counters
func (e *Emitter) EmitRunFinished(ctx context.Context, run *models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFinished")
	defer span.End()

	eventType := "run.completed"
	switch run.Status {
	case models.ImportRunStatusFailed:
		eventType = "run.failed"
	case models.ImportRunStatusCancelled:
		eventType = "run.cancelled"
	}

	event := &kafka.RunEvent{
		EventType:      eventType,
		TenantID:       run.TenantID,
		RunID:          run.ID,
		CollectionType: run.CollectionType,
		Processed:      run.ProcessedRecords,
		Created:        run.CreatedRecords,
		Updated:        run.UpdatedRecords,
		Skipped:        run.SkippedRecords,
		Failed:         run.FailedRecords,
	}

	if err := e.producer.PublishRunEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitEntityCreated emits an entity.created event
func (e *Emitter) EmitEntityCreated(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityCreated")
	defer span.End()

	return e.emitEntity(ctx, "entity.created", entity)
}

// EmitEntityUpdated emits an entity.updated event
func (e *Emitter) EmitEntityUpdated(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityUpdated")
	defer span.End()

	return e.emitEntity(ctx, "entity.updated", entity)
}

func (e *Emitter) emitEntity(ctx context.Context, eventType string, entity *models.Entity) error {
	data, _ := json.Marshal(entity)

	event := &kafka.EntityEvent{
		EventType:  eventType,
		TenantID:   entity.TenantID,
		EntityID:   entity.ID,
		EntityKind: entity.EntityKind,
		Data:       data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitEntityArchived emits an entity.archived event carrying the winner the
// archived record was merged into
func (e *Emitter) EmitEntityArchived(ctx context.Context, tenantID, entityID, entityKind, mergedIntoID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityArchived")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"merged_into_id": mergedIntoID,
		"archive_reason": models.ArchiveReasonLessComplete,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.EntityEvent{
		EventType:  "entity.archived",
		TenantID:   tenantID,
		EntityID:   entityID,
		EntityKind: entityKind,
		Data:       dataJSON,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.archived event")
		return err
	}

	return nil
}

// EmitDuplicateCandidate emits an event when a fuzzy pair is flagged for
// review
func (e *Emitter) EmitDuplicateCandidate(ctx context.Context, candidate *models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicateCandidate")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"entity_a_id":    candidate.EntityAID,
		"entity_b_id":    candidate.EntityBID,
		"match_type":     candidate.MatchType,
		"similarity":     candidate.Similarity,
		"status":         candidate.Status,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.EntityEvent{
		EventType:  "duplicate.candidate",
		TenantID:   candidate.TenantID,
		EntityID:   candidate.EntityAID,
		EntityKind: "duplicate_candidate",
		Data:       dataJSON,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicate.candidate event")
		return err
	}

	return nil
}

// EmitSyncResult emits sync.synced or sync.error for one push attempt
func (e *Emitter) EmitSyncResult(ctx context.Context, entity *models.Entity, syncErr error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSyncResult")
	defer span.End()

	event := &kafka.SyncEvent{
		EventType:  "sync.synced",
		TenantID:   entity.TenantID,
		EntityID:   entity.ID,
		EntityKind: entity.EntityKind,
	}
	if entity.ExternalID != nil {
		event.ExternalID = *entity.ExternalID
	}
	if syncErr != nil {
		event.EventType = "sync.error"
		event.Error = syncErr.Error()
	}

	if err := e.producer.PublishSyncEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit sync result event")
		return err
	}

	return nil
}
