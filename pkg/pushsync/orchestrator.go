// Package pushsync pushes locally-changed entities back to the external CRM
// in fixed-size concurrent batches.
package pushsync

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/external"
	"github.com/Ramsey-B/fern/pkg/models"
)

// syncStore is the entity persistence surface the orchestrator needs
type syncStore interface {
	ListForPush(ctx context.Context, tenantID, entityKind string, limit int) ([]models.Entity, error)
	UpdateSyncResult(ctx context.Context, tenantID, id, status string, syncErr *string, externalID *string) error
}

// pusher writes one entity to the external service
type pusher interface {
	PushEntity(ctx context.Context, collection string, entity *models.Entity) (*models.ExternalPushResult, error)
}

// syncEmitter publishes per-item sync outcomes
type syncEmitter interface {
	EmitSyncResult(ctx context.Context, entity *models.Entity, syncErr error) error
}

var _ syncEmitter = (*events.Emitter)(nil)

const (
	defaultBatchSize = 5
	maxBatchSize     = 10
)

// Orchestrator drives outbound sync passes
type Orchestrator struct {
	entities  syncStore
	pusher    pusher
	emitter   syncEmitter
	batchSize int
	logger    ectologger.Logger
}

// NewOrchestrator creates a new push sync orchestrator. batchSize is clamped
// into the supported range.
func NewOrchestrator(entities syncStore, pusher pusher, emitter syncEmitter, batchSize int, logger ectologger.Logger) *Orchestrator {
	if batchSize < defaultBatchSize {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	return &Orchestrator{
		entities:  entities,
		pusher:    pusher,
		emitter:   emitter,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run pushes every entity of the kind whose sync status is pending or error.
// Items within a batch run concurrently; the next batch starts only after the
// whole batch has joined. One item failing marks that entity as errored and
// touches nothing else, so a rerun picks up exactly the leftovers.
func (o *Orchestrator) Run(ctx context.Context, tenantID, entityKind string) (*models.PushSyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "pushsync.Orchestrator.Run")
	defer span.End()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_kind": entityKind,
	})

	collection, err := external.CollectionForKind(entityKind)
	if err != nil {
		return nil, err
	}

	pending, err := o.entities.ListForPush(ctx, tenantID, entityKind, 0)
	if err != nil {
		return nil, err
	}

	summary := &models.PushSyncSummary{
		EntityKind: entityKind,
		Total:      len(pending),
	}

	var mu sync.Mutex
	for start := 0; start < len(pending); start += o.batchSize {
		end := start + o.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		summary.Batches++

		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(entity *models.Entity) {
				defer wg.Done()
				synced := o.pushOne(ctx, tenantID, collection, entity)
				mu.Lock()
				if synced {
					summary.Synced++
				} else {
					summary.Failed++
				}
				mu.Unlock()
			}(&batch[i])
		}
		wg.Wait()
	}

	log.WithFields(map[string]any{
		"total":   summary.Total,
		"synced":  summary.Synced,
		"failed":  summary.Failed,
		"batches": summary.Batches,
	}).Info("Push sync pass finished")

	return summary, nil
}

// pushOne pushes a single entity and records its terminal sync status. The
// returned bool reports success; every error path still lands the entity in a
// terminal status so no item is left in limbo.
func (o *Orchestrator) pushOne(ctx context.Context, tenantID, collection string, entity *models.Entity) bool {
	ctx, span := tracing.StartSpan(ctx, "pushsync.Orchestrator.pushOne")
	defer span.End()

	result, pushErr := o.pusher.PushEntity(ctx, collection, entity)
	if pushErr != nil {
		msg := pushErr.Error()
		if err := o.entities.UpdateSyncResult(ctx, tenantID, entity.ID, models.SyncStatusError, &msg, nil); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entity.ID}).Error("Failed to record sync error status")
		}
		if err := o.emitter.EmitSyncResult(ctx, entity, pushErr); err != nil {
			o.logger.WithContext(ctx).WithError(err).Debug("Sync error event not delivered")
		}
		return false
	}

	var externalID *string
	if result.ID != "" {
		externalID = &result.ID
		entity.ExternalID = &result.ID
	}
	if err := o.entities.UpdateSyncResult(ctx, tenantID, entity.ID, models.SyncStatusSynced, nil, externalID); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entity.ID}).Error("Failed to record synced status")
		return false
	}
	if err := o.emitter.EmitSyncResult(ctx, entity, nil); err != nil {
		o.logger.WithContext(ctx).WithError(err).Debug("Sync event not delivered")
	}
	return true
}
