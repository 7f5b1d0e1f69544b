package dedup

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

// entityLister provides the working set for one deduplication pass
type entityLister interface {
	ListByKind(ctx context.Context, tenantID, entityKind string) ([]models.Entity, error)
}

// archiver removes the losers of one group and snapshots them, atomically
type archiver interface {
	ArchiveGroup(ctx context.Context, tenantID string, winner *models.Entity, losers []models.Entity) error
}

// candidateStore records fuzzy pairs for review
type candidateStore interface {
	CreateBatch(ctx context.Context, candidates []models.DuplicateCandidate) error
	DeleteByEntity(ctx context.Context, tenantID, entityID string) error
}

// dedupEmitter publishes archival and candidate events
type dedupEmitter interface {
	EmitEntityArchived(ctx context.Context, tenantID, entityID, entityKind, mergedIntoID string) error
	EmitDuplicateCandidate(ctx context.Context, candidate *models.DuplicateCandidate) error
}

var _ dedupEmitter = (*events.Emitter)(nil)

// Engine runs deduplication passes over the canonical store
type Engine struct {
	entities       entityLister
	archives       archiver
	candidates     candidateStore
	emitter        dedupEmitter
	fuzzyThreshold float64
	logger         ectologger.Logger
}

// NewEngine creates a new deduplication engine. threshold is the minimum
// Jaro-Winkler similarity for a pair to be flagged for review.
func NewEngine(entities entityLister, archives archiver, candidates candidateStore, emitter dedupEmitter, threshold float64, logger ectologger.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.88
	}
	return &Engine{
		entities:       entities,
		archives:       archives,
		candidates:     candidates,
		emitter:        emitter,
		fuzzyThreshold: threshold,
		logger:         logger,
	}
}

// Run executes one deduplication pass for an entity kind. Exact groups are
// resolved automatically: the most complete member survives and the rest are
// archived. A group that fails to archive is counted and left intact; the
// pass continues with the next group.
func (e *Engine) Run(ctx context.Context, tenantID, entityKind string) (*models.DeduplicationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Engine.Run")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_kind": entityKind,
	})

	entities, err := e.entities.ListByKind(ctx, tenantID, entityKind)
	if err != nil {
		return nil, err
	}

	summary := &models.DeduplicationSummary{EntityKind: entityKind}

	groups := GroupExact(entities)
	summary.GroupsFound = len(groups)

	archived := make(map[string]bool)
	for _, group := range groups {
		winner, losers := Rank(group.Members)
		if err := e.archives.ArchiveGroup(ctx, tenantID, &winner, losers); err != nil {
			summary.FailedGroups++
			log.WithError(err).WithFields(map[string]any{
				"group_key": group.Key,
				"winner_id": winner.ID,
			}).Error("Failed to archive duplicate group, leaving it intact")
			continue
		}
		summary.Removed += len(losers)

		for _, loser := range losers {
			archived[loser.ID] = true
			if err := e.candidates.DeleteByEntity(ctx, tenantID, loser.ID); err != nil {
				log.WithError(err).WithFields(map[string]any{"entity_id": loser.ID}).Warn("Failed to clear candidates for archived entity")
			}
			if err := e.emitter.EmitEntityArchived(ctx, tenantID, loser.ID, loser.EntityKind, winner.ID); err != nil {
				log.WithError(err).Debug("Entity archived event not delivered")
			}
		}
	}

	// Fuzzy comparison runs over the survivors only; pairs involving a row
	// archived above would point reviewers at rows that no longer exist.
	survivors := entities[:0]
	for _, entity := range entities {
		if !archived[entity.ID] {
			survivors = append(survivors, entity)
		}
	}

	candidates := FuzzyCandidates(tenantID, survivors, e.fuzzyThreshold)
	if len(candidates) > 0 {
		if err := e.candidates.CreateBatch(ctx, candidates); err != nil {
			log.WithError(err).Error("Failed to record fuzzy duplicate candidates")
		} else {
			summary.Candidates = len(candidates)
			for i := range candidates {
				if err := e.emitter.EmitDuplicateCandidate(ctx, &candidates[i]); err != nil {
					log.WithError(err).Debug("Duplicate candidate event not delivered")
				}
			}
		}
	}

	log.WithFields(map[string]any{
		"groups_found":  summary.GroupsFound,
		"removed":       summary.Removed,
		"candidates":    summary.Candidates,
		"failed_groups": summary.FailedGroups,
	}).Info("Deduplication pass finished")

	return summary, nil
}
