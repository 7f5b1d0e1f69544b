package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Projector mirrors canonical entities into the graph database so the
// matchmaking views can traverse investor, firm and contact relationships.
// Projection is a read model: the relational store stays authoritative.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// UpsertEntity creates or refreshes the node for an entity. The label is the
// entity kind (:Investor, :Firm, :Contact).
func (p *Projector) UpsertEntity(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertEntity")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":   entity.ID,
		"entity_kind": entity.EntityKind,
		"tenant_id":   entity.TenantID,
	})

	props := map[string]any{
		"id":          entity.ID,
		"tenant_id":   entity.TenantID,
		"entity_kind": entity.EntityKind,
		"name":        entity.Name,
		"source":      entity.Source,
		"created_at":  entity.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":  entity.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if entity.ExternalID != nil {
		props["external_id"] = *entity.ExternalID
	}
	if entity.Classification != nil {
		props["classification"] = *entity.Classification
	}
	if entity.Location != nil {
		props["location"] = *entity.Location
	}

	cypher := fmt.Sprintf(`
		MERGE (e:%s {id: $id, tenant_id: $tenant_id})
		SET e = $props
		RETURN e
	`, sanitizeLabel(entity.EntityKind))

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":        entity.ID,
			"tenant_id": entity.TenantID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to project entity into graph")
		return fmt.Errorf("failed to project entity into graph: %w", err)
	}

	log.Debug("Projected entity into graph")
	return nil
}

// RecordArchival marks the archived node and links it to its winner with a
// MERGED_INTO edge, preserving the merge lineage for traversals
func (p *Projector) RecordArchival(ctx context.Context, tenantID, entityKind, archivedID, winnerID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RecordArchival")
	defer span.End()

	label := sanitizeLabel(entityKind)
	cypher := fmt.Sprintf(`
		MATCH (loser:%s {id: $archived_id, tenant_id: $tenant_id})
		MATCH (winner:%s {id: $winner_id, tenant_id: $tenant_id})
		SET loser.archived_at = datetime()
		MERGE (loser)-[:MERGED_INTO]->(winner)
		RETURN loser
	`, label, label)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"archived_id": archivedID,
			"winner_id":   winnerID,
			"tenant_id":   tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"archived_id": archivedID,
			"winner_id":   winnerID,
		}).Error("Failed to record archival in graph")
		return fmt.Errorf("failed to record archival in graph: %w", err)
	}

	return nil
}

// sanitizeLabel keeps only characters valid in a Cypher label and upcases the
// first letter, turning "investor" into "Investor"
func sanitizeLabel(kind string) string {
	var sb strings.Builder
	for _, r := range kind {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	label := sb.String()
	if label == "" {
		return "Entity"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
