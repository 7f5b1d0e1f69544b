// Package dedup detects and removes duplicate canonical entities. Exact
// collisions on external identity or normalized name are resolved
// automatically; near matches only ever become review candidates.
package dedup

import (
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Group is one set of entities sharing a grouping key
type Group struct {
	Key     string
	Members []models.Entity
}

// GroupExact partitions entities by identity key: external id when present,
// normalized name otherwise. Entities with neither join no group. Only groups
// with two or more members are returned, in first-seen order.
func GroupExact(entities []models.Entity) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, e := range entities {
		key := normalizers.IdentityKey(e.ExternalID, e.Name)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, Group{Key: key, Members: []models.Entity{e}})
			continue
		}
		groups[i].Members = append(groups[i].Members, e)
	}

	var dupes []Group
	for _, g := range groups {
		if len(g.Members) > 1 {
			dupes = append(dupes, g)
		}
	}
	return dupes
}

// FuzzyCandidates scores every entity pair by Jaro-Winkler similarity of
// their normalized names and returns the pairs at or above the threshold as
// review candidates. Pairs already sharing an identity key are excluded; those
// are handled by exact grouping, not review. A pair whose normalized names are
// identical but whose identity keys differ (one row carries an external id the
// other lacks, or the external ids disagree) cannot be auto-resolved, so it is
// always surfaced as a combined-signal candidate regardless of the threshold.
func FuzzyCandidates(tenantID string, entities []models.Entity, threshold float64) []models.DuplicateCandidate {
	scorer := matching.NewScorer()
	var candidates []models.DuplicateCandidate

	type scored struct {
		entity *models.Entity
		key    string
		name   string
	}
	items := make([]scored, 0, len(entities))
	for i := range entities {
		name := normalizers.NormalizeName(entities[i].Name)
		if name == "" {
			continue
		}
		items = append(items, scored{
			entity: &entities[i],
			key:    normalizers.IdentityKey(entities[i].ExternalID, entities[i].Name),
			name:   name,
		})
	}

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if a.key != "" && a.key == b.key {
				continue
			}
			matchType := models.MatchTypeFuzzyName
			similarity := 1.0
			if a.name == b.name {
				matchType = models.MatchTypeCombined
			} else {
				similarity = scorer.JaroWinkler(a.name, b.name)
				if similarity < threshold {
					continue
				}
			}
			candidates = append(candidates, models.DuplicateCandidate{
				TenantID:   tenantID,
				EntityKind: a.entity.EntityKind,
				EntityAID:  a.entity.ID,
				EntityBID:  b.entity.ID,
				MatchType:  matchType,
				Similarity: similarity,
				Status:     models.CandidateStatusPending,
			})
		}
	}
	return candidates
}
