package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestGroupExact_ByExternalID(t *testing.T) {
	entities := []models.Entity{
		{ID: "e-1", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
		{ID: "e-2", Name: "ACME Ventures (copy)", ExternalID: strPtr("rec-1")},
		{ID: "e-3", Name: "Basecamp Capital", ExternalID: strPtr("rec-2")},
	}

	groups := GroupExact(entities)

	require.Len(t, groups, 1)
	assert.Equal(t, "ext:rec-1", groups[0].Key)
	require.Len(t, groups[0].Members, 2)
	assert.Equal(t, "e-1", groups[0].Members[0].ID)
	assert.Equal(t, "e-2", groups[0].Members[1].ID)
}

func TestGroupExact_ByNormalizedName(t *testing.T) {
	entities := []models.Entity{
		{ID: "e-1", Name: "Acme  Ventures"},
		{ID: "e-2", Name: "acme ventures"},
		{ID: "e-3", Name: "ACME   VENTURES "},
		{ID: "e-4", Name: "Acme Ventures, LLC"},
	}

	groups := GroupExact(entities)

	require.Len(t, groups, 1)
	assert.Equal(t, "name:acme ventures", groups[0].Key)
	assert.Len(t, groups[0].Members, 3)
}

func TestGroupExact_ExternalIDDoesNotCollideWithName(t *testing.T) {
	// Same display name but one row carries an external identity; identity
	// keys differ so the rows are never auto-merged. FuzzyCandidates surfaces
	// the pair instead, see TestFuzzyCandidates_SameNameDifferentIdentity.
	entities := []models.Entity{
		{ID: "e-1", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
		{ID: "e-2", Name: "Acme Ventures"},
	}

	groups := GroupExact(entities)

	assert.Empty(t, groups)
}

func TestFuzzyCandidates_SameNameDifferentIdentity(t *testing.T) {
	t.Run("OneSideCarriesExternalID", func(t *testing.T) {
		entities := []models.Entity{
			{ID: "e-1", EntityKind: "firm", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
			{ID: "e-2", EntityKind: "firm", Name: "Acme  ventures"},
		}

		candidates := FuzzyCandidates("tenant-1", entities, 0.9)

		require.Len(t, candidates, 1)
		c := candidates[0]
		assert.Equal(t, "e-1", c.EntityAID)
		assert.Equal(t, "e-2", c.EntityBID)
		assert.Equal(t, models.MatchTypeCombined, c.MatchType)
		assert.Equal(t, 1.0, c.Similarity)
		assert.Equal(t, models.CandidateStatusPending, c.Status)
	})

	t.Run("ExternalIDsDisagree", func(t *testing.T) {
		entities := []models.Entity{
			{ID: "e-1", EntityKind: "firm", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
			{ID: "e-2", EntityKind: "firm", Name: "Acme Ventures", ExternalID: strPtr("rec-2")},
		}

		candidates := FuzzyCandidates("tenant-1", entities, 0.9)

		require.Len(t, candidates, 1)
		assert.Equal(t, models.MatchTypeCombined, candidates[0].MatchType)
	})

	t.Run("SurfacedEvenAboveThreshold", func(t *testing.T) {
		// An identical name can never be filtered out by the similarity
		// threshold the way a near match can
		entities := []models.Entity{
			{ID: "e-1", EntityKind: "firm", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
			{ID: "e-2", EntityKind: "firm", Name: "acme ventures"},
		}

		candidates := FuzzyCandidates("tenant-1", entities, 0.999)

		require.Len(t, candidates, 1)
		assert.Equal(t, models.MatchTypeCombined, candidates[0].MatchType)
	})
}

func TestGroupExact_UnkeyedEntitiesJoinNoGroup(t *testing.T) {
	entities := []models.Entity{
		{ID: "e-1", Name: "   "},
		{ID: "e-2", Name: ""},
	}

	groups := GroupExact(entities)

	assert.Empty(t, groups)
}

func TestFuzzyCandidates_FlagsNearMatches(t *testing.T) {
	entities := []models.Entity{
		{ID: "e-1", EntityKind: "investor", Name: "Acme Ventures"},
		{ID: "e-2", EntityKind: "investor", Name: "Acme Venture"},
		{ID: "e-3", EntityKind: "investor", Name: "Completely Different Holdings"},
	}

	candidates := FuzzyCandidates("tenant-1", entities, 0.9)

	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "tenant-1", c.TenantID)
	assert.Equal(t, "investor", c.EntityKind)
	assert.Equal(t, "e-1", c.EntityAID)
	assert.Equal(t, "e-2", c.EntityBID)
	assert.Equal(t, models.MatchTypeFuzzyName, c.MatchType)
	assert.Equal(t, models.CandidateStatusPending, c.Status)
	assert.GreaterOrEqual(t, c.Similarity, 0.9)
}

func TestFuzzyCandidates_ExcludesExactPairs(t *testing.T) {
	entities := []models.Entity{
		// Same identity key: exact grouping territory, not review
		{ID: "e-1", Name: "Acme Ventures", ExternalID: strPtr("rec-1")},
		{ID: "e-2", Name: "Acme Venturez", ExternalID: strPtr("rec-1")},
		// Identical normalized names: also exact territory
		{ID: "e-3", Name: "Basecamp Capital"},
		{ID: "e-4", Name: "basecamp   capital"},
	}

	candidates := FuzzyCandidates("tenant-1", entities, 0.85)

	for _, c := range candidates {
		pair := c.EntityAID + "/" + c.EntityBID
		assert.NotEqual(t, "e-1/e-2", pair)
		assert.NotEqual(t, "e-3/e-4", pair)
	}
}

func TestFuzzyCandidates_ThresholdFiltersPairs(t *testing.T) {
	entities := []models.Entity{
		{ID: "e-1", EntityKind: "firm", Name: "Acme Ventures"},
		{ID: "e-2", EntityKind: "firm", Name: "Acme Venture Partners"},
	}

	loose := FuzzyCandidates("tenant-1", entities, 0.80)
	strict := FuzzyCandidates("tenant-1", entities, 0.999)

	assert.NotEmpty(t, loose)
	assert.Empty(t, strict)
}
