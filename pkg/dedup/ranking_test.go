package dedup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestCompleteness(t *testing.T) {
	empty := models.Entity{ID: "e-1", Name: "Acme"}
	assert.Equal(t, 0, Completeness(&empty))

	full := models.Entity{
		ID:             "e-2",
		Name:           "Acme",
		Email:          strPtr("hello@acme.vc"),
		Phone:          strPtr("+1 415 555 1234"),
		Website:        strPtr("https://acme.vc"),
		Location:       strPtr("Berlin"),
		Classification: strPtr("vc"),
		Bio:            strPtr("Early stage fund"),
		Sectors:        json.RawMessage(`["AI/ML"]`),
		Stages:         json.RawMessage(`["Seed"]`),
		Contacts:       json.RawMessage(`[{"name":"Jane"}]`),
		SocialLinks:    json.RawMessage(`{"linkedin":"https://linkedin.com/acme"}`),
	}
	assert.Equal(t, 10, Completeness(&full))
}

func TestCompleteness_EmptyJSONVariantsDoNotCount(t *testing.T) {
	e := models.Entity{
		ID:          "e-1",
		Name:        "Acme",
		Email:       strPtr(""),
		Sectors:     json.RawMessage(`[]`),
		Stages:      json.RawMessage(`null`),
		Contacts:    json.RawMessage(`{}`),
		SocialLinks: json.RawMessage(``),
		Bio:         nil,
	}

	assert.Equal(t, 0, Completeness(&e))
}

func TestRank_MostCompleteWins(t *testing.T) {
	sparse := models.Entity{ID: "e-1", Name: "Acme"}
	rich := models.Entity{
		ID:      "e-2",
		Name:    "Acme",
		Email:   strPtr("hello@acme.vc"),
		Website: strPtr("https://acme.vc"),
	}
	middle := models.Entity{ID: "e-3", Name: "Acme", Email: strPtr("x@acme.vc")}

	winner, losers := Rank([]models.Entity{sparse, rich, middle})

	assert.Equal(t, "e-2", winner.ID)
	assert.Len(t, losers, 2)

	ids := []string{losers[0].ID, losers[1].ID}
	assert.Contains(t, ids, "e-1")
	assert.Contains(t, ids, "e-3")
}

func TestRank_TieBreaksByAge(t *testing.T) {
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	a := models.Entity{ID: "e-newer", Name: "Acme", Email: strPtr("x@acme.vc"), CreatedAt: newer}
	b := models.Entity{ID: "e-older", Name: "Acme", Email: strPtr("y@acme.vc"), CreatedAt: older}

	winner, losers := Rank([]models.Entity{a, b})

	assert.Equal(t, "e-older", winner.ID)
	assert.Len(t, losers, 1)
	assert.Equal(t, "e-newer", losers[0].ID)

	// Order of the input does not change the outcome
	winner, _ = Rank([]models.Entity{b, a})
	assert.Equal(t, "e-older", winner.ID)
}

func TestRank_CompletenessBeatsAge(t *testing.T) {
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	sparseOld := models.Entity{ID: "e-1", Name: "Acme", CreatedAt: older}
	richNew := models.Entity{ID: "e-2", Name: "Acme", Email: strPtr("x@acme.vc"), CreatedAt: newer}

	winner, losers := Rank([]models.Entity{sparseOld, richNew})

	assert.Equal(t, "e-2", winner.ID)
	assert.Equal(t, "e-1", losers[0].ID)
}

func TestRank_SingleMember(t *testing.T) {
	only := models.Entity{ID: "e-1", Name: "Acme"}

	winner, losers := Rank([]models.Entity{only})

	assert.Equal(t, "e-1", winner.ID)
	assert.Empty(t, losers)
}
