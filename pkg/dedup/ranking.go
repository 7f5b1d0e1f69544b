package dedup

import (
	"bytes"
	"encoding/json"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Rank splits a duplicate group into the winner and the losers. The entity
// with the most non-empty domain fields wins; on a tie, the older createdAt
// wins so stable identifiers and inbound references survive.
func Rank(members []models.Entity) (winner models.Entity, losers []models.Entity) {
	winner = members[0]
	winnerScore := Completeness(&winner)

	for _, m := range members[1:] {
		score := Completeness(&m)
		switch {
		case score > winnerScore:
			losers = append(losers, winner)
			winner = m
			winnerScore = score
		case score == winnerScore && m.CreatedAt.Before(winner.CreatedAt):
			losers = append(losers, winner)
			winner = m
		default:
			losers = append(losers, m)
		}
	}
	return winner, losers
}

// Completeness counts the non-empty domain fields of an entity
func Completeness(e *models.Entity) int {
	count := 0
	for _, v := range e.CompletenessFields() {
		if !isEmptyValue(v) {
			count++
		}
	}
	return count
}

var emptyJSON = [][]byte{
	[]byte("null"),
	[]byte("[]"),
	[]byte("{}"),
	[]byte(`""`),
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *string:
		return val == nil || *val == ""
	case string:
		return val == ""
	case json.RawMessage:
		if len(val) == 0 {
			return true
		}
		trimmed := bytes.TrimSpace(val)
		for _, e := range emptyJSON {
			if bytes.Equal(trimmed, e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
