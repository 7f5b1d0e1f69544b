package database

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilder_OnConflictUpdate(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("duplicate_candidates")
	ib.Cols("id", "similarity")
	ib.Values("c-1", 0.9)
	ib.OnConflictUpdate(
		[]string{"tenant_id", "entity_a_id"},
		fmt.Sprintf("similarity = GREATEST(duplicate_candidates.similarity, %s)", Excluded("similarity")),
		fmt.Sprintf("updated_at = %s", Excluded("updated_at")),
	)

	query, args := ib.Build()

	assert.Contains(t, query, "INSERT INTO duplicate_candidates")
	assert.Contains(t, query, "ON CONFLICT (tenant_id, entity_a_id) DO UPDATE SET")
	assert.Contains(t, query, "similarity = GREATEST(duplicate_candidates.similarity, EXCLUDED.similarity)")
	assert.Contains(t, query, "updated_at = EXCLUDED.updated_at")
	assert.Len(t, args, 2)
}

func TestJSONB_ValueAndScan(t *testing.T) {
	type snapshot struct {
		Name string `json:"name"`
	}

	value, err := JSONB[snapshot]{Data: snapshot{Name: "Acme Ventures"}}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Acme Ventures"}`, string(value.([]byte)))

	var out JSONB[snapshot]
	require.NoError(t, out.Scan([]byte(`{"name":"Acme Ventures"}`)))
	assert.Equal(t, "Acme Ventures", out.Data.Name)

	require.NoError(t, out.Scan(`{"name":"Basecamp Capital"}`))
	assert.Equal(t, "Basecamp Capital", out.Data.Name)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out.Data.Name)

	assert.Error(t, out.Scan(42))
}
