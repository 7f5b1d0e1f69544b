package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	data := map[string]any{
		"name":    "Acme Ventures",
		"email":   "hello@acme.vc",
		"sectors": []any{"AI/ML", "Fintech"},
	}

	first := Generate(data)
	second := Generate(data)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestGenerate_NestedKeyOrderIrrelevant(t *testing.T) {
	a := map[string]any{
		"name": "Acme",
		"links": map[string]any{
			"linkedin": "https://linkedin.com/acme",
			"twitter":  "https://twitter.com/acme",
		},
	}
	b := map[string]any{
		"links": map[string]any{
			"twitter":  "https://twitter.com/acme",
			"linkedin": "https://linkedin.com/acme",
		},
		"name": "Acme",
	}

	assert.Equal(t, Generate(a), Generate(b))
}

func TestGenerate_ValueChangesHash(t *testing.T) {
	base := map[string]any{"name": "Acme", "location": "Berlin"}
	changed := map[string]any{"name": "Acme", "location": "Munich"}

	assert.NotEqual(t, Generate(base), Generate(changed))
}

func TestGenerate_SliceOrderMatters(t *testing.T) {
	a := map[string]any{"sectors": []any{"AI/ML", "Fintech"}}
	b := map[string]any{"sectors": []any{"Fintech", "AI/ML"}}

	assert.NotEqual(t, Generate(a), Generate(b))
}

func TestGenerateFromStruct(t *testing.T) {
	type attrs struct {
		Name  string   `json:"name"`
		Email string   `json:"email,omitempty"`
		Tags  []string `json:"tags,omitempty"`
	}

	first, err := GenerateFromStruct(attrs{Name: "Acme", Email: "hello@acme.vc", Tags: []string{"seed"}})
	require.NoError(t, err)

	second, err := GenerateFromStruct(attrs{Name: "Acme", Email: "hello@acme.vc", Tags: []string{"seed"}})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	viaMap := Generate(map[string]any{
		"name":  "Acme",
		"email": "hello@acme.vc",
		"tags":  []any{"seed"},
	})
	assert.Equal(t, viaMap, first)

	changed, err := GenerateFromStruct(attrs{Name: "Acme", Email: "other@acme.vc", Tags: []string{"seed"}})
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestGenerateFromJSON(t *testing.T) {
	first, err := GenerateFromJSON(json.RawMessage(`{"a":1,"b":"two"}`))
	require.NoError(t, err)

	second, err := GenerateFromJSON(json.RawMessage(`{"b":"two","a":1}`))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	_, err = GenerateFromJSON(json.RawMessage(`not json`))
	assert.Error(t, err)
}
