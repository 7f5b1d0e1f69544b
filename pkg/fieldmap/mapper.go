package fieldmap

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Mapping configures how one entity kind's custom fields translate into
// canonical attributes. Mapping is pure: the same record and field set always
// produce the same output.
type Mapping struct {
	EntityKind string

	// Ordered column lists scanned for the "x" multi-select convention
	SectorColumns []string
	StageColumns  []string

	// Fallback chains tried in priority order before the standard field
	WebsiteChain  []string
	LocationChain []string
	EmailChain    []string
	PhoneChain    []string
	BioChain      []string

	// Custom-field name carrying the free-text classification
	ClassificationField string

	SocialLinkFields map[string]string
}

// DefaultMapping returns the mapping configuration for an entity kind
func DefaultMapping(kind string) *Mapping {
	m := &Mapping{
		EntityKind: kind,
		SectorColumns: []string{
			"AI/ML", "Biotech", "Climate", "Consumer", "Crypto", "Deep Tech",
			"Energy", "Fintech", "Healthcare", "SaaS",
		},
		StageColumns: []string{
			"Pre-Seed", "Seed", "Series A", "Series B", "Growth",
		},
		WebsiteChain:        []string{"Website", "Company Website", "URL"},
		LocationChain:       []string{"Location", "HQ Location", "City"},
		EmailChain:          []string{"Email", "Primary Email", "Contact Email"},
		PhoneChain:          []string{"Phone", "Phone Number"},
		BioChain:            []string{"Bio", "About", "Description"},
		ClassificationField: "Investor Type",
		SocialLinkFields: map[string]string{
			"linkedin": "LinkedIn",
			"twitter":  "Twitter",
		},
	}

	switch kind {
	case string(models.EntityKindContact):
		m.SectorColumns = nil
		m.StageColumns = nil
		m.ClassificationField = ""
	case string(models.EntityKindFirm):
		m.ClassificationField = "Firm Type"
	}

	return m
}

// Map builds the canonical attribute set for one external record from its
// flat custom-field mapping plus the record-level standard fields.
func (m *Mapping) Map(record *models.ExternalRecord, fields map[string]string) models.MappedFields {
	mapped := models.MappedFields{
		ExternalID: record.ID,
		Name:       strings.TrimSpace(record.Name),
		Sectors:    BooleanColumns(fields, m.SectorColumns),
		Stages:     BooleanColumns(fields, m.StageColumns),
	}

	mapped.Email = resolveChain(fields, m.EmailChain, record.Email)
	mapped.Phone = resolveChain(fields, m.PhoneChain, record.Phone)
	mapped.Website = resolveChain(fields, m.WebsiteChain, record.Website)
	mapped.Location = resolveChain(fields, m.LocationChain, record.Location)
	mapped.Bio = resolveChain(fields, m.BioChain, "")

	if m.ClassificationField != "" {
		raw, ok := fields[m.ClassificationField]
		if !ok {
			raw = record.Type
		}
		mapped.Classification = NormalizeClassification(raw)
	}

	links := make(map[string]string)
	for key, fieldName := range m.SocialLinkFields {
		if v := strings.TrimSpace(fields[fieldName]); v != "" {
			links[key] = v
		}
	}
	if len(links) > 0 {
		mapped.SocialLinks = links
	}

	return mapped
}

// BooleanColumns scans the configured column list and collects the names
// whose value, trimmed and case-folded, equals exactly "x". The external
// service encodes multi-select checkboxes this way; values like "yes" or
// "--" do not count as set. Output order follows the configured list.
func BooleanColumns(fields map[string]string, columns []string) []string {
	var out []string
	for _, col := range columns {
		value, ok := fields[col]
		if !ok {
			continue
		}
		if strings.ToLower(strings.TrimSpace(value)) == "x" {
			out = append(out, col)
		}
	}
	return out
}

// resolveChain tries each candidate custom-field name in priority order and
// falls back to the standard field when every candidate is absent or blank.
// Returns nil when nothing resolves.
func resolveChain(fields map[string]string, chain []string, standard string) *string {
	for _, name := range chain {
		if v := strings.TrimSpace(fields[name]); v != "" {
			return &v
		}
	}
	if v := strings.TrimSpace(standard); v != "" {
		return &v
	}
	return nil
}
