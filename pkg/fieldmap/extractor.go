// Package fieldmap flattens workspace-scoped custom fields from external
// records and maps them onto canonical entity attributes
package fieldmap

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Extract returns the flat custom-field mapping of one workspace. Fields
// belonging to other workspaces the record is a member of are excluded. A
// record with no custom data for the workspace yields an empty map, never an
// error.
func Extract(bag models.FieldBag, workspaceID string) map[string]string {
	out := make(map[string]string)
	if bag == nil {
		return out
	}

	fields, ok := bag[workspaceID]
	if !ok {
		return out
	}

	for name, value := range fields {
		out[name] = renderValue(value)
	}
	return out
}

// renderValue converts a custom-field scalar into its canonical string form.
// The external service stores most values as strings already; numbers and
// booleans arrive via JSON decoding as float64/bool.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, renderValue(item))
		}
		sort.Strings(parts)
		return joinComma(parts)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
