// Package normalizers provides field normalization functions used for
// duplicate grouping keys and mapper fallbacks
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("nname", NormalizeName)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims the string and folds runs of internal whitespace
// into single spaces
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes an entity name for grouping: case-folded and
// whitespace-collapsed. Punctuation stays so distinct legal names do not
// collide.
func NormalizeName(s string) string {
	return CollapseWhitespace(strings.ToLower(s))
}

// IdentityKey builds the duplicate grouping key for an entity: the external
// identity when present, otherwise the normalized name. Returns "" when
// neither is usable, meaning the entity joins no group.
func IdentityKey(externalID *string, name string) string {
	if externalID != nil && strings.TrimSpace(*externalID) != "" {
		return "ext:" + strings.TrimSpace(*externalID)
	}
	n := NormalizeName(name)
	if n == "" {
		return ""
	}
	return "name:" + n
}
