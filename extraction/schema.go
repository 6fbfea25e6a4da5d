// ABOUTME: Field schema listing which opportunity fields are writable per stage
// ABOUTME: Field names match case-insensitively and resolve to the schema's spelling
package extraction

import (
	"sort"
	"strings"
)

// CommonFields is the Schema key for fields recognized at every stage.
const CommonFields = "*"

// Schema lists the opportunity fields that may be written at each stage.
// An empty Schema recognizes every field.
type Schema map[string][]string

// DefaultSchema covers the fields the default gate rules require plus the
// standard opportunity fields.
func DefaultSchema() Schema {
	return Schema{
		CommonFields: {
			"Amount", "CloseDate", "NextStep", "Description", "Probability",
			"budget_confirmed", "decision_maker", "pain_points", "competitors",
			"loss_reason",
		},
	}
}

// Recognizes reports whether field may be written while the record is in stage.
func (s Schema) Recognizes(stage, field string) bool {
	if len(s) == 0 {
		return true
	}
	for _, f := range s[CommonFields] {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	for key, fields := range s {
		if key == CommonFields || !strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(stage)) {
			continue
		}
		for _, f := range fields {
			if strings.EqualFold(f, field) {
				return true
			}
		}
	}
	return false
}

// Canonical returns the schema's spelling of field, or field unchanged.
// Common fields take precedence over stage-specific ones.
func (s Schema) Canonical(stage, field string) string {
	for _, f := range s[CommonFields] {
		if strings.EqualFold(f, field) {
			return f
		}
	}
	keys := make([]string, 0, len(s))
	for key := range s {
		if key != CommonFields && strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(stage)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, f := range s[key] {
			if strings.EqualFold(f, field) {
				return f
			}
		}
	}
	return field
}

// FieldsFor lists the fields recognized at stage, sorted.
func (s Schema) FieldsFor(stage string) []string {
	seen := map[string]bool{}
	var out []string
	for key, fields := range s {
		if key != CommonFields && !strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(stage)) {
			continue
		}
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}
