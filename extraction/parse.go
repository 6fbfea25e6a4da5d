// ABOUTME: Parse-and-repair of untrusted LLM extraction output
// ABOUTME: Produces a typed Extraction without trusting field presence or types
package extraction

import (
	"errors"
	"strings"

	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/models"
)

// DefaultSource is recorded on updates the model did not attribute.
const DefaultSource = "conversation"

var errNoObject = errors.New("reply contains no JSON object")

// Parse converts a raw model reply into an Extraction. Unparseable replies
// yield an empty extraction and an UpstreamMalformed error; individual bad
// entries are dropped silently.
func Parse(raw string) (models.Extraction, error) {
	out := models.Extraction{FieldUpdates: []models.FieldUpdate{}}

	obj, ok := llm.DecodeObject(raw)
	if !ok {
		return out, models.NewError(models.KindUpstreamMalformed, "parse extraction", errNoObject)
	}

	if sc, ok := lookup(obj, "stageChange", "stage_change").(map[string]any); ok {
		change := &models.StageChange{
			From:   stringOf(lookup(sc, "from")),
			To:     stringOf(lookup(sc, "to")),
			Reason: stringOf(lookup(sc, "reason")),
		}
		if change.To != "" {
			out.StageChange = change
		}
	}

	if items, ok := lookup(obj, "fieldUpdates", "field_updates", "updates").([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			u, ok := parseUpdate(m)
			if !ok {
				continue
			}
			out.FieldUpdates = append(out.FieldUpdates, u)
		}
	}

	out.MissingFields = stringsOf(lookup(obj, "missingFields", "missing_fields"))
	out.Suggestions = stringsOf(lookup(obj, "suggestions"))

	return out, nil
}

func parseUpdate(m map[string]any) (models.FieldUpdate, bool) {
	field := stringOf(lookup(m, "field", "fieldName", "field_name", "apiName"))
	if field == "" {
		return models.FieldUpdate{}, false
	}

	u := models.FieldUpdate{
		Field:      field,
		Value:      lookup(m, "value"),
		Confidence: models.ConfidenceLow,
		Source:     stringOf(lookup(m, "source")),
	}
	switch c := lookup(m, "confidence").(type) {
	case string:
		u.Confidence, _ = models.ParseConfidence(c)
	case float64:
		u.Confidence = models.ConfidenceFromScore(c)
	}
	if s, ok := u.Value.(string); ok {
		u.Value = strings.TrimSpace(s)
	}
	if u.Source == "" {
		u.Source = DefaultSource
	}
	return u, true
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := stringOf(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
