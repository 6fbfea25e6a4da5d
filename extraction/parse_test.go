package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WellFormed(t *testing.T) {
	ext, err := Parse(`{
		"stageChange": {"from": "Discovery", "to": "Proposal", "reason": "budget approved"},
		"fieldUpdates": [
			{"field": "Amount", "value": 120000, "confidence": "high", "source": "call notes"},
			{"field": "budget_confirmed", "value": true, "confidence": "medium"}
		],
		"missingFields": ["CloseDate"],
		"suggestions": ["Ask about procurement timeline"]
	}`)
	require.NoError(t, err)

	require.NotNil(t, ext.StageChange)
	assert.Equal(t, "Proposal", ext.StageChange.To)
	require.Len(t, ext.FieldUpdates, 2)
	assert.Equal(t, 120000.0, ext.FieldUpdates[0].Value)
	assert.Equal(t, "call notes", ext.FieldUpdates[0].Source)
	assert.Equal(t, DefaultSource, ext.FieldUpdates[1].Source)
	assert.Equal(t, models.ConfidenceMedium, ext.FieldUpdates[1].Confidence)
	assert.Equal(t, []string{"CloseDate"}, ext.MissingFields)
	assert.Equal(t, []string{"Ask about procurement timeline"}, ext.Suggestions)
}

func TestParse_RepairsPartialShapes(t *testing.T) {
	ext, err := Parse("Here is the data:\n```json\n" + `{
		"stage_change": {"from": "Discovery"},
		"field_updates": [
			{"value": "orphan"},
			"not an object",
			{"field_name": "NextStep", "value": "  demo Tuesday ", "confidence": 0.9},
			{"field": "Probability", "value": 40, "confidence": "very sure"}
		],
		"missing_fields": ["", "CloseDate", 7]
	}` + "\n```")
	require.NoError(t, err)

	assert.Nil(t, ext.StageChange, "stage change without a target is dropped")
	require.Len(t, ext.FieldUpdates, 2)
	assert.Equal(t, "NextStep", ext.FieldUpdates[0].Field)
	assert.Equal(t, "demo Tuesday", ext.FieldUpdates[0].Value)
	assert.Equal(t, models.ConfidenceHigh, ext.FieldUpdates[0].Confidence)
	assert.Equal(t, models.ConfidenceLow, ext.FieldUpdates[1].Confidence)
	assert.Equal(t, []string{"CloseDate"}, ext.MissingFields)
}

func TestParse_MalformedIsClassified(t *testing.T) {
	ext, err := Parse("I could not find anything useful.")
	require.Error(t, err)
	assert.Equal(t, models.KindUpstreamMalformed, models.KindOf(err))
	assert.Empty(t, ext.FieldUpdates)
	assert.Nil(t, ext.StageChange)
}

func TestExtractor_PromptAndErrors(t *testing.T) {
	var prompt string
	ex := NewExtractor(llm.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"fieldUpdates":[{"field":"NextStep","value":"demo","confidence":"high"}]}`, nil
	}), DefaultSchema(), []string{"Discovery", "Proposal"}, nil)

	current := models.OpportunityState{ID: "006A", Name: "Acme Renewal", Stage: "Discovery", Fields: map[string]any{"Amount": 5}}
	ext, err := ex.Extract(context.Background(), "Booked a demo for Tuesday", current)
	require.NoError(t, err)
	assert.Len(t, ext.FieldUpdates, 1)

	assert.True(t, strings.Contains(prompt, "Current stage: Discovery"))
	assert.True(t, strings.Contains(prompt, `"Amount":5`))
	assert.True(t, strings.Contains(prompt, "budget_confirmed"))
	assert.True(t, strings.Contains(prompt, "Booked a demo for Tuesday"))

	failing := NewExtractor(llm.Func(func(context.Context, string) (string, error) {
		return "", errors.New("503")
	}), nil, nil, nil)
	_, err = failing.Extract(context.Background(), "x", current)
	assert.Equal(t, models.KindUpstreamUnavailable, models.KindOf(err))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	// "é" is two bytes; a cut at byte 2 would split it.
	got := truncate("aébc", 2)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "a...", got)

	assert.Equal(t, "aé...", truncate("aébc", 3))
}
