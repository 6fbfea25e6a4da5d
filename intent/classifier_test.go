package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyFunc(text string) llm.Func {
	return func(context.Context, string) (string, error) { return text, nil }
}

func TestClassify_UpdateWithSpecificStage(t *testing.T) {
	c := NewClassifier(replyFunc(`{
		"action": "update_opportunity",
		"opportunityIdentifier": "Acme Renewal",
		"information": "budget confirmed at 120k",
		"stageTransition": {"direction": "specific", "targetStage": "Proposal"},
		"confidence": "high"
	}`), nil, nil)

	got, err := c.Classify(context.Background(), "Acme confirmed budget, move them to proposal", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionUpdateOpportunity, got.Action)
	assert.Equal(t, "Acme Renewal", got.OpportunityIdentifier)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	require.NotNil(t, got.StageTransition)
	assert.Equal(t, "Proposal", got.StageTransition.TargetStage)
	assert.Equal(t, models.DirectionSpecific, got.StageTransition.Direction)
	assert.Empty(t, got.ClarificationNeeded)
}

func TestNormalize_UnknownActionBecomesUnclear(t *testing.T) {
	got := Normalize(`{"action": "delete_opportunity", "confidence": "high"}`)

	assert.Equal(t, models.ActionUnclear, got.Action)
	assert.Equal(t, models.ConfidenceLow, got.Confidence)
	require.NotEmpty(t, got.ClarificationNeeded)
	assert.Equal(t, QuestionUnknownAction, got.ClarificationNeeded[0])
}

func TestNormalize_SpecificWithoutTargetDowngrades(t *testing.T) {
	got := Normalize(`{
		"action": "update_opportunity",
		"opportunityIdentifier": "Globex",
		"stageTransition": {"direction": "specific"},
		"confidence": "high"
	}`)

	assert.Equal(t, models.ActionUpdateOpportunity, got.Action)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
	assert.Contains(t, got.ClarificationNeeded, QuestionTargetStage)
}

func TestNormalize_SpecificWithoutTargetKeepsLowConfidence(t *testing.T) {
	got := Normalize(`{"action":"update_opportunity","opportunityIdentifier":"Globex","stageTransition":{"direction":"specific"},"confidence":"low"}`)
	assert.Equal(t, models.ConfidenceLow, got.Confidence)
}

func TestNormalize_MalformedDefaultsToUnclearLow(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"action":`, `["update_opportunity"]`} {
		got := Normalize(raw)
		assert.Equal(t, models.ActionUnclear, got.Action, raw)
		assert.Equal(t, models.ConfidenceLow, got.Confidence, raw)
		assert.NotEmpty(t, got.ClarificationNeeded, raw)
	}
}

func TestNormalize_UnclearAlwaysHasQuestions(t *testing.T) {
	got := Normalize(`{"action": "unclear", "confidence": "medium"}`)
	assert.Equal(t, models.ActionUnclear, got.Action)
	assert.Equal(t, []string{QuestionWhatToDo}, got.ClarificationNeeded)

	got = Normalize(`{"action": "unclear", "clarificationNeeded": ["Which account?", "Which account?", ""]}`)
	assert.Equal(t, []string{"Which account?"}, got.ClarificationNeeded)
}

func TestNormalize_SnakeCaseAndNumericConfidence(t *testing.T) {
	got := Normalize("```json\n{\"action\":\"search_opportunity\",\"account_name\":\"Initech\",\"confidence\":0.65}\n```")

	assert.Equal(t, models.ActionSearchOpportunity, got.Action)
	assert.Equal(t, "Initech", got.AccountName)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
}

func TestNormalize_UpdateWithoutTargetRecordAsksWhich(t *testing.T) {
	got := Normalize(`{"action":"update_opportunity","information":"they signed","confidence":"high"}`)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
	assert.Contains(t, got.ClarificationNeeded, QuestionWhichOpp)
}

func TestNormalize_TargetStageImpliesSpecific(t *testing.T) {
	got := Normalize(`{"action":"update_opportunity","opportunityIdentifier":"X","stage_transition":{"target_stage":"Negotiation"},"confidence":"high"}`)
	require.NotNil(t, got.StageTransition)
	assert.Equal(t, models.DirectionSpecific, got.StageTransition.Direction)
}

func TestClassify_EmptyTextSkipsLLM(t *testing.T) {
	called := false
	c := NewClassifier(llm.Func(func(context.Context, string) (string, error) {
		called = true
		return "{}", nil
	}), nil, nil)

	got, err := c.Classify(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, models.ActionUnclear, got.Action)
}

func TestClassify_CollaboratorErrorIsClassified(t *testing.T) {
	c := NewClassifier(llm.Func(func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	}), nil, nil)

	got, err := c.Classify(context.Background(), "update acme", nil)
	require.Error(t, err)
	assert.Equal(t, models.KindUpstreamUnavailable, models.KindOf(err))
	assert.Equal(t, models.ActionUnclear, got.Action)
	assert.NotEmpty(t, got.ClarificationNeeded)
}

func TestClassify_PromptIncludesHistoryAndStages(t *testing.T) {
	var prompt string
	c := NewClassifier(llm.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"action":"unclear"}`, nil
	}), []string{"Discovery", "Proposal"}, nil)

	_, err := c.Classify(context.Background(), "move it forward", []models.Turn{{Role: "user", Content: "We talked to Acme today"}})
	require.NoError(t, err)

	assert.True(t, strings.Contains(prompt, "Discovery, Proposal"))
	assert.True(t, strings.Contains(prompt, "user: We talked to Acme today"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "move it forward"))
}
