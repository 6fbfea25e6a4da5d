// ABOUTME: Tests for process_update and check_stage_gate tool handlers
// ABOUTME: Drives the full pipeline with a scripted model against an in-memory store
package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/extraction"
	"github.com/harperreed/dealflow/intent"
	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/orchestrator"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedModel(intentJSON, extractionJSON string) llm.Func {
	return func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Extract CRM updates") {
			return extractionJSON, nil
		}
		return intentJSON, nil
	}
}

func newUpdateHandlers(t *testing.T, store *db.Store, model llm.Completer) *UpdateHandlers {
	t.Helper()
	policy := stagegate.DefaultPolicy()
	orch, err := orchestrator.New(orchestrator.Deps{
		Classifier: intent.NewClassifier(model, policy.Stages(), nil),
		Extractor:  extraction.NewExtractor(model, extraction.DefaultSchema(), policy.Stages(), nil),
		Merger:     extraction.NewMerger(policy, extraction.DefaultSchema()),
		Page:       store,
		Policy:     policy,
	}, orchestrator.DefaultOptions())
	require.NoError(t, err)
	return NewUpdateHandlers(orch, store, policy)
}

func TestProcessUpdateAppliesFieldsWhenStageBlocked(t *testing.T) {
	database := setupTestDB(t)
	opp := seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, map[string]any{"Amount": 1000.0})

	model := scriptedModel(
		`{"action": "update_opportunity", "opportunityIdentifier": "Acme Renewal", "confidence": "high"}`,
		`{"stageChange": {"from": "Discovery", "to": "Proposal"},
		  "fieldUpdates": [{"field": "NextStep", "value": "Send proposal Friday", "confidence": "high"}]}`,
	)
	handler := newUpdateHandlers(t, db.NewStore(database), model)

	_, out, err := handler.ProcessUpdate(context.Background(), nil, ProcessUpdateInput{Text: "Acme wants a proposal, sending Friday"})
	require.NoError(t, err)

	assert.Equal(t, string(orchestrator.StatusAppliedStageBlocked), out.Status)
	assert.Equal(t, string(models.ActionUpdateOpportunity), out.Action)
	assert.Equal(t, "high", out.IntentConfidence)
	assert.Equal(t, opp.ID, out.OpportunityID)
	assert.NotEmpty(t, out.RunID)
	assert.False(t, out.StageAdvanced)
	require.NotNil(t, out.StageDecision)
	assert.False(t, out.StageDecision.Allowed)
	assert.Contains(t, out.MissingFields, "budget_confirmed")
	require.Len(t, out.Applied, 1)
	assert.Equal(t, "NextStep", out.Applied[0].Field)

	stored, err := db.GetOpportunity(context.Background(), database, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Send proposal Friday", stored.Fields["NextStep"])
	assert.Equal(t, models.StageDiscovery, stored.Stage)
}

func TestProcessUpdateReportsPipelineErrorsInOutput(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)

	model := scriptedModel(
		`{"action": "update_opportunity", "opportunityIdentifier": "Acme Renewal", "confidence": "high"}`,
		`this is not json`,
	)
	handler := newUpdateHandlers(t, db.NewStore(database), model)

	_, out, err := handler.ProcessUpdate(context.Background(), nil, ProcessUpdateInput{Text: "Acme update"})
	require.NoError(t, err)
	assert.Equal(t, string(orchestrator.StatusFailed), out.Status)
	assert.NotEmpty(t, out.Error)
	assert.NotEmpty(t, out.ErrorKind)
	assert.Empty(t, out.Applied)
}

func TestProcessUpdateValidation(t *testing.T) {
	database := setupTestDB(t)
	store := db.NewStore(database)

	noLLM := NewUpdateHandlers(nil, store, nil)
	_, _, err := noLLM.ProcessUpdate(context.Background(), nil, ProcessUpdateInput{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoLLM)

	handler := newUpdateHandlers(t, store, scriptedModel(`{}`, `{}`))
	_, _, err = handler.ProcessUpdate(context.Background(), nil, ProcessUpdateInput{Text: "   "})
	assert.Error(t, err)
}

func TestCheckStageGateAgainstRecord(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, map[string]any{"Amount": 1000.0})
	handler := NewUpdateHandlers(nil, db.NewStore(database), nil)

	_, out, err := handler.CheckStageGate(context.Background(), nil, CheckStageGateInput{
		Opportunity: "Acme Renewal",
		ToStage:     "proposal",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageDiscovery, out.FromStage)
	assert.Equal(t, models.StageProposal, out.ToStage)
	assert.False(t, out.IsValid)
	assert.Equal(t, []string{"budget_confirmed"}, out.MissingFields)

	_, out, err = handler.CheckStageGate(context.Background(), nil, CheckStageGateInput{
		Opportunity: "Acme Renewal",
		ToStage:     models.StageProposal,
		Fields:      map[string]any{"budget_confirmed": true},
	})
	require.NoError(t, err)
	assert.True(t, out.IsValid)

	stored, err := db.FindOpportunityByName(context.Background(), database, "Acme Renewal")
	require.NoError(t, err)
	_, touched := stored.Fields["budget_confirmed"]
	assert.False(t, touched, "assumed fields must not be written")
}

func TestCheckStageGateWithoutRecord(t *testing.T) {
	handler := NewUpdateHandlers(nil, nil, nil)

	_, out, err := handler.CheckStageGate(context.Background(), nil, CheckStageGateInput{
		FromStage: models.StageProspecting,
		ToStage:   models.StageQualification,
	})
	require.NoError(t, err)
	assert.False(t, out.IsValid)
	assert.Equal(t, []string{"NextStep"}, out.MissingFields)

	_, _, err = handler.CheckStageGate(context.Background(), nil, CheckStageGateInput{ToStage: models.StageProposal})
	assert.Error(t, err)

	_, _, err = handler.CheckStageGate(context.Background(), nil, CheckStageGateInput{Opportunity: "Acme", ToStage: models.StageProposal})
	assert.Error(t, err)
}
