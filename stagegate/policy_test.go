// ABOUTME: Tests for stage gate rule resolution and evaluation
// ABOUTME: Covers open policy, missing fields, self transitions, and wildcard precedence
package stagegate

import (
	"testing"

	"github.com/harperreed/dealflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(stage string, fields map[string]any) models.OpportunityState {
	return models.OpportunityState{ID: "006xx", Name: "Acme Renewal", Stage: stage, Fields: fields}
}

func TestEvaluateTransition_NoRuleIsOpen(t *testing.T) {
	p := DefaultPolicy()

	for _, from := range DefaultStages {
		for _, to := range DefaultStages {
			if _, ok := p.Resolve(from, to); ok {
				continue
			}
			res := p.EvaluateTransition(from, to, record(from, nil))
			assert.True(t, res.IsValid, "%s -> %s", from, to)
			assert.Empty(t, res.MissingFields, "%s -> %s", from, to)
		}
	}
}

func TestEvaluateTransition_MissingRequiredFields(t *testing.T) {
	p := DefaultPolicy()

	res := p.EvaluateTransition(models.StageDiscovery, models.StageProposal, record(models.StageDiscovery, map[string]any{
		"Amount": 25000.0,
	}))

	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"budget_confirmed"}, res.MissingFields)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "A proposal needs a confirmed budget and a deal amount.", res.Warnings[0])
	assert.Contains(t, res.Warnings[1], "Budget Confirmed is required")
}

func TestEvaluateTransition_AllMissingReportedInRuleOrder(t *testing.T) {
	p := DefaultPolicy()

	res := p.EvaluateTransition(models.StageDiscovery, models.StageProposal, record(models.StageDiscovery, map[string]any{}))

	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"budget_confirmed", "Amount"}, res.MissingFields)
}

func TestEvaluateTransition_BlankAndInvalidValuesAreMissing(t *testing.T) {
	p := DefaultPolicy()

	cases := []map[string]any{
		{"budget_confirmed": nil, "Amount": 100.0},
		{"budget_confirmed": "   ", "Amount": 100.0},
		{"budget_confirmed": false, "Amount": 100.0},
		{"budget_confirmed": "not yet", "Amount": 100.0},
	}
	for _, fields := range cases {
		res := p.EvaluateTransition(models.StageDiscovery, models.StageProposal, record(models.StageDiscovery, fields))
		assert.False(t, res.IsValid, "%v", fields)
		assert.Equal(t, []string{"budget_confirmed"}, res.MissingFields, "%v", fields)
	}
}

func TestEvaluateTransition_Satisfied(t *testing.T) {
	p := DefaultPolicy()

	res := p.EvaluateTransition(models.StageDiscovery, models.StageProposal, record(models.StageDiscovery, map[string]any{
		"budget_confirmed": "yes",
		"Amount":           "$120,000",
	}))

	assert.True(t, res.IsValid)
	assert.Empty(t, res.MissingFields)
	assert.Empty(t, res.Warnings)
}

func TestEvaluateTransition_SelfTransitionAlwaysValid(t *testing.T) {
	strict := MustPolicy(nil, []Rule{
		{FromStage: Wildcard, ToStage: models.StageProposal, RequiredFields: []RequiredField{{APIName: "anything"}}},
		{FromStage: models.StageProposal, ToStage: models.StageProposal, RequiredFields: []RequiredField{{APIName: "other"}}},
	})

	res := strict.EvaluateTransition(models.StageProposal, "proposal", record(models.StageProposal, nil))
	assert.True(t, res.IsValid)
	assert.Empty(t, res.MissingFields)
}

func TestResolve_ExactBeatsWildcard(t *testing.T) {
	p := MustPolicy(nil, []Rule{
		{FromStage: Wildcard, ToStage: models.StageClosedWon, RequiredFields: []RequiredField{{APIName: "Amount"}}},
		{FromStage: models.StageNegotiation, ToStage: models.StageClosedWon, RequiredFields: []RequiredField{{APIName: "signed_contract"}}},
	})

	res := p.EvaluateTransition(models.StageNegotiation, models.StageClosedWon, record(models.StageNegotiation, nil))
	assert.Equal(t, []string{"signed_contract"}, res.MissingFields)

	res = p.EvaluateTransition(models.StageProposal, models.StageClosedWon, record(models.StageProposal, nil))
	assert.Equal(t, []string{"Amount"}, res.MissingFields)
}

func TestEvaluateTransition_Deterministic(t *testing.T) {
	p := DefaultPolicy()
	rec := record(models.StageQualification, map[string]any{"pain_points": "slow reporting"})

	first := p.EvaluateTransition(models.StageQualification, models.StageDiscovery, rec)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, p.EvaluateTransition(models.StageQualification, models.StageDiscovery, rec))
	}
}

func TestNewPolicy_RejectsDuplicates(t *testing.T) {
	_, err := NewPolicy(nil, []Rule{
		{FromStage: "A", ToStage: "B"},
		{FromStage: "a", ToStage: "b "},
	})
	assert.Error(t, err)

	_, err = NewPolicy(nil, []Rule{
		{FromStage: "", ToStage: "B"},
		{FromStage: Wildcard, ToStage: "B"},
	})
	assert.Error(t, err)

	_, err = NewPolicy(nil, []Rule{{FromStage: "A"}})
	assert.Error(t, err)
}

func TestNextStage(t *testing.T) {
	p := DefaultPolicy()

	next, ok := p.NextStage("discovery")
	require.True(t, ok)
	assert.Equal(t, models.StageProposal, next)

	next, ok = p.NextStage(models.StageNegotiation)
	require.True(t, ok)
	assert.Equal(t, models.StageClosedWon, next)

	_, ok = p.NextStage(models.StageClosedWon)
	assert.False(t, ok)

	_, ok = p.NextStage("Unknown")
	assert.False(t, ok)
}

func TestValidators(t *testing.T) {
	assert.True(t, IsTrue(true))
	assert.True(t, IsTrue("Yes"))
	assert.False(t, IsTrue("maybe"))
	assert.False(t, IsTrue(1))

	assert.True(t, PositiveNumber(10))
	assert.True(t, PositiveNumber("1,500.50"))
	assert.False(t, PositiveNumber(0.0))
	assert.False(t, PositiveNumber("lots"))

	assert.True(t, Date("2026-11-30"))
	assert.True(t, Date("2026-11-30T10:00:00Z"))
	assert.False(t, Date("next quarter"))

	assert.True(t, Email("jane@acme.com"))
	assert.False(t, Email("jane"))

	_, err := LookupValidator("is_true")
	assert.NoError(t, err)
	_, err = LookupValidator("is_purple")
	assert.Error(t, err)
	v, err := LookupValidator("")
	assert.NoError(t, err)
	assert.Nil(t, v)
}
