package handlers

import (
	"context"
	"testing"

	"github.com/harperreed/dealflow/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreProspects(t *testing.T) {
	criteria := scoring.Criteria{
		TargetTitles:    []string{"VP Engineering"},
		TargetCompanies: []string{"Acme"},
		Keywords:        []string{"kubernetes"},
	}
	handler := NewScoringHandlers(criteria)

	_, out, err := handler.ScoreProspects(context.Background(), nil, ScoreProspectsInput{
		Candidates: []scoring.Candidate{
			{Name: "Pat Intern", Title: "Engineering Intern", Company: "Elsewhere"},
			{Name: "Dana Lead", Title: "VP Engineering", Company: "Acme", Skills: []string{"Kubernetes"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, out.Prospects, 2)
	assert.Equal(t, "Dana Lead", out.Prospects[0].Name)
	assert.Equal(t, string(scoring.TierVP), out.Prospects[0].Tier)
	assert.Greater(t, out.Prospects[0].Score, out.Prospects[1].Score)
	assert.Len(t, out.Prospects[0].Breakdown, len(scoring.Factors))
}

func TestScoreProspectsOverridesAndLimit(t *testing.T) {
	handler := NewScoringHandlers(scoring.Criteria{TargetCompanies: []string{"Acme"}})

	_, out, err := handler.ScoreProspects(context.Background(), nil, ScoreProspectsInput{
		Candidates: []scoring.Candidate{
			{Name: "A", Company: "Acme"},
			{Name: "B", Company: "Globex"},
		},
		Criteria: &scoring.Criteria{TargetCompanies: []string{"Globex"}},
		Limit:    1,
	})
	require.NoError(t, err)
	require.Len(t, out.Prospects, 1)
	assert.Equal(t, "B", out.Prospects[0].Name)

	_, _, err = handler.ScoreProspects(context.Background(), nil, ScoreProspectsInput{})
	assert.Error(t, err)
}
