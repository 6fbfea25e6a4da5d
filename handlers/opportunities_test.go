// ABOUTME: Tests for opportunity MCP tool handlers
// ABOUTME: Validates tool input/output and error handling against an in-memory store
package handlers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func seedOpportunity(t *testing.T, database *sql.DB, name, stage string, fields map[string]any) *db.Opportunity {
	t.Helper()
	opp := &db.Opportunity{OpportunityState: models.OpportunityState{
		Name:        name,
		AccountName: "Acme Corp",
		Stage:       stage,
		Fields:      fields,
	}}
	require.NoError(t, db.CreateOpportunity(context.Background(), database, opp))
	return opp
}

func TestCreateOpportunity(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)

	_, out, err := handler.CreateOpportunity(context.Background(), nil, CreateOpportunityInput{
		Name:        "Acme Renewal",
		AccountName: "Acme Corp",
		Stage:       "discovery",
		Fields:      map[string]any{"Amount": 5000.0},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "Acme Renewal", out.Name)
	assert.Equal(t, models.StageDiscovery, out.Stage, "stage should be canonicalized")
	assert.Equal(t, 5000.0, out.Fields["Amount"])
	assert.NotEmpty(t, out.CreatedAt)
}

func TestCreateOpportunityDefaultsToFirstStage(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)

	_, out, err := handler.CreateOpportunity(context.Background(), nil, CreateOpportunityInput{Name: "Globex Pilot"})
	require.NoError(t, err)
	assert.Equal(t, models.StageProspecting, out.Stage)
	assert.NotNil(t, out.Fields)
}

func TestCreateOpportunityValidation(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)

	_, _, err := handler.CreateOpportunity(context.Background(), nil, CreateOpportunityInput{Name: "  "})
	assert.Error(t, err)

	_, _, err = handler.CreateOpportunity(context.Background(), nil, CreateOpportunityInput{Name: "Bad", Stage: "Daydreaming"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stage")
}

func TestGetOpportunityByIDAndName(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)
	opp := seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)

	_, byID, err := handler.GetOpportunity(context.Background(), nil, GetOpportunityInput{Identifier: opp.ID})
	require.NoError(t, err)
	assert.Equal(t, "Acme Renewal", byID.Name)

	_, byName, err := handler.GetOpportunity(context.Background(), nil, GetOpportunityInput{Identifier: "acme renewal"})
	require.NoError(t, err)
	assert.Equal(t, opp.ID, byName.ID)

	_, _, err = handler.GetOpportunity(context.Background(), nil, GetOpportunityInput{Identifier: "Nobody"})
	assert.Error(t, err)

	_, _, err = handler.GetOpportunity(context.Background(), nil, GetOpportunityInput{})
	assert.Error(t, err)
}

func TestGetOpportunityIncludesHistory(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)
	opp := seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)

	ctx := context.Background()
	require.NoError(t, db.WriteFields(ctx, database, opp.ID, []models.FieldUpdate{
		{Field: "NextStep", Value: "Demo Tuesday", Confidence: models.ConfidenceHigh, Source: "rep"},
	}))
	require.NoError(t, db.AdvanceStage(ctx, database, opp.ID, models.StageProposal))

	_, out, err := handler.GetOpportunity(ctx, nil, GetOpportunityInput{Identifier: opp.ID, IncludeHistory: true})
	require.NoError(t, err)

	require.Len(t, out.History, 2)
	assert.Equal(t, "NextStep", out.History[0].Field)
	assert.Equal(t, "Demo Tuesday", out.History[0].NewValue)
	assert.Equal(t, "high", out.History[0].Confidence)
	assert.Equal(t, db.StageField, out.History[1].Field)
	assert.Equal(t, models.StageProposal, out.Stage)
}

func TestFindOpportunities(t *testing.T) {
	database := setupTestDB(t)
	handler := NewOpportunityHandlers(database, nil)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)
	seedOpportunity(t, database, "Acme Expansion", models.StageProposal, nil)
	seedOpportunity(t, database, "Globex Pilot", models.StageDiscovery, nil)

	_, out, err := handler.FindOpportunities(context.Background(), nil, FindOpportunitiesInput{Query: "acme"})
	require.NoError(t, err)
	assert.Len(t, out.Opportunities, 2)

	_, out, err = handler.FindOpportunities(context.Background(), nil, FindOpportunitiesInput{Stage: models.StageDiscovery})
	require.NoError(t, err)
	assert.Len(t, out.Opportunities, 2)

	_, out, err = handler.FindOpportunities(context.Background(), nil, FindOpportunitiesInput{Query: "initech"})
	require.NoError(t, err)
	assert.NotNil(t, out.Opportunities)
	assert.Empty(t, out.Opportunities)
}
