// ABOUTME: Tests for MCP resource and prompt handlers
// ABOUTME: Verifies dealflow:// URIs and prompt templates render from the store
package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readResource(t *testing.T, h *ResourceHandlers, uri string) string {
	t.Helper()
	result, err := h.ReadResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, uri, result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)
	return result.Contents[0].Text
}

func TestReadPipelineResource(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)
	seedOpportunity(t, database, "Globex Pilot", models.StageDiscovery, nil)
	seedOpportunity(t, database, "Initech Upsell", models.StageNegotiation, nil)

	text := readResource(t, NewResourceHandlers(database, nil), "dealflow://pipeline")

	var stages []pipelineStage
	require.NoError(t, json.Unmarshal([]byte(text), &stages))
	require.Len(t, stages, 7)
	assert.Equal(t, models.StageProspecting, stages[0].Stage)

	counts := map[string]int{}
	for _, s := range stages {
		counts[s.Stage] = s.Count
	}
	assert.Equal(t, 2, counts[models.StageDiscovery])
	assert.Equal(t, 1, counts[models.StageNegotiation])
	assert.Equal(t, 0, counts[models.StageProposal])
}

func TestReadRulesResource(t *testing.T) {
	text := readResource(t, NewResourceHandlers(setupTestDB(t), nil), "dealflow://rules")

	var rules []ruleView
	require.NoError(t, json.Unmarshal([]byte(text), &rules))
	require.NotEmpty(t, rules)
	assert.Equal(t, models.StageProspecting, rules[0].From)
	assert.Equal(t, []string{"NextStep"}, rules[0].Required)
}

func TestReadOpportunityResources(t *testing.T) {
	database := setupTestDB(t)
	opp := seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)
	require.NoError(t, db.AdvanceStage(context.Background(), database, opp.ID, models.StageProposal))
	h := NewResourceHandlers(database, nil)

	list := readResource(t, h, "dealflow://opportunities")
	assert.Contains(t, list, "Acme Renewal")

	single := readResource(t, h, "dealflow://opportunities/"+opp.ID)
	var view struct {
		ID      string            `json:"id"`
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(single), &view))
	assert.Equal(t, opp.ID, view.ID)
	assert.Len(t, view.History, 1)
	assert.Contains(t, single, models.StageProposal)
}

func TestReadResourceErrors(t *testing.T) {
	h := NewResourceHandlers(setupTestDB(t), nil)

	for _, uri := range []string{"crm://deals", "dealflow://unknown", "dealflow://opportunities/missing"} {
		_, err := h.ReadResource(context.Background(), &mcp.ReadResourceRequest{
			Params: &mcp.ReadResourceParams{URI: uri},
		})
		assert.Error(t, err, uri)
	}
}

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, result.Messages, 1)
	content, ok := result.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestStageReadinessPrompt(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, map[string]any{"Amount": 1000.0})
	h := NewPromptHandlers(database, nil)

	result, err := h.GetPrompt(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{
			Name:      PromptStageReadiness,
			Arguments: map[string]string{"opportunity": "Acme Renewal"},
		},
	})
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, "Target stage: Proposal")
	assert.Contains(t, text, "Budget Confirmed")
	assert.Contains(t, text, "Amount: 1000")
}

func TestStageReadinessPromptErrors(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Lost Deal", models.StageClosedLost, nil)
	h := NewPromptHandlers(database, nil)

	cases := map[string]map[string]string{
		"missing opportunity": {},
		"unknown opportunity": {"opportunity": "Nobody"},
		"no next stage":       {"opportunity": "Lost Deal"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.GetPrompt(context.Background(), &mcp.GetPromptRequest{
				Params: &mcp.GetPromptParams{Name: PromptStageReadiness, Arguments: args},
			})
			assert.Error(t, err)
		})
	}
}

func TestPipelineReviewPrompt(t *testing.T) {
	database := setupTestDB(t)
	seedOpportunity(t, database, "Acme Renewal", models.StageDiscovery, nil)
	seedOpportunity(t, database, "Won Deal", models.StageClosedWon, nil)
	h := NewPromptHandlers(database, nil)

	result, err := h.GetPrompt(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Name: PromptPipelineReview},
	})
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, "Acme Renewal (Discovery -> Proposal): missing budget_confirmed, Amount")
	assert.NotContains(t, text, "Won Deal")

	_, err = h.GetPrompt(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Name: "nope"},
	})
	assert.Error(t, err)
}
