// ABOUTME: Prospect scoring MCP tool handler
// ABOUTME: Implements score_prospects using configured target criteria unless the caller overrides them
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/dealflow/scoring"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ScoringHandlers struct {
	criteria scoring.Criteria
}

func NewScoringHandlers(criteria scoring.Criteria) *ScoringHandlers {
	return &ScoringHandlers{criteria: criteria}
}

type ScoreProspectsInput struct {
	Candidates []scoring.Candidate `json:"candidates" jsonschema:"Lead profiles to score (required)"`
	Criteria   *scoring.Criteria   `json:"criteria,omitempty" jsonschema:"Target titles, companies and keywords; defaults to the configured criteria"`
	Limit      int                 `json:"limit,omitempty" jsonschema:"Only return the top N prospects"`
}

type ScoredProspect struct {
	Name      string             `json:"name"`
	Title     string             `json:"title,omitempty"`
	Company   string             `json:"company,omitempty"`
	Score     float64            `json:"score"`
	Tier      string             `json:"tier,omitempty"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type ScoreProspectsOutput struct {
	Prospects []ScoredProspect `json:"prospects"`
}

func (h *ScoringHandlers) ScoreProspects(_ context.Context, _ *mcp.CallToolRequest, input ScoreProspectsInput) (*mcp.CallToolResult, ScoreProspectsOutput, error) {
	if len(input.Candidates) == 0 {
		return nil, ScoreProspectsOutput{}, fmt.Errorf("candidates is required")
	}

	criteria := h.criteria
	if input.Criteria != nil {
		criteria = *input.Criteria
	}

	ranked := scoring.Rank(input.Candidates, criteria)
	if input.Limit > 0 && input.Limit < len(ranked) {
		ranked = ranked[:input.Limit]
	}

	out := ScoreProspectsOutput{Prospects: make([]ScoredProspect, 0, len(ranked))}
	for _, r := range ranked {
		out.Prospects = append(out.Prospects, ScoredProspect{
			Name:      r.Candidate.Name,
			Title:     r.Candidate.Title,
			Company:   r.Candidate.Company,
			Score:     r.Result.Total,
			Tier:      string(r.Result.Tier),
			Breakdown: r.Result.Breakdown,
		})
	}
	return nil, out, nil
}
