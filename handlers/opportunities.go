// ABOUTME: Opportunity MCP tool handlers
// ABOUTME: Implements get_opportunity, find_opportunities and create_opportunity against the local store
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type OpportunityHandlers struct {
	db     *sql.DB
	policy *stagegate.Policy
}

func NewOpportunityHandlers(database *sql.DB, policy *stagegate.Policy) *OpportunityHandlers {
	if policy == nil {
		policy = stagegate.DefaultPolicy()
	}
	return &OpportunityHandlers{db: database, policy: policy}
}

type OpportunityOutput struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AccountName string         `json:"account_name,omitempty"`
	Stage       string         `json:"stage"`
	Fields      map[string]any `json:"fields"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
	History     []HistoryItem  `json:"history,omitempty"`
}

type HistoryItem struct {
	Field      string `json:"field"`
	OldValue   any    `json:"old_value,omitempty"`
	NewValue   any    `json:"new_value,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Source     string `json:"source,omitempty"`
	ChangedAt  string `json:"changed_at"`
}

type GetOpportunityInput struct {
	Identifier     string `json:"identifier" jsonschema:"Opportunity ID or name (required)"`
	IncludeHistory bool   `json:"include_history,omitempty" jsonschema:"Include the change history"`
}

func (h *OpportunityHandlers) GetOpportunity(ctx context.Context, _ *mcp.CallToolRequest, input GetOpportunityInput) (*mcp.CallToolResult, OpportunityOutput, error) {
	if strings.TrimSpace(input.Identifier) == "" {
		return nil, OpportunityOutput{}, fmt.Errorf("identifier is required")
	}

	opp, err := db.GetOpportunity(ctx, h.db, input.Identifier)
	if err != nil {
		return nil, OpportunityOutput{}, fmt.Errorf("failed to get opportunity: %w", err)
	}
	if opp == nil {
		opp, err = db.FindOpportunityByName(ctx, h.db, input.Identifier)
		if err != nil {
			return nil, OpportunityOutput{}, fmt.Errorf("failed to find opportunity: %w", err)
		}
	}
	if opp == nil {
		return nil, OpportunityOutput{}, fmt.Errorf("opportunity not found: %s", input.Identifier)
	}

	out := opportunityToOutput(opp)
	if input.IncludeHistory {
		history, err := db.GetOpportunityHistory(ctx, h.db, opp.ID)
		if err != nil {
			return nil, OpportunityOutput{}, fmt.Errorf("failed to load history: %w", err)
		}
		for _, e := range history {
			out.History = append(out.History, HistoryItem{
				Field:      e.Field,
				OldValue:   e.OldValue,
				NewValue:   e.NewValue,
				Confidence: e.Confidence,
				Source:     e.Source,
				ChangedAt:  e.ChangedAt.Format(time.RFC3339),
			})
		}
	}
	return nil, out, nil
}

type FindOpportunitiesInput struct {
	Query string `json:"query,omitempty" jsonschema:"Text matched against opportunity and account names"`
	Stage string `json:"stage,omitempty" jsonschema:"Only return opportunities in this stage"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 10)"`
}

type FindOpportunitiesOutput struct {
	Opportunities []OpportunityOutput `json:"opportunities"`
}

func (h *OpportunityHandlers) FindOpportunities(ctx context.Context, _ *mcp.CallToolRequest, input FindOpportunitiesInput) (*mcp.CallToolResult, FindOpportunitiesOutput, error) {
	opps, err := db.FindOpportunities(ctx, h.db, input.Query, input.Stage, input.Limit)
	if err != nil {
		return nil, FindOpportunitiesOutput{}, fmt.Errorf("failed to find opportunities: %w", err)
	}

	out := FindOpportunitiesOutput{Opportunities: make([]OpportunityOutput, 0, len(opps))}
	for i := range opps {
		out.Opportunities = append(out.Opportunities, opportunityToOutput(&opps[i]))
	}
	return nil, out, nil
}

type CreateOpportunityInput struct {
	Name        string         `json:"name" jsonschema:"Opportunity name (required)"`
	AccountName string         `json:"account_name,omitempty" jsonschema:"Account the opportunity belongs to"`
	Stage       string         `json:"stage,omitempty" jsonschema:"Initial stage (defaults to the first pipeline stage)"`
	Fields      map[string]any `json:"fields,omitempty" jsonschema:"Initial field values keyed by API name"`
}

func (h *OpportunityHandlers) CreateOpportunity(ctx context.Context, _ *mcp.CallToolRequest, input CreateOpportunityInput) (*mcp.CallToolResult, OpportunityOutput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, OpportunityOutput{}, fmt.Errorf("name is required")
	}

	stage := input.Stage
	if stage == "" {
		if stages := h.policy.Stages(); len(stages) > 0 {
			stage = stages[0]
		}
	} else {
		if !h.policy.IsKnownStage(stage) {
			return nil, OpportunityOutput{}, fmt.Errorf("invalid stage: %s (valid: %s)", stage, strings.Join(h.policy.Stages(), ", "))
		}
		if canonical := h.policy.CanonicalStage(stage); canonical != "" {
			stage = canonical
		}
	}

	opp := &db.Opportunity{OpportunityState: models.OpportunityState{
		Name:        input.Name,
		AccountName: input.AccountName,
		Stage:       stage,
		Fields:      input.Fields,
	}}
	if err := db.CreateOpportunity(ctx, h.db, opp); err != nil {
		return nil, OpportunityOutput{}, fmt.Errorf("failed to create opportunity: %w", err)
	}
	return nil, opportunityToOutput(opp), nil
}

func opportunityToOutput(opp *db.Opportunity) OpportunityOutput {
	out := OpportunityOutput{
		ID:          opp.ID,
		Name:        opp.Name,
		AccountName: opp.AccountName,
		Stage:       opp.Stage,
		Fields:      opp.Fields,
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	if !opp.CreatedAt.IsZero() {
		out.CreatedAt = opp.CreatedAt.Format(time.RFC3339)
	}
	if !opp.UpdatedAt.IsZero() {
		out.UpdatedAt = opp.UpdatedAt.Format(time.RFC3339)
	}
	return out
}
