// ABOUTME: MCP prompt handlers for reusable opportunity workflow templates
// ABOUTME: Provides stage-readiness and pipeline-review prompts built from the gate table and store
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Prompt names.
const (
	PromptStageReadiness = "stage-readiness"
	PromptPipelineReview = "pipeline-review"
)

type PromptHandlers struct {
	db     *sql.DB
	policy *stagegate.Policy
}

func NewPromptHandlers(database *sql.DB, policy *stagegate.Policy) *PromptHandlers {
	if policy == nil {
		policy = stagegate.DefaultPolicy()
	}
	return &PromptHandlers{db: database, policy: policy}
}

// Prompts lists the prompt definitions for registration.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        PromptStageReadiness,
			Description: "What an opportunity still needs before it can move to a stage",
			Arguments: []*mcp.PromptArgument{
				{Name: "opportunity", Description: "Opportunity ID or name", Required: true},
				{Name: "to_stage", Description: "Target stage (defaults to the next stage)"},
			},
		},
		{
			Name:        PromptPipelineReview,
			Description: "Review every open opportunity against its next stage gate",
		},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case PromptStageReadiness:
		return h.getStageReadinessPrompt(ctx, request.Params.Arguments)
	case PromptPipelineReview:
		return h.getPipelineReviewPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getStageReadinessPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	identifier := strings.TrimSpace(args["opportunity"])
	if identifier == "" {
		return nil, fmt.Errorf("opportunity is required")
	}

	state, err := db.NewStore(h.db).ReadOpportunity(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunity: %w", err)
	}

	to := strings.TrimSpace(args["to_stage"])
	if to == "" {
		next, ok := h.policy.NextStage(state.Stage)
		if !ok {
			return nil, fmt.Errorf("%s has no next stage after %s", state.Name, state.Stage)
		}
		to = next
	} else if canonical := h.policy.CanonicalStage(to); canonical != "" {
		to = canonical
	}

	verdict := h.policy.EvaluateTransition(state.Stage, to, state)

	var promptText strings.Builder
	promptText.WriteString(fmt.Sprintf("Opportunity: %s\n", state.Name))
	if state.AccountName != "" {
		promptText.WriteString(fmt.Sprintf("Account: %s\n", state.AccountName))
	}
	promptText.WriteString(fmt.Sprintf("Current stage: %s\nTarget stage: %s\n\n", state.Stage, to))

	if verdict.IsValid {
		promptText.WriteString("Every field the gate requires is present.\n")
	} else {
		promptText.WriteString("Missing before the move:\n")
		for _, w := range verdict.Warnings {
			promptText.WriteString(fmt.Sprintf("  - %s\n", w))
		}
	}

	if len(state.Fields) > 0 {
		promptText.WriteString("\nKnown fields:\n")
		keys := make([]string, 0, len(state.Fields))
		for k := range state.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			promptText.WriteString(fmt.Sprintf("  - %s: %v\n", k, state.Fields[k]))
		}
	}

	promptText.WriteString("\nPlease suggest the questions the rep should ask the buyer to fill the gaps, ")
	promptText.WriteString("and draft a short next-step plan.")

	return textPrompt(fmt.Sprintf("Stage readiness for %s", state.Name), promptText.String()), nil
}

func (h *PromptHandlers) getPipelineReviewPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	opps, err := db.FindOpportunities(ctx, h.db, "", "", 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review the open pipeline:\n\n")
	open := 0
	for _, o := range opps {
		next, ok := h.policy.NextStage(o.Stage)
		if !ok {
			continue
		}
		open++
		verdict := h.policy.EvaluateTransition(o.Stage, next, o.OpportunityState)
		status := "ready"
		if !verdict.IsValid {
			status = "missing " + strings.Join(verdict.MissingFields, ", ")
		}
		promptText.WriteString(fmt.Sprintf("  - %s (%s -> %s): %s\n", o.Name, o.Stage, next, status))
	}
	if open == 0 {
		promptText.WriteString("  (no open opportunities)\n")
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Which deals are blocked and what would unblock them")
	promptText.WriteString("\n2. Which ready deals should be advanced first")

	return textPrompt("Pipeline review", promptText.String()), nil
}

func textPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}
