// ABOUTME: Conversational update MCP tool handlers
// ABOUTME: Implements process_update and check_stage_gate on top of the orchestrator and gate policy
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/crm"
	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/orchestrator"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrNoLLM is returned by process_update when no LLM is configured.
var ErrNoLLM = errors.New("process_update needs an LLM: set ANTHROPIC_API_KEY or GEMINI_API_KEY")

type UpdateHandlers struct {
	orch   *orchestrator.Orchestrator
	page   crm.Page
	policy *stagegate.Policy
}

// NewUpdateHandlers wires the tools. orch may be nil, in which case only
// check_stage_gate works.
func NewUpdateHandlers(orch *orchestrator.Orchestrator, page crm.Page, policy *stagegate.Policy) *UpdateHandlers {
	if policy == nil {
		policy = stagegate.DefaultPolicy()
	}
	return &UpdateHandlers{orch: orch, page: page, policy: policy}
}

type TurnInput struct {
	Role    string `json:"role" jsonschema:"user or assistant"`
	Content string `json:"content"`
}

type ProcessUpdateInput struct {
	Text    string      `json:"text" jsonschema:"What the sales rep said (required)"`
	History []TurnInput `json:"history,omitempty" jsonschema:"Earlier turns of the conversation, oldest first"`
}

type FieldUpdateOutput struct {
	Field      string `json:"field"`
	Value      any    `json:"value"`
	Confidence string `json:"confidence"`
	Source     string `json:"source,omitempty"`
}

type StageDecisionOutput struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	Allowed       bool     `json:"allowed"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

type ProcessUpdateOutput struct {
	RunID            string               `json:"run_id"`
	Status           string               `json:"status"`
	Action           string               `json:"action"`
	IntentConfidence string               `json:"intent_confidence"`
	OpportunityID    string               `json:"opportunity_id,omitempty"`
	OpportunityName  string               `json:"opportunity_name,omitempty"`
	Planned          []FieldUpdateOutput  `json:"planned,omitempty"`
	Applied          []FieldUpdateOutput  `json:"applied,omitempty"`
	StageAdvanced    bool                 `json:"stage_advanced"`
	StageDecision    *StageDecisionOutput `json:"stage_decision,omitempty"`
	MissingFields    []string             `json:"missing_fields,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
	Questions        []string             `json:"questions,omitempty"`
	Suggestions      []string             `json:"suggestions,omitempty"`
	Matches          []string             `json:"matches,omitempty"`
	Messages         []string             `json:"messages,omitempty"`
	Error            string               `json:"error,omitempty"`
	ErrorKind        string               `json:"error_kind,omitempty"`
}

// ProcessUpdate runs one conversational turn. Pipeline failures are reported
// in the output rather than as tool errors so the caller sees what happened.
func (h *UpdateHandlers) ProcessUpdate(ctx context.Context, _ *mcp.CallToolRequest, input ProcessUpdateInput) (*mcp.CallToolResult, ProcessUpdateOutput, error) {
	if h.orch == nil {
		return nil, ProcessUpdateOutput{}, ErrNoLLM
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, ProcessUpdateOutput{}, fmt.Errorf("text is required")
	}

	history := make([]models.Turn, 0, len(input.History))
	for _, t := range input.History {
		history = append(history, models.Turn{Role: t.Role, Content: t.Content})
	}

	outcome, err := h.orch.Run(ctx, input.Text, history)
	out := outcomeToOutput(outcome)
	if err != nil {
		out.Error = err.Error()
		out.ErrorKind = string(models.KindOf(err))
	}
	return nil, out, nil
}

type CheckStageGateInput struct {
	Opportunity string         `json:"opportunity,omitempty" jsonschema:"Opportunity ID or name; its current stage and fields are used"`
	FromStage   string         `json:"from_stage,omitempty" jsonschema:"Current stage when no opportunity is given"`
	ToStage     string         `json:"to_stage" jsonschema:"Target stage (required)"`
	Fields      map[string]any `json:"fields,omitempty" jsonschema:"Field values to assume on top of the record"`
}

type CheckStageGateOutput struct {
	Opportunity   string   `json:"opportunity,omitempty"`
	FromStage     string   `json:"from_stage"`
	ToStage       string   `json:"to_stage"`
	IsValid       bool     `json:"is_valid"`
	MissingFields []string `json:"missing_fields"`
	Warnings      []string `json:"warnings,omitempty"`
}

func (h *UpdateHandlers) CheckStageGate(ctx context.Context, _ *mcp.CallToolRequest, input CheckStageGateInput) (*mcp.CallToolResult, CheckStageGateOutput, error) {
	if strings.TrimSpace(input.ToStage) == "" {
		return nil, CheckStageGateOutput{}, fmt.Errorf("to_stage is required")
	}

	record := models.OpportunityState{Stage: input.FromStage, Fields: map[string]any{}}
	if input.Opportunity != "" {
		if h.page == nil {
			return nil, CheckStageGateOutput{}, fmt.Errorf("no CRM page configured")
		}
		current, err := h.page.ReadOpportunity(ctx, input.Opportunity)
		if err != nil {
			return nil, CheckStageGateOutput{}, fmt.Errorf("failed to read opportunity: %w", err)
		}
		record = current.Clone()
	}
	if record.Stage == "" {
		return nil, CheckStageGateOutput{}, fmt.Errorf("from_stage or opportunity is required")
	}

	for k, v := range input.Fields {
		record.Fields[k] = v
	}

	to := input.ToStage
	if canonical := h.policy.CanonicalStage(to); canonical != "" {
		to = canonical
	}
	result := h.policy.EvaluateTransition(record.Stage, to, record)

	return nil, CheckStageGateOutput{
		Opportunity:   record.Name,
		FromStage:     record.Stage,
		ToStage:       to,
		IsValid:       result.IsValid,
		MissingFields: result.MissingFields,
		Warnings:      result.Warnings,
	}, nil
}

func outcomeToOutput(o orchestrator.Outcome) ProcessUpdateOutput {
	out := ProcessUpdateOutput{
		RunID:            o.RunID,
		Status:           string(o.Status),
		Action:           string(o.Intent.Action),
		IntentConfidence: o.Intent.Confidence.String(),
		Planned:          updatesToOutput(o.Planned),
		Applied:          updatesToOutput(o.Applied),
		StageAdvanced:    o.StageAdvanced,
		MissingFields:    o.MissingFields,
		Warnings:         o.Warnings,
		Questions:        o.Questions,
		Suggestions:      o.Suggestions,
		Messages:         o.Messages,
	}
	if o.Opportunity != nil {
		out.OpportunityID = o.Opportunity.ID
		out.OpportunityName = o.Opportunity.Name
	}
	if d := o.Decision; d != nil {
		out.StageDecision = &StageDecisionOutput{
			From:          d.From,
			To:            d.To,
			Allowed:       d.Allowed,
			MissingFields: d.MissingFields,
			Warnings:      d.Warnings,
		}
	}
	for _, m := range o.Matches {
		out.Matches = append(out.Matches, fmt.Sprintf("%s (%s, %s)", m.Name, m.ID, m.Stage))
	}
	return out
}

func updatesToOutput(updates []models.FieldUpdate) []FieldUpdateOutput {
	if len(updates) == 0 {
		return nil
	}
	out := make([]FieldUpdateOutput, len(updates))
	for i, u := range updates {
		out[i] = FieldUpdateOutput{Field: u.Field, Value: u.Value, Confidence: u.Confidence.String(), Source: u.Source}
	}
	return out
}
