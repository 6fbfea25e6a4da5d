// ABOUTME: MCP resource handlers for exposing opportunities and the gate table
// ABOUTME: Provides read-only access to the pipeline, rules and opportunities via dealflow:// URIs
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "dealflow://"

type ResourceHandlers struct {
	db     *sql.DB
	policy *stagegate.Policy
}

func NewResourceHandlers(database *sql.DB, policy *stagegate.Policy) *ResourceHandlers {
	if policy == nil {
		policy = stagegate.DefaultPolicy()
	}
	return &ResourceHandlers{db: database, policy: policy}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "pipeline":
		return h.readPipeline(ctx, uri)
	case "rules":
		return jsonResource(uri, rulesView(h.policy))
	case "opportunities":
		if len(parts) == 1 || parts[1] == "" {
			return h.readAllOpportunities(ctx, uri)
		}
		return h.readOpportunity(ctx, uri, parts[1])
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) readAllOpportunities(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	opps, err := db.FindOpportunities(ctx, h.db, "", "", 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}
	return jsonResource(uri, opps)
}

func (h *ResourceHandlers) readOpportunity(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	opp, err := db.GetOpportunity(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunity: %w", err)
	}
	if opp == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	history, err := db.GetOpportunityHistory(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	return jsonResource(uri, struct {
		*db.Opportunity
		History []db.HistoryEntry `json:"history"`
	}{Opportunity: opp, History: history})
}

type pipelineStage struct {
	Stage string   `json:"stage"`
	Count int      `json:"count"`
	Names []string `json:"opportunities,omitempty"`
}

// readPipeline groups opportunities by stage in pipeline order; stages the
// pipeline does not know are listed after it.
func (h *ResourceHandlers) readPipeline(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	opps, err := db.FindOpportunities(ctx, h.db, "", "", 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}

	byStage := map[string]*pipelineStage{}
	var order []string
	for _, s := range h.policy.Stages() {
		byStage[s] = &pipelineStage{Stage: s}
		order = append(order, s)
	}
	for _, o := range opps {
		stage := h.policy.CanonicalStage(o.Stage)
		if stage == "" {
			stage = o.Stage
		}
		p, ok := byStage[stage]
		if !ok {
			p = &pipelineStage{Stage: stage}
			byStage[stage] = p
			order = append(order, stage)
		}
		p.Count++
		p.Names = append(p.Names, o.Name)
	}

	view := make([]pipelineStage, 0, len(order))
	for _, s := range order {
		view = append(view, *byStage[s])
	}
	return jsonResource(uri, view)
}

type ruleView struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Required []string `json:"required_fields"`
	Warning  string   `json:"warning,omitempty"`
}

func rulesView(policy *stagegate.Policy) []ruleView {
	rules := policy.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		v := ruleView{From: r.FromStage, To: r.ToStage, Warning: r.WarningMessage}
		for _, f := range r.RequiredFields {
			v.Required = append(v.Required, f.APIName)
		}
		out = append(out, v)
	}
	return out
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
