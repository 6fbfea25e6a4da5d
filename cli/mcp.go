// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server with opportunity tools, resources and prompts over stdio
package cli

import (
	"context"

	"github.com/harperreed/dealflow/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer registers every tool, resource and prompt on a new server.
func NewMCPServer(app *App, version string) (*mcp.Server, error) {
	updateHandlers, err := app.UpdateHandlers(false)
	if err != nil {
		return nil, err
	}
	opportunityHandlers := handlers.NewOpportunityHandlers(app.DB, app.Policy)
	scoringHandlers := handlers.NewScoringHandlers(app.Config.Scoring)
	resourceHandlers := handlers.NewResourceHandlers(app.DB, app.Policy)
	promptHandlers := handlers.NewPromptHandlers(app.DB, app.Policy)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dealflow",
		Version: version,
	}, nil)

	// Tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_update",
		Description: "Turn what a sales rep said into gated CRM field updates and stage moves",
	}, updateHandlers.ProcessUpdate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_stage_gate",
		Description: "Check which required fields block a stage transition without writing anything",
	}, updateHandlers.CheckStageGate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_opportunity",
		Description: "Get an opportunity by ID or name, optionally with its change history",
	}, opportunityHandlers.GetOpportunity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_opportunities",
		Description: "Search opportunities by name, account or stage",
	}, opportunityHandlers.FindOpportunities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_opportunity",
		Description: "Create a new opportunity in the first pipeline stage or a given stage",
	}, opportunityHandlers.CreateOpportunity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "score_prospects",
		Description: "Rank lead profiles 0-100 against target titles, companies and keywords",
	}, scoringHandlers.ScoreProspects)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:         "dealflow://pipeline",
		Name:        "pipeline",
		Description: "Opportunities grouped by stage in pipeline order",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "dealflow://rules",
		Name:        "rules",
		Description: "Stage gate rules and their required fields",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "dealflow://opportunities",
		Name:        "opportunities",
		Description: "All opportunities",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "dealflow://opportunities/{id}",
		Name:        "opportunity",
		Description: "One opportunity with its change history",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Prompts
	for _, p := range promptHandlers.Prompts() {
		server.AddPrompt(p, promptHandlers.GetPrompt)
	}

	return server, nil
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(ctx context.Context, app *App, version string) error {
	if app.Model == nil {
		app.Log.Warn("no LLM API key configured; process_update is disabled")
	}
	app.Log.Info("starting MCP server", "db_path", app.Config.DBPath)

	server, err := NewMCPServer(app, version)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}
