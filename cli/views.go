// ABOUTME: Chat, dashboard and gate graph CLI commands
// ABOUTME: Front ends for the interactive chat and the pipeline visualizations
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/handlers"
	"github.com/harperreed/dealflow/tui"
	"github.com/harperreed/dealflow/viz"
)

// ChatCommand opens the interactive chat.
func ChatCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Plan updates without writing")
	_ = fs.Parse(args)

	if app.Model == nil {
		return handlers.ErrNoLLM
	}
	h, err := app.UpdateHandlers(*dryRun)
	if err != nil {
		return err
	}

	return tui.Run(ctx, func(ctx context.Context, text string, history []handlers.TurnInput) (handlers.ProcessUpdateOutput, error) {
		_, out, err := h.ProcessUpdate(ctx, nil, handlers.ProcessUpdateInput{Text: text, History: history})
		return out, err
	})
}

// DashboardCommand prints the pipeline overview.
func DashboardCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	_ = fs.Parse(args)

	stats, err := viz.GenerateDashboardStats(ctx, app.DB, app.Policy, time.Now())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(app.Out, viz.RenderDashboard(stats))
	return nil
}

// GraphCommand writes the stage gate graph as Graphviz DOT.
func GraphCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	withCounts := fs.Bool("counts", true, "Annotate stages with opportunity counts")
	_ = fs.Parse(args)

	var counts map[string]int
	if *withCounts {
		opps, err := db.FindOpportunities(ctx, app.DB, "", "", 10000)
		if err != nil {
			return fmt.Errorf("failed to fetch opportunities: %w", err)
		}
		counts = make(map[string]int)
		for _, o := range opps {
			stage := app.Policy.CanonicalStage(o.Stage)
			if stage == "" {
				stage = o.Stage
			}
			counts[stage]++
		}
	}

	dot, err := viz.GenerateGateGraph(ctx, app.Policy, counts)
	if err != nil {
		return err
	}

	if *output == "" {
		_, _ = fmt.Fprint(app.Out, dot)
		return nil
	}
	if err := os.WriteFile(*output, []byte(dot), 0o644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	_, _ = fmt.Fprintf(app.Out, "%s %s\n", okStyle.Render("✓ Graph written to"), *output)
	return nil
}
