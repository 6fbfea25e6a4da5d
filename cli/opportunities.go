// ABOUTME: Opportunity CLI commands
// ABOUTME: Human-friendly commands for adding, listing, showing and deleting opportunities
package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/handlers"
)

// AddOpportunityCommand adds a new opportunity.
func AddOpportunityCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Opportunity name (required)")
	account := fs.String("account", "", "Account name")
	stage := fs.String("stage", "", "Initial stage (default: first pipeline stage)")
	fields := fieldFlags{}
	fs.Var(fields, "set", "Initial field value, e.g. --set Amount=50000 (repeatable)")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	h := handlers.NewOpportunityHandlers(app.DB, app.Policy)
	_, opp, err := h.CreateOpportunity(ctx, nil, handlers.CreateOpportunityInput{
		Name:        *name,
		AccountName: *account,
		Stage:       *stage,
		Fields:      fields,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.Out, "%s %s (ID: %s)\n", okStyle.Render("✓ Opportunity created:"), opp.Name, opp.ID)
	_, _ = fmt.Fprintf(app.Out, "  Stage: %s\n", opp.Stage)
	if opp.AccountName != "" {
		_, _ = fmt.Fprintf(app.Out, "  Account: %s\n", opp.AccountName)
	}
	return nil
}

// ListOpportunitiesCommand lists opportunities, most recently updated first.
func ListOpportunitiesCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	query := fs.String("query", "", "Search by opportunity or account name")
	stage := fs.String("stage", "", "Filter by stage")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	opps, err := db.FindOpportunities(ctx, app.DB, *query, *stage, *limit)
	if err != nil {
		return fmt.Errorf("failed to find opportunities: %w", err)
	}
	if len(opps) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No opportunities found")
		return nil
	}

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tACCOUNT\tSTAGE\tNEXT\tID")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t----\t--")
	for _, o := range opps {
		account := o.AccountName
		if account == "" {
			account = "-"
		}
		next := "-"
		if n, ok := app.Policy.NextStage(o.Stage); ok {
			next = n
			if !app.Policy.EvaluateTransition(o.Stage, n, o.OpportunityState).IsValid {
				next += " (blocked)"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Name, account, o.Stage, next, o.ID)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(app.Out, dimStyle.Render(fmt.Sprintf("%d opportunities", len(opps))))
	return nil
}

// ShowOpportunityCommand prints one opportunity with its fields and history.
func ShowOpportunityCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	_ = fs.Parse(args)

	identifier := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if identifier == "" {
		return fmt.Errorf("opportunity ID or name is required")
	}

	h := handlers.NewOpportunityHandlers(app.DB, app.Policy)
	_, opp, err := h.GetOpportunity(ctx, nil, handlers.GetOpportunityInput{Identifier: identifier, IncludeHistory: true})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(app.Out, titleStyle.Render(opp.Name))
	_, _ = fmt.Fprintf(app.Out, "  ID: %s\n  Stage: %s\n", opp.ID, opp.Stage)
	if opp.AccountName != "" {
		_, _ = fmt.Fprintf(app.Out, "  Account: %s\n", opp.AccountName)
	}

	if len(opp.Fields) > 0 {
		_, _ = fmt.Fprintf(app.Out, "  %s\n", headerStyle.Render("Fields:"))
		keys := make([]string, 0, len(opp.Fields))
		for k := range opp.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(app.Out, "    %s: %v\n", k, opp.Fields[k])
		}
	}

	if len(opp.History) > 0 {
		_, _ = fmt.Fprintf(app.Out, "  %s\n", headerStyle.Render("History:"))
		for _, e := range opp.History {
			old := "-"
			if e.OldValue != nil {
				old = fmt.Sprint(e.OldValue)
			}
			_, _ = fmt.Fprintf(app.Out, "    %s  %s: %s -> %v\n", dimStyle.Render(e.ChangedAt), e.Field, old, e.NewValue)
		}
	}
	return nil
}

// DeleteOpportunityCommand deletes an opportunity and its history.
func DeleteOpportunityCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	_ = fs.Parse(args)

	identifier := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if identifier == "" {
		return fmt.Errorf("opportunity ID or name is required")
	}

	opp, err := app.Store.ReadOpportunity(ctx, identifier)
	if err != nil {
		return err
	}
	if err := db.DeleteOpportunity(ctx, app.DB, opp.ID); err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "%s %s\n", okStyle.Render("✓ Deleted:"), opp.Name)
	return nil
}
