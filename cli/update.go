// ABOUTME: Conversational update and stage gate CLI commands
// ABOUTME: Runs one rep message through the pipeline, or checks a transition without writing
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/harperreed/dealflow/handlers"
)

// UpdateCommand processes one message from the rep.
func UpdateCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Plan the update without writing")
	asJSON := fs.Bool("json", false, "Print the raw result as JSON")
	_ = fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" || text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("update text is required")
	}

	h, err := app.UpdateHandlers(*dryRun)
	if err != nil {
		return err
	}
	_, out, err := h.ProcessUpdate(ctx, nil, handlers.ProcessUpdateInput{Text: text})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printUpdate(app.Out, out)
	if out.Error != "" {
		return fmt.Errorf("%s", out.Error)
	}
	return nil
}

func printUpdate(w io.Writer, out handlers.ProcessUpdateOutput) {
	_, _ = fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Status:"), statusStyle(out.Status).Render(out.Status))
	if out.OpportunityName != "" {
		_, _ = fmt.Fprintf(w, "  Opportunity: %s (%s)\n", out.OpportunityName, out.OpportunityID)
	}
	for _, m := range out.Messages {
		_, _ = fmt.Fprintf(w, "  %s\n", m)
	}

	printFields(w, "Applied", out.Applied)
	if len(out.Applied) == 0 {
		printFields(w, "Planned", out.Planned)
	}

	if d := out.StageDecision; d != nil {
		verdict := okStyle.Render("allowed")
		if !d.Allowed {
			verdict = warnStyle.Render("blocked")
		}
		_, _ = fmt.Fprintf(w, "  Stage %s -> %s: %s\n", d.From, d.To, verdict)
	}
	printList(w, "Missing", out.MissingFields)
	printList(w, "Warnings", out.Warnings)
	printList(w, "Questions", out.Questions)
	printList(w, "Suggestions", out.Suggestions)
	printList(w, "Matches", out.Matches)
	if out.Error != "" {
		_, _ = fmt.Fprintf(w, "  %s %s (%s)\n", errorStyle.Render("Error:"), out.Error, out.ErrorKind)
	}
}

func printFields(w io.Writer, label string, updates []handlers.FieldUpdateOutput) {
	if len(updates) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "  %s\n", headerStyle.Render(label+":"))
	for _, u := range updates {
		_, _ = fmt.Fprintf(w, "    %s = %v %s\n", u.Field, u.Value, dimStyle.Render("("+u.Confidence+")"))
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "  %s\n", headerStyle.Render(label+":"))
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "    - %s\n", item)
	}
}

// fieldFlags collects repeated --set key=value flags.
type fieldFlags map[string]any

func (f fieldFlags) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (f fieldFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected field=value, got %q", s)
	}
	f[key] = parseValue(strings.TrimSpace(value))
	return nil
}

// parseValue turns CLI text into the JSON-ish value the gate validators expect.
func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// GateCommand checks a stage transition without writing anything.
func GateCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("gate", flag.ExitOnError)
	from := fs.String("from", "", "Current stage (when no opportunity is given)")
	to := fs.String("to", "", "Target stage (required)")
	fields := fieldFlags{}
	fs.Var(fields, "set", "Assume a field value, e.g. --set budget_confirmed=true (repeatable)")
	_ = fs.Parse(args)

	h := handlers.NewUpdateHandlers(nil, app.Store, app.Policy)
	_, out, err := h.CheckStageGate(ctx, nil, handlers.CheckStageGateInput{
		Opportunity: strings.Join(fs.Args(), " "),
		FromStage:   *from,
		ToStage:     *to,
		Fields:      fields,
	})
	if err != nil {
		return err
	}

	subject := out.Opportunity
	if subject == "" {
		subject = "Transition"
	}
	if out.IsValid {
		_, _ = fmt.Fprintf(app.Out, "%s %s -> %s: %s\n", subject, out.FromStage, out.ToStage, okStyle.Render("ready"))
		return nil
	}
	_, _ = fmt.Fprintf(app.Out, "%s %s -> %s: %s\n", subject, out.FromStage, out.ToStage, warnStyle.Render("blocked"))
	printList(app.Out, "Missing", out.MissingFields)
	printList(app.Out, "Warnings", out.Warnings)
	return nil
}
