// ABOUTME: Prospect scoring CLI command
// ABOUTME: Ranks candidates from a YAML or JSON file against the configured targets
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harperreed/dealflow/handlers"
	"github.com/harperreed/dealflow/scoring"
	"gopkg.in/yaml.v3"
)

// candidateFile is the input document. JSON files parse too since JSON is YAML.
type candidateFile struct {
	Criteria   *scoring.Criteria   `yaml:"criteria"`
	Candidates []scoring.Candidate `yaml:"candidates"`
}

func loadCandidates(path string) (candidateFile, error) {
	var doc candidateFile
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read candidates: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// A bare list of candidates is accepted as well.
		var list []scoring.Candidate
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return doc, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		doc.Candidates = list
	}
	return doc, nil
}

// ScoreCommand ranks prospects best first.
func ScoreCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	file := fs.String("file", "", "YAML or JSON file with candidates (required)")
	limit := fs.Int("limit", 0, "Only show the top N prospects")
	verbose := fs.Bool("breakdown", false, "Show the per-factor breakdown")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	doc, err := loadCandidates(*file)
	if err != nil {
		return err
	}

	h := handlers.NewScoringHandlers(app.Config.Scoring)
	_, out, err := h.ScoreProspects(ctx, nil, handlers.ScoreProspectsInput{
		Candidates: doc.Candidates,
		Criteria:   doc.Criteria,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(app.Out, titleStyle.Render(fmt.Sprintf("%d prospects", len(out.Prospects))))
	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNAME\tTITLE\tCOMPANY\tTIER")
	for _, p := range out.Prospects {
		tier := p.Tier
		if tier == "" {
			tier = "-"
		}
		_, _ = fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\t%s\n", p.Score, p.Name, p.Title, p.Company, tier)
		if *verbose {
			for _, factor := range scoring.Factors {
				_, _ = fmt.Fprintf(w, "\t  %s\t%.1f / %d\t\t\n", factor, p.Breakdown[factor], scoring.Weights[factor])
			}
		}
	}
	return w.Flush()
}
