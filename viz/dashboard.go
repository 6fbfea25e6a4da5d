// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarizes the pipeline by stage, gated opportunities and stale deals
package viz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/stagegate"
)

// StaleAfter is how long an opportunity can go without an update before it
// needs attention.
const StaleAfter = 14 * 24 * time.Hour

type DashboardStats struct {
	// Stages in pipeline order, plus any unknown stages found in the store.
	Stages          []string
	PipelineByStage map[string]PipelineStageStats

	TotalOpportunities int

	// Open opportunities whose next stage gate is not yet satisfied.
	Blocked []BlockedOpportunity
	Stale   []StaleOpportunity
}

type PipelineStageStats struct {
	Stage  string
	Count  int
	Amount float64
}

type BlockedOpportunity struct {
	Name    string
	Stage   string
	Next    string
	Missing []string
}

type StaleOpportunity struct {
	Name      string
	Stage     string
	DaysSince int
}

func GenerateDashboardStats(ctx context.Context, database *sql.DB, policy *stagegate.Policy, now time.Time) (*DashboardStats, error) {
	opps, err := db.FindOpportunities(ctx, database, "", "", 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}

	stats := &DashboardStats{
		Stages:             append([]string(nil), policy.Stages()...),
		PipelineByStage:    make(map[string]PipelineStageStats),
		TotalOpportunities: len(opps),
	}

	for _, o := range opps {
		stage := policy.CanonicalStage(o.Stage)
		if stage == "" {
			stage = o.Stage
			if _, seen := stats.PipelineByStage[stage]; !seen {
				stats.Stages = append(stats.Stages, stage)
			}
		}

		pstats := stats.PipelineByStage[stage]
		pstats.Stage = stage
		pstats.Count++
		pstats.Amount += amountOf(o.Fields["Amount"])
		stats.PipelineByStage[stage] = pstats

		next, open := policy.NextStage(stage)
		if !open {
			continue
		}
		if verdict := policy.EvaluateTransition(stage, next, o.OpportunityState); !verdict.IsValid {
			stats.Blocked = append(stats.Blocked, BlockedOpportunity{
				Name:    o.Name,
				Stage:   stage,
				Next:    next,
				Missing: verdict.MissingFields,
			})
		}
		if since := now.Sub(o.UpdatedAt); since > StaleAfter {
			stats.Stale = append(stats.Stale, StaleOpportunity{
				Name:      o.Name,
				Stage:     stage,
				DaysSince: int(since.Hours() / 24),
			})
		}
	}

	return stats, nil
}

func amountOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	// Header
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  DEALFLOW PIPELINE\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PIPELINE OVERVIEW\n")
	renderPipeline(&out, stats)
	out.WriteString("\n")

	out.WriteString(fmt.Sprintf("  💼 %d opportunities\n\n", stats.TotalOpportunities))

	if len(stats.Blocked) > 0 {
		out.WriteString("BLOCKED AT THE NEXT GATE\n")
		for _, b := range stats.Blocked {
			out.WriteString(fmt.Sprintf("  ⛔ %s (%s -> %s): %s\n", b.Name, b.Stage, b.Next, strings.Join(b.Missing, ", ")))
		}
		out.WriteString("\n")
	}

	if len(stats.Stale) > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		for _, s := range stats.Stale {
			out.WriteString(fmt.Sprintf("  ⚠️  %s (%s) - no update in %d days\n", s.Name, s.Stage, s.DaysSince))
		}
	}

	return out.String()
}

func renderPipeline(out *strings.Builder, stats *DashboardStats) {
	maxCount := 0
	for _, pstats := range stats.PipelineByStage {
		if pstats.Count > maxCount {
			maxCount = pstats.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, stage := range stats.Stages {
		pstats := stats.PipelineByStage[stage]

		// 0-10 blocks
		barLength := (pstats.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)

		out.WriteString(fmt.Sprintf("  %-13s %s  %2d ($%.0fK)\n",
			stage, bar, pstats.Count, pstats.Amount/1000))
	}
}
