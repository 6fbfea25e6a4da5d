// ABOUTME: Extraction merger reconciling LLM output with the current opportunity
// ABOUTME: Deduplicates updates, enforces the field schema, and gates stage changes
package extraction

import (
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/stagegate"
)

// Result is what a merge proposes. It has no side effects; callers apply it.
type Result struct {
	Updates []models.FieldUpdate `json:"updates"`
	// StageDecision is nil when no usable stage change was proposed.
	StageDecision *models.StageDecision `json:"stage_decision,omitempty"`
	MissingFields []string              `json:"missing_fields"`
	Rejected      []string              `json:"rejected,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
	Suggestions   []string              `json:"suggestions,omitempty"`
}

// StageBlocked reports whether a stage change was requested and refused.
func (r Result) StageBlocked() bool {
	return r.StageDecision != nil && !r.StageDecision.Allowed
}

type Merger struct {
	policy *stagegate.Policy
	schema Schema
}

func NewMerger(policy *stagegate.Policy, schema Schema) *Merger {
	if policy == nil {
		policy = stagegate.MustPolicy(nil, nil)
	}
	return &Merger{policy: policy, schema: schema}
}

// Merge reconciles ext with current.
func (m *Merger) Merge(ext models.Extraction, current models.OpportunityState) Result {
	res := Result{
		Updates:     []models.FieldUpdate{},
		Suggestions: ext.Suggestions,
	}

	var missing []string
	missing = appendAll(missing, ext.MissingFields...)

	var accepted []models.FieldUpdate
	for _, u := range ext.FieldUpdates {
		if !m.schema.Recognizes(current.Stage, u.Field) {
			res.Rejected = appendAll(res.Rejected, u.Field)
			continue
		}
		u.Field = m.schema.Canonical(current.Stage, u.Field)
		accepted = append(accepted, u)
	}
	res.Updates = dedupe(accepted)
	missing = appendAll(missing, res.Rejected...)
	for _, f := range res.Rejected {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s is not a recognized field at stage %s and was not updated", f, current.Stage))
	}

	if change := ext.StageChange; change != nil {
		decision, warning := m.decide(*change, current, res.Updates)
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
		if decision != nil {
			res.StageDecision = decision
			if !decision.Allowed {
				missing = appendAll(missing, decision.MissingFields...)
				res.Warnings = appendAll(res.Warnings, decision.Warnings...)
			}
		}
	}

	res.MissingFields = missing
	if res.MissingFields == nil {
		res.MissingFields = []string{}
	}
	return res
}

func (m *Merger) decide(change models.StageChange, current models.OpportunityState, updates []models.FieldUpdate) (*models.StageDecision, string) {
	from := change.From
	if from == "" {
		from = current.Stage
	}
	if !models.SameStage(from, current.Stage) {
		return nil, fmt.Sprintf("Ignored stage change: notes place the opportunity in %s but it is currently in %s", from, current.Stage)
	}

	to := change.To
	if !m.policy.IsKnownStage(to) {
		return nil, fmt.Sprintf("Ignored stage change: %s is not a pipeline stage", to)
	}
	if canonical := m.policy.CanonicalStage(to); canonical != "" {
		to = canonical
	}

	projected := current.WithUpdates(updates)
	verdict := m.policy.EvaluateTransition(current.Stage, to, projected)

	decision := &models.StageDecision{From: current.Stage, To: to, Allowed: verdict.IsValid}
	if !verdict.IsValid {
		decision.MissingFields = verdict.MissingFields
		decision.Warnings = verdict.Warnings
	}
	return decision, ""
}

// dedupe keeps one update per field, comparing names case-insensitively: a
// strictly higher confidence replaces the kept entry and a tie goes to the
// later entry. Output follows first appearance.
func dedupe(updates []models.FieldUpdate) []models.FieldUpdate {
	out := make([]models.FieldUpdate, 0, len(updates))
	index := make(map[string]int, len(updates))
	for _, u := range updates {
		key := strings.ToLower(u.Field)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, u)
			continue
		}
		if u.Confidence >= out[i].Confidence {
			out[i] = u
		}
	}
	return out
}

func appendAll(list []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range list {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup && item != "" {
			list = append(list, item)
		}
	}
	return list
}
