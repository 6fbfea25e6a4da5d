// ABOUTME: Data models for opportunity updates extracted from conversation
// ABOUTME: Defines OpportunityState, FieldUpdate, ParsedIntent, Extraction and gate results
package models

import (
	"strings"
)

// Common Salesforce opportunity stages.
const (
	StageProspecting   = "Prospecting"
	StageQualification = "Qualification"
	StageDiscovery     = "Discovery"
	StageProposal      = "Proposal"
	StageNegotiation   = "Negotiation"
	StageClosedWon     = "Closed Won"
	StageClosedLost    = "Closed Lost"
)

// OpportunityState is a read-mostly snapshot of an opportunity record.
type OpportunityState struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AccountName string         `json:"account_name,omitempty"`
	Stage       string         `json:"stage"`
	Fields      map[string]any `json:"fields"`
}

// Clone returns a copy whose Fields map can be mutated independently.
func (o OpportunityState) Clone() OpportunityState {
	out := o
	out.Fields = make(map[string]any, len(o.Fields))
	for k, v := range o.Fields {
		out.Fields[k] = v
	}
	return out
}

// WithUpdates returns the projected record: a copy with the updates applied in order.
func (o OpportunityState) WithUpdates(updates []FieldUpdate) OpportunityState {
	out := o.Clone()
	for _, u := range updates {
		out.Fields[u.Field] = u.Value
	}
	return out
}

// FieldUpdate is one proposed write to an opportunity field.
type FieldUpdate struct {
	Field      string     `json:"field"`
	Value      any        `json:"value"`
	Confidence Confidence `json:"confidence"`
	Source     string     `json:"source,omitempty"`
}

// Action is the kind of request a conversational turn expresses.
type Action string

const (
	ActionCreateOpportunity Action = "create_opportunity"
	ActionUpdateOpportunity Action = "update_opportunity"
	ActionSearchOpportunity Action = "search_opportunity"
	ActionUnclear           Action = "unclear"
)

// ParseAction maps a label onto a known Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionCreateOpportunity:
		return ActionCreateOpportunity, true
	case ActionUpdateOpportunity:
		return ActionUpdateOpportunity, true
	case ActionSearchOpportunity:
		return ActionSearchOpportunity, true
	case ActionUnclear:
		return ActionUnclear, true
	}
	return ActionUnclear, false
}

// Direction says how a stage transition was phrased.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionSpecific Direction = "specific"
)

type StageTransition struct {
	TargetStage string    `json:"target_stage,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
}

// ParsedIntent is the normalized result of intent classification.
// An unclear intent always carries at least one clarification question.
type ParsedIntent struct {
	Action                Action           `json:"action"`
	OpportunityIdentifier string           `json:"opportunity_identifier,omitempty"`
	AccountName           string           `json:"account_name,omitempty"`
	Information           string           `json:"information,omitempty"`
	StageTransition       *StageTransition `json:"stage_transition,omitempty"`
	Confidence            Confidence       `json:"confidence"`
	ClarificationNeeded   []string         `json:"clarification_needed,omitempty"`
}

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StageChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Extraction is the sanitized structured guess produced from free text.
type Extraction struct {
	StageChange   *StageChange  `json:"stage_change,omitempty"`
	FieldUpdates  []FieldUpdate `json:"field_updates"`
	MissingFields []string      `json:"missing_fields,omitempty"`
	Suggestions   []string      `json:"suggestions,omitempty"`
}

// ValidationResult is the outcome of a stage gate check. It is recomputed on
// every evaluation and never cached.
type ValidationResult struct {
	IsValid       bool     `json:"is_valid"`
	MissingFields []string `json:"missing_fields"`
	Warnings      []string `json:"warnings,omitempty"`
}

// StageDecision records whether a requested stage change may be applied.
type StageDecision struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	Allowed       bool     `json:"allowed"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// SameStage compares stage labels the way the CRM does: case and surrounding
// whitespace are not significant.
func SameStage(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
