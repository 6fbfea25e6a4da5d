// ABOUTME: Default Salesforce pipeline, gate rules, and named field validators
// ABOUTME: Validators are referenced by name from configuration files
package stagegate

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/dealflow/models"
)

// DefaultStages is the standard opportunity pipeline, in order.
var DefaultStages = []string{
	models.StageProspecting,
	models.StageQualification,
	models.StageDiscovery,
	models.StageProposal,
	models.StageNegotiation,
	models.StageClosedWon,
	models.StageClosedLost,
}

// DefaultRules returns the built-in gate table used when no config overrides it.
func DefaultRules() []Rule {
	return []Rule{
		{
			FromStage: models.StageProspecting,
			ToStage:   models.StageQualification,
			RequiredFields: []RequiredField{
				{APIName: "NextStep", DisplayName: "Next Step", Description: "What was agreed as the next action with the prospect"},
			},
		},
		{
			FromStage: models.StageQualification,
			ToStage:   models.StageDiscovery,
			RequiredFields: []RequiredField{
				{APIName: "decision_maker", DisplayName: "Decision Maker", Description: "Who signs off on the purchase", Validation: NonEmpty},
				{APIName: "pain_points", DisplayName: "Pain Points", Description: "The business problem the buyer described", Validation: NonEmpty},
			},
			WarningMessage: "Qualify the buyer before moving into discovery.",
		},
		{
			FromStage: models.StageDiscovery,
			ToStage:   models.StageProposal,
			RequiredFields: []RequiredField{
				{APIName: "budget_confirmed", DisplayName: "Budget Confirmed", Description: "The buyer confirmed budget is allocated", Validation: IsTrue},
				{APIName: "Amount", DisplayName: "Amount", Description: "Expected deal value", Validation: PositiveNumber},
			},
			WarningMessage: "A proposal needs a confirmed budget and a deal amount.",
		},
		{
			FromStage: models.StageProposal,
			ToStage:   models.StageNegotiation,
			RequiredFields: []RequiredField{
				{APIName: "CloseDate", DisplayName: "Close Date", Description: "Expected signature date", Validation: Date},
			},
		},
		{
			FromStage: Wildcard,
			ToStage:   models.StageClosedWon,
			RequiredFields: []RequiredField{
				{APIName: "Amount", DisplayName: "Amount", Description: "Final contract value", Validation: PositiveNumber},
				{APIName: "CloseDate", DisplayName: "Close Date", Description: "Date the contract was signed", Validation: Date},
			},
			WarningMessage: "Closed Won requires the final amount and close date.",
		},
		{
			FromStage: Wildcard,
			ToStage:   models.StageClosedLost,
			RequiredFields: []RequiredField{
				{APIName: "loss_reason", DisplayName: "Loss Reason", Description: "Why the opportunity was lost", Validation: NonEmpty},
			},
		},
	}
}

// DefaultPolicy builds a Policy from DefaultStages and DefaultRules.
func DefaultPolicy() *Policy {
	return MustPolicy(DefaultStages, DefaultRules())
}

// Validators maps config names to validator functions.
var Validators = map[string]Validator{
	"is_true":         IsTrue,
	"non_empty":       NonEmpty,
	"positive_number": PositiveNumber,
	"date":            Date,
	"email":           Email,
}

// LookupValidator resolves a named validator. An empty name means none.
func LookupValidator(name string) (Validator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	v, ok := Validators[name]
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	return v, nil
}

// IsTrue accepts boolean true and affirmative strings.
func IsTrue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "confirmed":
			return true
		}
	}
	return false
}

func NonEmpty(v any) bool {
	return !IsBlank(v)
}

// PositiveNumber accepts numbers and numeric strings (with optional $ and
// thousands separators) greater than zero.
func PositiveNumber(v any) bool {
	f, ok := toFloat(v)
	return ok && f > 0
}

// Date accepts ISO dates, RFC3339 timestamps and time.Time values.
func Date(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return true
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return true
		}
	}
	return false
}

func Email(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
