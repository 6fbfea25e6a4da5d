// ABOUTME: Stage gate policy that blocks stage transitions until required data is present
// ABOUTME: Resolves rules from an explicit (from, to) table with a wildcard-by-target fallback
package stagegate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/harperreed/dealflow/models"
)

// Wildcard as a FromStage makes a rule apply regardless of origin stage.
const Wildcard = "*"

// Validator reports whether a present value is acceptable.
type Validator func(value any) bool

type RequiredField struct {
	APIName     string
	DisplayName string
	Description string
	Validation  Validator
}

type Rule struct {
	FromStage      string
	ToStage        string
	RequiredFields []RequiredField
	WarningMessage string
}

type ruleKey struct {
	from string
	to   string
}

// Policy is an immutable rule table plus the ordered pipeline it governs.
type Policy struct {
	stages   []string
	exact    map[ruleKey]Rule
	wildcard map[string]Rule
	rules    []Rule
}

// NewPolicy indexes rules. Two rules for the same (from, to) key, or two
// wildcard rules for the same target, are rejected.
func NewPolicy(stages []string, rules []Rule) (*Policy, error) {
	p := &Policy{
		stages:   append([]string(nil), stages...),
		exact:    make(map[ruleKey]Rule),
		wildcard: make(map[string]Rule),
	}

	for _, r := range rules {
		to := normalize(r.ToStage)
		if to == "" {
			return nil, fmt.Errorf("stage gate rule from %q has no target stage", r.FromStage)
		}
		for _, f := range r.RequiredFields {
			if strings.TrimSpace(f.APIName) == "" {
				return nil, fmt.Errorf("stage gate rule %s -> %s has a required field without api name", r.FromStage, r.ToStage)
			}
		}

		from := normalize(r.FromStage)
		if from == "" || from == Wildcard {
			if _, dup := p.wildcard[to]; dup {
				return nil, fmt.Errorf("duplicate wildcard stage gate rule for %q", r.ToStage)
			}
			p.wildcard[to] = r
		} else {
			key := ruleKey{from: from, to: to}
			if _, dup := p.exact[key]; dup {
				return nil, fmt.Errorf("duplicate stage gate rule %s -> %s", r.FromStage, r.ToStage)
			}
			p.exact[key] = r
		}
		p.rules = append(p.rules, r)
	}

	return p, nil
}

// MustPolicy is NewPolicy for static tables.
func MustPolicy(stages []string, rules []Rule) *Policy {
	p, err := NewPolicy(stages, rules)
	if err != nil {
		panic(err)
	}
	return p
}

// Stages returns the ordered pipeline.
func (p *Policy) Stages() []string {
	return append([]string(nil), p.stages...)
}

// Rules returns the rule table in declaration order.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// IsKnownStage reports whether stage is part of the pipeline. An empty
// pipeline knows every stage.
func (p *Policy) IsKnownStage(stage string) bool {
	if len(p.stages) == 0 {
		return true
	}
	return p.CanonicalStage(stage) != ""
}

// CanonicalStage returns the pipeline's spelling of stage, or "" if unknown.
func (p *Policy) CanonicalStage(stage string) string {
	for _, s := range p.stages {
		if models.SameStage(s, stage) {
			return s
		}
	}
	return ""
}

// NextStage returns the stage after current in the pipeline. Closed stages
// and unknown stages have no successor.
func (p *Policy) NextStage(current string) (string, bool) {
	for i, s := range p.stages {
		if !models.SameStage(s, current) {
			continue
		}
		if i+1 >= len(p.stages) || isClosed(s) {
			return "", false
		}
		return p.stages[i+1], true
	}
	return "", false
}

// Resolve finds the authoritative rule for a transition. An exact origin match
// wins over a wildcard rule for the same target.
func (p *Policy) Resolve(from, to string) (Rule, bool) {
	if r, ok := p.exact[ruleKey{from: normalize(from), to: normalize(to)}]; ok {
		return r, true
	}
	r, ok := p.wildcard[normalize(to)]
	return r, ok
}

// EvaluateTransition checks record against the rule for from -> to.
func (p *Policy) EvaluateTransition(from, to string, record models.OpportunityState) models.ValidationResult {
	result := models.ValidationResult{IsValid: true, MissingFields: []string{}}

	if models.SameStage(from, to) {
		return result
	}

	rule, ok := p.Resolve(from, to)
	if !ok {
		return result
	}

	var guidance []string
	for _, f := range rule.RequiredFields {
		if !isMissing(record.Fields, f) {
			continue
		}
		result.MissingFields = append(result.MissingFields, f.APIName)
		guidance = append(guidance, fieldGuidance(f))
	}

	if len(result.MissingFields) > 0 {
		result.IsValid = false
		if rule.WarningMessage != "" {
			result.Warnings = append(result.Warnings, rule.WarningMessage)
		}
		result.Warnings = append(result.Warnings, guidance...)
	}

	return result
}

func isMissing(fields map[string]any, f RequiredField) bool {
	v, ok := fields[f.APIName]
	if !ok || IsBlank(v) {
		return true
	}
	if f.Validation != nil && !f.Validation(v) {
		return true
	}
	return false
}

// IsBlank treats nil, whitespace-only strings and empty collections as absent.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func fieldGuidance(f RequiredField) string {
	name := f.DisplayName
	if name == "" {
		name = f.APIName
	}
	if f.Description == "" {
		return fmt.Sprintf("%s is required", name)
	}
	return fmt.Sprintf("%s is required: %s", name, f.Description)
}

func normalize(stage string) string {
	return strings.ToLower(strings.TrimSpace(stage))
}

func isClosed(stage string) bool {
	return strings.HasPrefix(normalize(stage), "closed")
}
