// ABOUTME: Intent classifier turning a conversational turn into a typed ParsedIntent
// ABOUTME: Delegates understanding to the LLM and repairs whatever shape comes back
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/logger"
	"github.com/harperreed/dealflow/models"
)

// Clarification questions the classifier adds when the model leaves gaps.
const (
	QuestionWhatToDo      = "Do you want to create a new opportunity, update an existing one, or search for one?"
	QuestionUnknownAction = "I couldn't tell what you want to do with that. Should I create, update, or look up an opportunity?"
	QuestionTargetStage   = "Which stage should the opportunity move to?"
	QuestionWhichOpp      = "Which opportunity should I update?"
)

// reply is the shape the model is asked to produce. Parsing never relies on it
// being followed.
type reply struct {
	Action                string   `json:"action" jsonschema:"enum=create_opportunity,enum=update_opportunity,enum=search_opportunity,enum=unclear"`
	OpportunityIdentifier string   `json:"opportunityIdentifier,omitempty" jsonschema:"description=Opportunity name or Salesforce ID mentioned by the user"`
	AccountName           string   `json:"accountName,omitempty"`
	Information           string   `json:"information,omitempty" jsonschema:"description=The new facts the user shared"`
	StageTransition       *struct {
		TargetStage string `json:"targetStage,omitempty"`
		Direction   string `json:"direction,omitempty" jsonschema:"enum=next,enum=specific"`
	} `json:"stageTransition,omitempty"`
	Confidence          string   `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
	ClarificationNeeded []string `json:"clarificationNeeded,omitempty"`
}

type Classifier struct {
	llm    llm.Completer
	stages []string
	log    *logger.Logger
}

// NewClassifier builds a classifier. stages, when given, is listed in the
// prompt so the model names stages the way the pipeline spells them.
func NewClassifier(completer llm.Completer, stages []string, log *logger.Logger) *Classifier {
	return &Classifier{llm: completer, stages: stages, log: logger.OrNop(log)}
}

// Classify returns a well-formed intent for any model output. The error is
// non-nil only when the LLM call itself fails.
func (c *Classifier) Classify(ctx context.Context, text string, history []models.Turn) (models.ParsedIntent, error) {
	if strings.TrimSpace(text) == "" {
		return unclear(QuestionWhatToDo), nil
	}

	raw, err := c.llm.Complete(ctx, c.buildPrompt(text, history))
	if err != nil {
		return unclear(QuestionWhatToDo), models.NewError(models.KindUpstreamUnavailable, "classify intent", err)
	}

	parsed := Normalize(raw)
	c.log.Debug("intent classified",
		"action", parsed.Action,
		"confidence", parsed.Confidence.String(),
		"opportunity", parsed.OpportunityIdentifier,
		"questions", len(parsed.ClarificationNeeded))
	return parsed, nil
}

func (c *Classifier) buildPrompt(text string, history []models.Turn) string {
	var b strings.Builder
	b.WriteString("Classify what the sales rep wants to do with their CRM opportunities.\n\n")
	b.WriteString("Actions:\n")
	b.WriteString("- create_opportunity: a new deal is being described\n")
	b.WriteString("- update_opportunity: facts or a stage change for an existing deal\n")
	b.WriteString("- search_opportunity: the rep is looking something up\n")
	b.WriteString("- unclear: you cannot tell; list the questions you need answered in clarificationNeeded\n\n")
	b.WriteString("For stage changes set stageTransition.direction to \"next\" when the rep says to move it forward, or \"specific\" with targetStage when they name a stage.\n")
	if len(c.stages) > 0 {
		b.WriteString(fmt.Sprintf("Pipeline stages in order: %s\n", strings.Join(c.stages, ", ")))
	}
	b.WriteString("\nReply with JSON matching this schema:\n")
	b.WriteString(llm.SchemaJSON(reply{}))
	b.WriteString("\n")

	if len(history) > 0 {
		b.WriteString("\nEarlier in the conversation:\n")
		for _, turn := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
	}

	b.WriteString("\nLatest message:\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

// Normalize repairs a raw model reply into a ParsedIntent.
func Normalize(raw string) models.ParsedIntent {
	obj, ok := llm.DecodeObject(raw)
	if !ok {
		return unclear(QuestionWhatToDo)
	}

	out := models.ParsedIntent{
		OpportunityIdentifier: stringField(obj, "opportunityIdentifier", "opportunity_identifier", "opportunity"),
		AccountName:           stringField(obj, "accountName", "account_name", "account"),
		Information:           stringField(obj, "information", "info"),
		ClarificationNeeded:   stringList(obj, "clarificationNeeded", "clarification_needed", "questions"),
	}

	out.Confidence = models.ConfidenceLow
	if conf, ok := lookup(obj, "confidence"); ok {
		switch v := conf.(type) {
		case string:
			out.Confidence, _ = models.ParseConfidence(v)
		case float64:
			out.Confidence = models.ConfidenceFromScore(v)
		}
	}

	action, known := models.ParseAction(stringField(obj, "action", "intent"))
	out.Action = action
	if !known {
		out.Confidence = models.ConfidenceLow
		out.ClarificationNeeded = prepend(QuestionUnknownAction, out.ClarificationNeeded)
	}

	if st, ok := lookup(obj, "stageTransition", "stage_transition"); ok {
		if m, ok := st.(map[string]any); ok {
			out.StageTransition = normalizeTransition(m)
		}
	}
	if t := out.StageTransition; t != nil && t.Direction == models.DirectionSpecific && t.TargetStage == "" {
		out.Confidence = out.Confidence.Min(models.ConfidenceMedium)
		out.ClarificationNeeded = appendUnique(out.ClarificationNeeded, QuestionTargetStage)
	}

	if out.Action == models.ActionUpdateOpportunity && out.OpportunityIdentifier == "" && out.AccountName == "" {
		out.Confidence = out.Confidence.Min(models.ConfidenceMedium)
		out.ClarificationNeeded = appendUnique(out.ClarificationNeeded, QuestionWhichOpp)
	}

	if out.Action == models.ActionUnclear && len(out.ClarificationNeeded) == 0 {
		out.ClarificationNeeded = []string{QuestionWhatToDo}
	}

	return out
}

func normalizeTransition(m map[string]any) *models.StageTransition {
	t := &models.StageTransition{
		TargetStage: stringField(m, "targetStage", "target_stage", "stage"),
	}
	switch strings.ToLower(stringField(m, "direction")) {
	case string(models.DirectionNext):
		t.Direction = models.DirectionNext
	case string(models.DirectionSpecific):
		t.Direction = models.DirectionSpecific
	default:
		if t.TargetStage != "" {
			t.Direction = models.DirectionSpecific
		}
	}
	if t.Direction == "" && t.TargetStage == "" {
		return nil
	}
	return t
}

func unclear(question string) models.ParsedIntent {
	return models.ParsedIntent{
		Action:              models.ActionUnclear,
		Confidence:          models.ConfidenceLow,
		ClarificationNeeded: []string{question},
	}
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func stringList(m map[string]any, keys ...string) []string {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = appendUnique(out, strings.TrimSpace(s))
			}
		}
	case string:
		if strings.TrimSpace(t) != "" {
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func prepend(s string, list []string) []string {
	out := []string{s}
	for _, existing := range list {
		if existing != s {
			out = append(out, existing)
		}
	}
	return out
}
