// ABOUTME: Extractor that asks the LLM for field updates and a stage change
// ABOUTME: Builds the prompt from the schema and stages, then repairs the reply
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/logger"
	"github.com/harperreed/dealflow/models"
)

// wireExtraction documents the reply shape for the model.
type wireExtraction struct {
	StageChange *struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Reason string `json:"reason,omitempty"`
	} `json:"stageChange,omitempty" jsonschema:"description=Only when the notes say the deal moved stage"`
	FieldUpdates []struct {
		Field      string `json:"field" jsonschema:"description=API name of the opportunity field"`
		Value      any    `json:"value"`
		Confidence string `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
		Source     string `json:"source,omitempty" jsonschema:"description=Where in the notes this came from"`
	} `json:"fieldUpdates"`
	MissingFields []string `json:"missingFields,omitempty" jsonschema:"description=Fields you were asked about but could not determine"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

// Extractor asks the LLM for field updates and a stage change.
type Extractor struct {
	llm    llm.Completer
	schema Schema
	stages []string
	log    *logger.Logger
}

func NewExtractor(completer llm.Completer, schema Schema, stages []string, log *logger.Logger) *Extractor {
	return &Extractor{llm: completer, schema: schema, stages: stages, log: logger.OrNop(log)}
}

// Extract runs the extraction call. A failed call is UpstreamUnavailable; an
// unusable reply is UpstreamMalformed with an empty extraction.
func (e *Extractor) Extract(ctx context.Context, text string, current models.OpportunityState) (models.Extraction, error) {
	raw, err := e.llm.Complete(ctx, e.buildPrompt(text, current))
	if err != nil {
		return models.Extraction{}, models.NewError(models.KindUpstreamUnavailable, "extract updates", err)
	}

	ext, err := Parse(raw)
	if err != nil {
		e.log.Warn("extraction reply unusable", "opportunity", current.ID, "reply", truncate(raw, 200))
		return ext, err
	}

	e.log.Debug("extraction parsed",
		"opportunity", current.ID,
		"updates", len(ext.FieldUpdates),
		"stage_change", ext.StageChange != nil,
		"missing", len(ext.MissingFields))
	return ext, nil
}

func (e *Extractor) buildPrompt(text string, current models.OpportunityState) string {
	var b strings.Builder
	b.WriteString("Extract CRM updates for a Salesforce opportunity from the sales rep's notes.\n\n")
	b.WriteString(fmt.Sprintf("Opportunity: %s\n", current.Name))
	if current.AccountName != "" {
		b.WriteString(fmt.Sprintf("Account: %s\n", current.AccountName))
	}
	b.WriteString(fmt.Sprintf("Current stage: %s\n", current.Stage))
	if len(current.Fields) > 0 {
		if data, err := json.Marshal(current.Fields); err == nil {
			b.WriteString(fmt.Sprintf("Current field values: %s\n", data))
		}
	}
	if len(e.stages) > 0 {
		b.WriteString(fmt.Sprintf("Pipeline stages in order: %s\n", strings.Join(e.stages, ", ")))
	}
	if fields := e.schema.FieldsFor(current.Stage); len(fields) > 0 {
		b.WriteString(fmt.Sprintf("Fields you may update: %s\n", strings.Join(fields, ", ")))
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Only report values the notes actually state; put anything uncertain in missingFields.\n")
	b.WriteString("- stageChange.from must be the current stage.\n")
	b.WriteString("- Use true/false for yes/no fields, numbers for amounts, YYYY-MM-DD for dates.\n")

	b.WriteString("\nReply with JSON matching this schema:\n")
	b.WriteString(llm.SchemaJSON(wireExtraction{}))
	b.WriteString("\n\nNotes:\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
