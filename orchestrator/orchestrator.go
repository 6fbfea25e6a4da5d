// ABOUTME: Update orchestrator sequencing intent, extraction, gating and CRM writes
// ABOUTME: One Run handles one conversational turn and issues at most one field batch
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/dealflow/crm"
	"github.com/harperreed/dealflow/extraction"
	"github.com/harperreed/dealflow/logger"
	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusNeedsClarification  Status = "needs_clarification"
	StatusApplied             Status = "applied"
	StatusAppliedStageBlocked Status = "applied_stage_blocked"
	StatusBlocked             Status = "blocked"
	StatusNoChanges           Status = "no_changes"
	StatusDryRun              Status = "dry_run"
	StatusCreated             Status = "created"
	StatusSearched            Status = "searched"
	StatusNotFound            Status = "not_found"
	StatusFailed              Status = "failed"
)

// BlockedStagePolicy decides what happens to field updates when the stage
// change in the same batch is refused by the gate.
type BlockedStagePolicy string

const (
	// ApplyFields writes the field batch and leaves the stage unchanged.
	ApplyFields BlockedStagePolicy = "apply_fields"
	// HoldAll writes nothing until the gate is satisfied.
	HoldAll BlockedStagePolicy = "hold_all"
)

// ParseBlockedStagePolicy accepts the config spellings of a policy.
func ParseBlockedStagePolicy(s string) (BlockedStagePolicy, error) {
	switch BlockedStagePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ApplyFields:
		return ApplyFields, nil
	case HoldAll:
		return HoldAll, nil
	}
	return "", fmt.Errorf("unknown blocked stage policy %q", s)
}

// Classifier turns a turn into a ParsedIntent.
type Classifier interface {
	Classify(ctx context.Context, text string, history []models.Turn) (models.ParsedIntent, error)
}

// Extractor proposes field updates and a stage change for an opportunity.
type Extractor interface {
	Extract(ctx context.Context, text string, current models.OpportunityState) (models.Extraction, error)
}

type Deps struct {
	Classifier Classifier
	Extractor  Extractor
	Merger     *extraction.Merger
	Page       crm.Page
	Policy     *stagegate.Policy
	Log        *logger.Logger
}

type Options struct {
	// MinIntentConfidence is the lowest intent confidence that may lead to
	// writes. Anything below medium is raised to medium.
	MinIntentConfidence models.Confidence
	BlockedStagePolicy  BlockedStagePolicy
	// DryRun computes the outcome without calling any write on the page.
	DryRun bool
}

// DefaultOptions requires at least medium confidence and applies fields when
// the stage is blocked.
func DefaultOptions() Options {
	return Options{
		MinIntentConfidence: models.ConfidenceMedium,
		BlockedStagePolicy:  ApplyFields,
	}
}

// Outcome is the user-facing result of one run.
type Outcome struct {
	RunID       string                   `json:"run_id"`
	Status      Status                   `json:"status"`
	Intent      models.ParsedIntent      `json:"intent"`
	Opportunity *models.OpportunityState `json:"opportunity,omitempty"`
	// Planned is the merged batch; Applied is what the page accepted.
	Planned       []models.FieldUpdate      `json:"planned,omitempty"`
	Applied       []models.FieldUpdate      `json:"applied,omitempty"`
	StageAdvanced bool                      `json:"stage_advanced"`
	Decision      *models.StageDecision     `json:"stage_decision,omitempty"`
	MissingFields []string                  `json:"missing_fields,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
	Questions     []string                  `json:"questions,omitempty"`
	Suggestions   []string                  `json:"suggestions,omitempty"`
	Matches       []models.OpportunityState `json:"matches,omitempty"`
	Messages      []string                  `json:"messages,omitempty"`
}

func (o *Outcome) say(format string, args ...any) {
	o.Messages = append(o.Messages, fmt.Sprintf(format, args...))
}

type Orchestrator struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Classifier == nil || deps.Page == nil {
		return nil, errors.New("orchestrator needs a classifier and a page")
	}
	if deps.Extractor == nil {
		return nil, errors.New("orchestrator needs an extractor")
	}
	if deps.Policy == nil {
		deps.Policy = stagegate.MustPolicy(nil, nil)
	}
	if deps.Merger == nil {
		deps.Merger = extraction.NewMerger(deps.Policy, nil)
	}
	if opts.BlockedStagePolicy == "" {
		opts.BlockedStagePolicy = ApplyFields
	}
	// A low-confidence intent never writes.
	if opts.MinIntentConfidence < models.ConfidenceMedium {
		opts.MinIntentConfidence = models.ConfidenceMedium
	}
	return &Orchestrator{deps: deps, opts: opts, log: logger.OrNop(deps.Log)}, nil
}

// Run processes one turn. The returned error is non-nil only when the run
// failed; Outcome is always populated enough to render to the user.
func (o *Orchestrator) Run(ctx context.Context, text string, history []models.Turn) (Outcome, error) {
	out := Outcome{RunID: ulid.Make().String()}
	log := o.log.With("run_id", out.RunID)

	parsed, err := o.deps.Classifier.Classify(ctx, text, history)
	out.Intent = parsed
	if err != nil {
		log.Warn("intent classification failed", "error", err)
		out.Status = StatusFailed
		out.say("I couldn't understand that right now: %v", err)
		return out, err
	}

	if parsed.Action == models.ActionUnclear || parsed.Confidence < o.opts.MinIntentConfidence {
		out.Status = StatusNeedsClarification
		out.Questions = parsed.ClarificationNeeded
		if len(out.Questions) == 0 {
			out.Questions = []string{confirmQuestion(parsed)}
		}
		log.Info("asking for clarification", "action", parsed.Action, "confidence", parsed.Confidence.String())
		return out, nil
	}

	switch parsed.Action {
	case models.ActionCreateOpportunity:
		out, err = o.create(ctx, log, out)
	case models.ActionSearchOpportunity:
		out, err = o.search(ctx, log, out)
	default:
		out, err = o.update(ctx, log, text, out)
	}
	// Questions the classifier raised still reach the rep when the run proceeds.
	out.Questions = mergeQuestions(out.Questions, parsed.ClarificationNeeded)
	return out, err
}

func mergeQuestions(questions, extra []string) []string {
	for _, q := range extra {
		dup := false
		for _, existing := range questions {
			if existing == q {
				dup = true
				break
			}
		}
		if !dup {
			questions = append(questions, q)
		}
	}
	return questions
}

func (o *Orchestrator) update(ctx context.Context, log *logger.Logger, text string, out Outcome) (Outcome, error) {
	identifier := targetOf(out.Intent)

	current, err := o.deps.Page.ReadOpportunity(ctx, identifier)
	switch {
	case errors.Is(err, crm.ErrNotFound):
		out.Status = StatusNotFound
		out.Questions = []string{fmt.Sprintf("I couldn't find an opportunity matching %q. Which one did you mean?", identifier)}
		return out, nil
	case errors.Is(err, crm.ErrAmbiguous):
		out.Status = StatusNeedsClarification
		out.Matches = o.lookup(ctx, identifier)
		out.Questions = []string{fmt.Sprintf("Several opportunities match %q. Which one should I update?", identifier)}
		return out, nil
	case err != nil:
		log.Error("reading opportunity failed", "identifier", identifier, "error", err)
		out.Status = StatusFailed
		out.say("Couldn't read %q from the CRM.", identifier)
		return out, models.NewError(models.KindUpstreamUnavailable, "read opportunity", err)
	}
	out.Opportunity = &current
	log = log.With("opportunity", current.ID)

	ext, err := o.deps.Extractor.Extract(ctx, text, current)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		out.Status = StatusFailed
		out.say("Nothing was changed: the update could not be extracted.")
		return out, err
	}

	if ext.StageChange == nil {
		if change, warning := o.requestedStageChange(out.Intent, current); change != nil {
			ext.StageChange = change
		} else if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
	}

	res := o.deps.Merger.Merge(ext, current)
	out.Planned = res.Updates
	out.Decision = res.StageDecision
	out.MissingFields = res.MissingFields
	out.Warnings = append(out.Warnings, res.Warnings...)
	out.Suggestions = res.Suggestions

	if res.StageBlocked() {
		log.Info("stage change blocked",
			"from", res.StageDecision.From,
			"to", res.StageDecision.To,
			"missing", strings.Join(res.StageDecision.MissingFields, ","))
		out.Questions = blockedQuestions(res.StageDecision)
		if o.opts.BlockedStagePolicy == HoldAll {
			out.Status = StatusBlocked
			out.say("Held %d field update(s) until %s can move to %s.", len(res.Updates), current.Name, res.StageDecision.To)
			return out, nil
		}
	}

	advance := res.StageDecision != nil && res.StageDecision.Allowed &&
		!models.SameStage(res.StageDecision.From, res.StageDecision.To)

	if len(res.Updates) == 0 && !advance {
		if res.StageBlocked() {
			out.Status = StatusBlocked
		} else {
			out.Status = StatusNoChanges
			out.say("No changes found for %s.", current.Name)
		}
		return out, nil
	}

	if o.opts.DryRun {
		out.Status = StatusDryRun
		out.say("Dry run: would write %d field(s) to %s.", len(res.Updates), current.Name)
		if advance {
			out.say("Dry run: would move %s to %s.", current.Name, res.StageDecision.To)
		}
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		out.Status = StatusFailed
		out.say("Cancelled before anything was written.")
		return out, fmt.Errorf("write phase: %w", err)
	}

	if len(res.Updates) > 0 {
		if err := o.deps.Page.WriteFields(ctx, current.ID, res.Updates); err != nil {
			log.Error("writing fields failed", "fields", len(res.Updates), "error", err)
			out.Status = StatusFailed
			out.say("Nothing was saved to %s: the CRM rejected the update.", current.Name)
			return out, models.NewError(models.KindWriteFailed, "write fields", err)
		}
		out.Applied = res.Updates
		out.say("Updated %d field(s) on %s.", len(res.Updates), current.Name)
		log.Info("fields written", "fields", len(res.Updates))
	}

	if advance {
		if err := o.deps.Page.AdvanceStage(ctx, current.ID, res.StageDecision.To); err != nil {
			log.Error("advancing stage failed", "to", res.StageDecision.To, "error", err)
			out.Status = StatusFailed
			out.say("Couldn't move %s to %s.", current.Name, res.StageDecision.To)
			return out, models.NewError(models.KindWriteFailed, "advance stage", err)
		}
		out.StageAdvanced = true
		out.say("Moved %s from %s to %s.", current.Name, res.StageDecision.From, res.StageDecision.To)
		log.Info("stage advanced", "from", res.StageDecision.From, "to", res.StageDecision.To)
	}

	if res.StageBlocked() {
		out.Status = StatusAppliedStageBlocked
		out.say("%s stays in %s until the missing fields are filled in.", current.Name, current.Stage)
	} else {
		out.Status = StatusApplied
	}
	return out, nil
}

// requestedStageChange turns the intent's stage transition into a stage
// change when the extraction proposed none.
func (o *Orchestrator) requestedStageChange(parsed models.ParsedIntent, current models.OpportunityState) (*models.StageChange, string) {
	st := parsed.StageTransition
	if st == nil {
		return nil, ""
	}
	switch {
	case st.TargetStage != "":
		return &models.StageChange{From: current.Stage, To: st.TargetStage, Reason: "requested by user"}, ""
	case st.Direction == models.DirectionNext:
		next, ok := o.deps.Policy.NextStage(current.Stage)
		if !ok {
			return nil, fmt.Sprintf("There is no stage after %s.", current.Stage)
		}
		return &models.StageChange{From: current.Stage, To: next, Reason: "requested next stage"}, ""
	case st.Direction == models.DirectionSpecific:
		return nil, fmt.Sprintf("No target stage was given, so %s stays in %s.", current.Name, current.Stage)
	}
	return nil, ""
}

func (o *Orchestrator) create(ctx context.Context, log *logger.Logger, out Outcome) (Outcome, error) {
	creator, ok := o.deps.Page.(crm.Creator)
	if !ok {
		out.Status = StatusFailed
		out.say("This CRM connection can't create opportunities.")
		return out, models.NewError(models.KindUpstreamUnavailable, "create opportunity", errors.New("page does not support creation"))
	}

	name := strings.TrimSpace(out.Intent.OpportunityIdentifier)
	if name == "" {
		out.Status = StatusNeedsClarification
		out.Questions = []string{"What should the new opportunity be called?"}
		return out, nil
	}

	state := models.OpportunityState{Name: name, AccountName: out.Intent.AccountName}
	if st := out.Intent.StageTransition; st != nil && st.TargetStage != "" && o.deps.Policy.IsKnownStage(st.TargetStage) {
		state.Stage = o.deps.Policy.CanonicalStage(st.TargetStage)
	} else if stages := o.deps.Policy.Stages(); len(stages) > 0 {
		state.Stage = stages[0]
	}

	if o.opts.DryRun {
		out.Status = StatusDryRun
		out.Opportunity = &state
		out.say("Dry run: would create %s.", name)
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		out.Status = StatusFailed
		return out, fmt.Errorf("create: %w", err)
	}

	created, err := creator.CreateOpportunity(ctx, state)
	if err != nil {
		log.Error("creating opportunity failed", "name", name, "error", err)
		out.Status = StatusFailed
		out.say("Couldn't create %s.", name)
		return out, models.NewError(models.KindWriteFailed, "create opportunity", err)
	}
	out.Status = StatusCreated
	out.Opportunity = &created
	out.say("Created %s in %s.", created.Name, created.Stage)
	log.Info("opportunity created", "opportunity", created.ID)
	return out, nil
}

func (o *Orchestrator) search(ctx context.Context, log *logger.Logger, out Outcome) (Outcome, error) {
	finder, ok := o.deps.Page.(crm.Finder)
	if !ok {
		out.Status = StatusFailed
		out.say("This CRM connection can't search opportunities.")
		return out, models.NewError(models.KindUpstreamUnavailable, "search opportunities", errors.New("page does not support search"))
	}

	query := targetOf(out.Intent)
	matches, err := finder.FindOpportunities(ctx, query, 10)
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		out.Status = StatusFailed
		return out, models.NewError(models.KindUpstreamUnavailable, "search opportunities", err)
	}
	out.Matches = matches
	if len(matches) == 0 {
		out.Status = StatusNotFound
		out.say("No opportunities match %q.", query)
		return out, nil
	}
	out.Status = StatusSearched
	out.say("Found %d opportunit%s matching %q.", len(matches), plural(len(matches), "y", "ies"), query)
	return out, nil
}

// lookup lists candidates for an ambiguous identifier when the page can search.
func (o *Orchestrator) lookup(ctx context.Context, query string) []models.OpportunityState {
	finder, ok := o.deps.Page.(crm.Finder)
	if !ok {
		return nil
	}
	matches, err := finder.FindOpportunities(ctx, query, 10)
	if err != nil {
		o.log.Warn("listing ambiguous matches failed", "query", query, "error", err)
		return nil
	}
	return matches
}

func targetOf(parsed models.ParsedIntent) string {
	if id := strings.TrimSpace(parsed.OpportunityIdentifier); id != "" {
		return id
	}
	return strings.TrimSpace(parsed.AccountName)
}

func confirmQuestion(parsed models.ParsedIntent) string {
	verb := strings.ReplaceAll(string(parsed.Action), "_", " ")
	if target := targetOf(parsed); target != "" {
		return fmt.Sprintf("Just to confirm: should I %s %q?", verb, target)
	}
	return fmt.Sprintf("Just to confirm: should I %s?", verb)
}

func blockedQuestions(d *models.StageDecision) []string {
	if len(d.Warnings) > 0 {
		return append([]string(nil), d.Warnings...)
	}
	qs := make([]string, 0, len(d.MissingFields))
	for _, f := range d.MissingFields {
		qs = append(qs, fmt.Sprintf("What is the value of %s?", f))
	}
	return qs
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
