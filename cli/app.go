// ABOUTME: Shared wiring for CLI and MCP commands
// ABOUTME: Builds the gate policy, store, LLM client and orchestrator from config
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/harperreed/dealflow/config"
	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/extraction"
	"github.com/harperreed/dealflow/handlers"
	"github.com/harperreed/dealflow/intent"
	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/logger"
	"github.com/harperreed/dealflow/orchestrator"
	"github.com/harperreed/dealflow/stagegate"
)

// App is everything a subcommand needs. Model is nil when no API key is
// configured; only process_update and the update command need it.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Log    *logger.Logger
	Policy *stagegate.Policy
	Store  *db.Store
	Model  llm.Completer
	Out    io.Writer
}

// NewApp builds an App, creating an LLM client when an API key is available.
func NewApp(ctx context.Context, database *sql.DB, cfg *config.Config, log *logger.Logger) (*App, error) {
	var model llm.Completer
	if cfg.LLM.APIKey != "" {
		var err error
		model, err = llm.New(ctx, cfg.LLMClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	}
	return Build(database, cfg, model, log)
}

// Build wires an App around an existing model, which may be nil.
func Build(database *sql.DB, cfg *config.Config, model llm.Completer, log *logger.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &App{
		DB:     database,
		Config: cfg,
		Log:    logger.OrNop(log),
		Policy: policy,
		Store:  db.NewStore(database),
		Model:  model,
		Out:    os.Stdout,
	}, nil
}

// Orchestrator assembles a pipeline run. Returns nil, nil without a model.
func (a *App) Orchestrator(dryRun bool) (*orchestrator.Orchestrator, error) {
	if a.Model == nil {
		return nil, nil
	}
	opts, err := a.Config.OrchestratorOptions()
	if err != nil {
		return nil, err
	}
	opts.DryRun = opts.DryRun || dryRun

	schema := a.Config.Schema()
	stages := a.Policy.Stages()
	return orchestrator.New(orchestrator.Deps{
		Classifier: intent.NewClassifier(a.Model, stages, a.Log),
		Extractor:  extraction.NewExtractor(a.Model, schema, stages, a.Log),
		Merger:     extraction.NewMerger(a.Policy, schema),
		Page:       a.Store,
		Policy:     a.Policy,
		Log:        a.Log,
	}, opts)
}

// UpdateHandlers wires the conversational tools; process_update reports
// ErrNoLLM when there is no model.
func (a *App) UpdateHandlers(dryRun bool) (*handlers.UpdateHandlers, error) {
	orch, err := a.Orchestrator(dryRun)
	if err != nil {
		return nil, err
	}
	return handlers.NewUpdateHandlers(orch, a.Store, a.Policy), nil
}
