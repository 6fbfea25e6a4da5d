// ABOUTME: Configuration for the LLM, local store, gate rules, field schema and scoring targets
// ABOUTME: Loads defaults, then a YAML or JSON file, then .env and environment overrides

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/harperreed/dealflow/extraction"
	"github.com/harperreed/dealflow/llm"
	"github.com/harperreed/dealflow/models"
	"github.com/harperreed/dealflow/orchestrator"
	"github.com/harperreed/dealflow/scoring"
	"github.com/harperreed/dealflow/stagegate"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the XDG config and data directories.
	AppName = "dealflow"

	// ConfigFileName is the default config file inside the config directory.
	ConfigFileName = "config.yaml"

	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultGeminiModel    = "gemini-2.5-flash"
)

// Config is immutable once loaded; every run reads the same values.
type Config struct {
	// DBPath is the local opportunity store.
	DBPath string `yaml:"db_path" json:"db_path"`

	// LogMode is one of production, development or quiet.
	LogMode string `yaml:"log_mode" json:"log_mode"`

	LLM      LLMConfig        `yaml:"llm" json:"llm"`
	Pipeline PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Scoring  scoring.Criteria `yaml:"scoring" json:"scoring"`

	// Fields maps a stage (or "*" for all stages) to the writable field names.
	Fields map[string][]string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider" json:"provider"`
	Model          string  `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey         string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL        string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty" json:"rate_limit_rps,omitempty"`
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

type PipelineConfig struct {
	// Stages in pipeline order. Empty means the standard Salesforce stages.
	Stages []string `yaml:"stages,omitempty" json:"stages,omitempty"`
	// Rules replace the built-in gate table when non-nil.
	Rules []RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty"`

	MinIntentConfidence string `yaml:"min_intent_confidence" json:"min_intent_confidence"`
	BlockedStagePolicy  string `yaml:"blocked_stage_policy" json:"blocked_stage_policy"`
	DryRun              bool   `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`
}

type RuleConfig struct {
	From    string        `yaml:"from" json:"from"`
	To      string        `yaml:"to" json:"to"`
	Warning string        `yaml:"warning,omitempty" json:"warning,omitempty"`
	Fields  []FieldConfig `yaml:"fields" json:"fields"`
}

type FieldConfig struct {
	APIName     string `yaml:"api_name" json:"api_name"`
	DisplayName string `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Validation names a validator from stagegate.Validators.
	Validation string `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		DBPath:  DefaultDBPath(),
		LogMode: "production",
		LLM: LLMConfig{
			Provider:       llm.ProviderAnthropic,
			MaxTokens:      1024,
			TimeoutSeconds: 60,
		},
		Pipeline: PipelineConfig{
			MinIntentConfidence: models.ConfidenceMedium.String(),
			BlockedStagePolicy:  string(orchestrator.ApplyFields),
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/dealflow/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, ConfigFileName)
}

// DefaultDBPath is $XDG_DATA_HOME/dealflow/dealflow.db.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, AppName, AppName+".db")
}

// Load reads path, or the default location when path is empty. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DEALFLOW_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("DEALFLOW_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DEALFLOW_LLM_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.RateLimitRPS = rps
		}
	}
	if v := os.Getenv("DEALFLOW_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DEALFLOW_LOG_MODE"); v != "" {
		c.LogMode = v
	}

	keyVar := "ANTHROPIC_API_KEY"
	if strings.EqualFold(c.LLM.Provider, llm.ProviderGemini) {
		keyVar = "GEMINI_API_KEY"
	}
	if v := os.Getenv(keyVar); v != "" {
		c.LLM.APIKey = v
	}
}

// Validate checks everything that can be checked without calling out.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "", llm.ProviderAnthropic, llm.ProviderGemini:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.OrchestratorOptions(); err != nil {
		return err
	}
	return nil
}

// Policy builds the stage gate from the configured stages and rules.
func (c *Config) Policy() (*stagegate.Policy, error) {
	stages := c.Pipeline.Stages
	if len(stages) == 0 {
		stages = stagegate.DefaultStages
	}
	if c.Pipeline.Rules == nil {
		return stagegate.NewPolicy(stages, stagegate.DefaultRules())
	}

	rules := make([]stagegate.Rule, 0, len(c.Pipeline.Rules))
	for i, rc := range c.Pipeline.Rules {
		rule := stagegate.Rule{FromStage: rc.From, ToStage: rc.To, WarningMessage: rc.Warning}
		for _, fc := range rc.Fields {
			validator, err := stagegate.LookupValidator(fc.Validation)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s -> %s): %w", i, rc.From, rc.To, err)
			}
			display := fc.DisplayName
			if display == "" {
				display = fc.APIName
			}
			rule.RequiredFields = append(rule.RequiredFields, stagegate.RequiredField{
				APIName:     fc.APIName,
				DisplayName: display,
				Description: fc.Description,
				Validation:  validator,
			})
		}
		rules = append(rules, rule)
	}
	return stagegate.NewPolicy(stages, rules)
}

// Schema returns the writable-field schema, defaulting to the standard fields.
func (c *Config) Schema() extraction.Schema {
	if c.Fields == nil {
		return extraction.DefaultSchema()
	}
	return extraction.Schema(c.Fields)
}

func (c *Config) OrchestratorOptions() (orchestrator.Options, error) {
	opts := orchestrator.DefaultOptions()
	if c.Pipeline.MinIntentConfidence != "" {
		conf, ok := models.ParseConfidence(c.Pipeline.MinIntentConfidence)
		if !ok {
			return opts, fmt.Errorf("invalid min_intent_confidence %q", c.Pipeline.MinIntentConfidence)
		}
		if conf < models.ConfidenceMedium {
			return opts, fmt.Errorf("min_intent_confidence must be medium or high, got %q", c.Pipeline.MinIntentConfidence)
		}
		opts.MinIntentConfidence = conf
	}
	policy, err := orchestrator.ParseBlockedStagePolicy(c.Pipeline.BlockedStagePolicy)
	if err != nil {
		return opts, err
	}
	opts.BlockedStagePolicy = policy
	opts.DryRun = c.Pipeline.DryRun
	return opts, nil
}

// LLMClientConfig maps the file settings onto llm.Config, picking the
// provider's default model when none is set.
func (c *Config) LLMClientConfig() llm.Config {
	model := c.LLM.Model
	if model == "" {
		model = DefaultAnthropicModel
		if strings.EqualFold(c.LLM.Provider, llm.ProviderGemini) {
			model = DefaultGeminiModel
		}
	}
	return llm.Config{
		Provider:     c.LLM.Provider,
		APIKey:       c.LLM.APIKey,
		BaseURL:      c.LLM.BaseURL,
		Model:        model,
		MaxTokens:    c.LLM.MaxTokens,
		RateLimitRPS: c.LLM.RateLimitRPS,
		Timeout:      time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}
}
