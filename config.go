package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Metadata source. Driver is any registered database/sql driver;
	// sqlite3 is what local runs and tests use.
	MetadataDriver string `yaml:"metadata_driver"`
	MetadataDSN    string `yaml:"metadata_dsn"`

	// Scope identifiers spliced (after validation) into check templates.
	Project       string   `yaml:"project"`
	Dataset       string   `yaml:"dataset"`
	ChildProjects []string `yaml:"child_projects"`

	LLMProvider     string  `yaml:"llm_provider"`
	LLMModel        string  `yaml:"llm_model"`
	LLMTemperature  float64 `yaml:"llm_temperature"`
	LLMMaxTokens    int     `yaml:"llm_max_tokens"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`

	Policy Policy `yaml:"policy"`

	HistoryDBPath   string `yaml:"history_db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`
	TeamName        string `yaml:"team_name"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	// Standard 5-field cron expression; empty means run once and exit.
	AuditSchedule  string `yaml:"audit_schedule"`
	ParallelChecks bool   `yaml:"audit_parallel_checks"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.MetadataDriver, "METADATA_DRIVER")
	envOverride(&cfg.MetadataDSN, "METADATA_DSN")
	envOverride(&cfg.Project, "AUDIT_PROJECT")
	envOverride(&cfg.Dataset, "AUDIT_DATASET")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE")
	envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.HistoryDBPath, "HISTORY_DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.TeamName, "TEAM_NAME")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AuditSchedule, "AUDIT_SCHEDULE")
	envOverrideFloat(&cfg.Policy.SwitchMargin, "POLICY_SWITCH_MARGIN")
	envOverrideFloat(&cfg.Policy.PendingThresholdMs, "POLICY_PENDING_THRESHOLD_MS")
	envOverrideFloat(&cfg.Policy.UnlabeledCostPct, "POLICY_UNLABELED_COST_PCT")
	envOverrideFloat(&cfg.Policy.ScanRatioAlert, "POLICY_SCAN_RATIO_ALERT")

	if names := os.Getenv("AUDIT_CHILD_PROJECTS"); names != "" {
		cfg.ChildProjects = nil
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				cfg.ChildProjects = append(cfg.ChildProjects, name)
			}
		}
	}

	// Defaults
	if cfg.MetadataDriver == "" {
		cfg.MetadataDriver = "sqlite3"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.3
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 2048
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "./bqauditor.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "warehouse"
	}
	cfg.Policy = cfg.Policy.withDefaults()

	// Validate required fields
	required := map[string]string{
		"metadata_dsn": cfg.MetadataDSN,
		"project":      cfg.Project,
		"dataset":      cfg.Dataset,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	case "none":
		// Audit without the AI summary.
	default:
		log.Fatalf("llm_provider must be 'anthropic', 'openai' or 'none', got '%s'", cfg.LLMProvider)
	}

	if !identRe.MatchString(cfg.Project) {
		log.Fatalf("invalid project '%s': identifiers may only contain [A-Za-z0-9_.-]", cfg.Project)
	}
	if !identRe.MatchString(cfg.Dataset) {
		log.Fatalf("invalid dataset '%s': identifiers may only contain [A-Za-z0-9_.-]", cfg.Dataset)
	}
	for _, child := range cfg.ChildProjects {
		if !identRe.MatchString(child) {
			log.Fatalf("invalid child project '%s': identifiers may only contain [A-Za-z0-9_.-]", child)
		}
	}
	if err := cfg.Policy.validate(); err != nil {
		log.Fatalf("invalid policy: %v", err)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 1 {
		log.Fatalf("invalid llm_temperature '%f': must be between 0 and 1", cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens < 1 {
		log.Fatalf("invalid llm_max_tokens '%d': must be >= 1", cfg.LLMMaxTokens)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}
