// Package config loads pixiu configuration from defaults, an optional
// YAML file, and environment variables (in that order of precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Account   AccountConfig   `yaml:"account"`
	Risk      RiskConfig      `yaml:"risk"`
	Fees      FeesConfig      `yaml:"fees"`
	Market    MarketConfig    `yaml:"market"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
	Backup    BackupConfig    `yaml:"backup"`
	Reports   ReportsConfig   `yaml:"reports"`
	Universe  FundUniverse    `yaml:"fund_universe"`
	Scoring   ScoringTargets  `yaml:"scoring_targets"`
	Benchmark []IndexRef      `yaml:"benchmark_indices"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AccountConfig seeds the single-user account.
type AccountConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CurrentCash    float64 `yaml:"current_cash"`
}

// RiskConfig holds position sizing and drawdown limits.
type RiskConfig struct {
	MaxSinglePositionPct float64 `yaml:"max_single_position_pct"`
	MaxTotalPositionPct  float64 `yaml:"max_total_position_pct"`
	MinCashReservePct    float64 `yaml:"min_cash_reserve_pct"`
	MaxDrawdownSoft      float64 `yaml:"max_drawdown_soft"`
	MaxDrawdownHard      float64 `yaml:"max_drawdown_hard"`
	SingleFundStopLoss   float64 `yaml:"single_fund_stop_loss"`
	KellyFraction        float64 `yaml:"kelly_fraction"`
}

// FeesConfig models open-end fund trading costs.
type FeesConfig struct {
	SubscriptionFeeDiscount float64 `yaml:"subscription_fee_discount"`
	ShortTermPenaltyDays    int     `yaml:"short_term_penalty_days"`
	ShortTermPenaltyRate    float64 `yaml:"short_term_penalty_rate"`
}

// MarketConfig holds market session settings.
type MarketConfig struct {
	Timezone  string `yaml:"timezone"`
	OpenTime  string `yaml:"open_time"`
	CloseTime string `yaml:"close_time"`
}

// LLMConfig configures the decision layer and its providers.
type LLMConfig struct {
	Provider               string         `yaml:"provider"`
	MaxTokens              int            `yaml:"max_tokens"`
	MaxRetries             int            `yaml:"max_retries"`
	RetryBackoffBase       int            `yaml:"retry_backoff_base"`
	RetryBackoffMax        int            `yaml:"retry_backoff_max"`
	EnableProviderFallback bool           `yaml:"enable_provider_fallback"`
	EnableThinking         bool           `yaml:"enable_thinking"`
	EnableReflection       bool           `yaml:"enable_reflection"`
	ReflectionPeriods      []int          `yaml:"reflection_periods"`
	Gemini                 ProviderConfig `yaml:"gemini"`
	Anthropic              ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig holds the model tiers for one LLM provider.
// The API key always comes from the environment, never from YAML.
type ProviderConfig struct {
	AnalysisModel          string `yaml:"analysis_model"`
	DecisionModel          string `yaml:"decision_model"`
	CriticalModel          string `yaml:"critical_model"`
	ThinkingBudget         int    `yaml:"thinking_budget"`
	CriticalThinkingBudget int    `yaml:"critical_thinking_budget"`
	APIKey                 string `yaml:"-"`
}

// ServerConfig configures the optional HTTP API.
type ServerConfig struct {
	Port int  `yaml:"port"`
	Dev  bool `yaml:"dev"`
}

// BackupConfig configures S3-compatible offsite backups.
type BackupConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"-"`
	SecretKey     string `yaml:"-"`
	RetentionDays int    `yaml:"retention_days"`
}

// ReportsConfig locates generated markdown reports.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// FundSeed is one fund in the configured universe.
type FundSeed struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// FundUniverse holds the seed funds per asset category.
type FundUniverse struct {
	Equity []FundSeed `yaml:"equity"`
	Bond   []FundSeed `yaml:"bond"`
	Index  []FundSeed `yaml:"index"`
	Gold   []FundSeed `yaml:"gold"`
	QDII   []FundSeed `yaml:"qdii"`
}

// All returns every seed fund across categories, keyed by category name.
func (u FundUniverse) All() map[string][]FundSeed {
	return map[string][]FundSeed{
		"equity": u.Equity,
		"bond":   u.Bond,
		"index":  u.Index,
		"gold":   u.Gold,
		"qdii":   u.QDII,
	}
}

// ScoringTarget defines the per-category scoring baseline.
type ScoringTarget struct {
	ReturnTarget float64 `yaml:"return_target"`
	VolCap       float64 `yaml:"vol_cap"`
	DDCap        float64 `yaml:"dd_cap"`
}

// ScoringTargets maps asset category to its scoring baseline.
type ScoringTargets map[string]ScoringTarget

// IndexRef identifies a benchmark market index.
type IndexRef struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./db/pixiu.db"},
		Log:      LogConfig{Level: "info", Pretty: true},
		Account: AccountConfig{
			InitialCapital: 10000,
			CurrentCash:    10000,
		},
		Risk: RiskConfig{
			MaxSinglePositionPct: 0.30,
			MaxTotalPositionPct:  0.90,
			MinCashReservePct:    0.10,
			MaxDrawdownSoft:      0.05,
			MaxDrawdownHard:      0.10,
			SingleFundStopLoss:   0.08,
			KellyFraction:        0.5,
		},
		Fees: FeesConfig{
			SubscriptionFeeDiscount: 0.1,
			ShortTermPenaltyDays:    7,
			ShortTermPenaltyRate:    0.015,
		},
		Market: MarketConfig{
			Timezone:  "Asia/Shanghai",
			OpenTime:  "09:30",
			CloseTime: "15:00",
		},
		LLM: LLMConfig{
			Provider:               "gemini",
			MaxTokens:              4096,
			MaxRetries:             3,
			RetryBackoffBase:       2,
			RetryBackoffMax:        8,
			EnableProviderFallback: true,
			EnableThinking:         true,
			EnableReflection:       true,
			ReflectionPeriods:      []int{7, 30},
			Gemini: ProviderConfig{
				AnalysisModel:          "gemini-2.0-flash",
				DecisionModel:          "gemini-2.5-pro",
				CriticalModel:          "gemini-2.5-pro",
				ThinkingBudget:         4096,
				CriticalThinkingBudget: 8192,
			},
			Anthropic: ProviderConfig{
				AnalysisModel:          "claude-haiku-4-5-20251001",
				DecisionModel:          "claude-sonnet-4-5",
				CriticalModel:          "claude-opus-4-5",
				ThinkingBudget:         3000,
				CriticalThinkingBudget: 5000,
			},
		},
		Server:  ServerConfig{Port: 8080},
		Backup:  BackupConfig{RetentionDays: 30},
		Reports: ReportsConfig{Dir: "./reports"},
		Universe: FundUniverse{
			Bond: []FundSeed{
				{Code: "217022", Name: "招商产业债券A"},
				{Code: "110017", Name: "易方达增强回报债券A"},
				{Code: "003376", Name: "广发中债7-10年国开债指数A"},
				{Code: "070009", Name: "嘉实超短债C"},
				{Code: "006662", Name: "易方达安悦超短债A"},
			},
			Index: []FundSeed{
				{Code: "110020", Name: "易方达沪深300ETF联接A"},
				{Code: "000962", Name: "天弘中证500ETF联接A"},
				{Code: "001593", Name: "天弘创业板ETF联接C"},
			},
			Gold: []FundSeed{
				{Code: "000307", Name: "易方达黄金ETF联接A"},
				{Code: "002610", Name: "博时黄金ETF联接A"},
			},
			QDII: []FundSeed{
				{Code: "270042", Name: "广发纳斯达克100ETF联接A"},
				{Code: "050025", Name: "博时标普500ETF联接A"},
				{Code: "161125", Name: "易方达标普500指数A"},
			},
		},
		Scoring: ScoringTargets{
			"equity": {ReturnTarget: 0.20, VolCap: 0.40, DDCap: 0.30},
			"bond":   {ReturnTarget: 0.05, VolCap: 0.08, DDCap: 0.05},
			"index":  {ReturnTarget: 0.15, VolCap: 0.35, DDCap: 0.25},
			"gold":   {ReturnTarget: 0.10, VolCap: 0.25, DDCap: 0.20},
			"qdii":   {ReturnTarget: 0.15, VolCap: 0.35, DDCap: 0.25},
		},
		Benchmark: []IndexRef{
			{Code: "000001", Name: "上证指数"},
			{Code: "399001", Name: "深证成指"},
			{Code: "399006", Name: "创业板指"},
			{Code: "000300", Name: "沪深300"},
			{Code: "000905", Name: "中证500"},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if it exists), then environment overrides. An empty path checks
// ./pixiu.yaml.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = "./pixiu.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.Dev = getEnvAsBool("DEV_MODE", c.Server.Dev)

	if p := strings.ToLower(os.Getenv("LLM_PROVIDER")); p != "" {
		c.LLM.Provider = p
	}
	c.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")

	c.Backup.Endpoint = getEnv("BACKUP_S3_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Bucket = getEnv("BACKUP_S3_BUCKET", c.Backup.Bucket)
	c.Backup.AccessKey = os.Getenv("BACKUP_S3_ACCESS_KEY")
	c.Backup.SecretKey = os.Getenv("BACKUP_S3_SECRET_KEY")
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.LLM.Provider != "gemini" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Risk.MaxSinglePositionPct <= 0 || c.Risk.MaxSinglePositionPct > 1 {
		return fmt.Errorf("max_single_position_pct must be in (0, 1]")
	}
	if c.Risk.MinCashReservePct < 0 || c.Risk.MinCashReservePct >= 1 {
		return fmt.Errorf("min_cash_reserve_pct must be in [0, 1)")
	}
	if len(c.LLM.ReflectionPeriods) == 0 {
		c.LLM.ReflectionPeriods = []int{7, 30}
	}
	return nil
}

// Provider returns the config of the named provider, defaulting to the
// active one when name is empty.
func (l LLMConfig) ProviderConfig(name string) ProviderConfig {
	if name == "" {
		name = l.Provider
	}
	if name == "anthropic" {
		return l.Anthropic
	}
	return l.Gemini
}

// FallbackProvider returns the name of the secondary provider.
func (l LLMConfig) FallbackProvider() string {
	if l.Provider == "anthropic" {
		return "gemini"
	}
	return "anthropic"
}

// SetProviderEnv rewrites (or appends) the LLM_PROVIDER line in the
// .env file at envPath so the switch survives restarts.
func SetProviderEnv(envPath, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "gemini" && provider != "anthropic" {
		return fmt.Errorf("unknown llm provider %q", provider)
	}
	if envPath == "" {
		envPath = ".env"
	}

	line := "LLM_PROVIDER=" + provider
	data, err := os.ReadFile(envPath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(envPath), 0o755); mkErr != nil && filepath.Dir(envPath) != "." {
			return mkErr
		}
		return os.WriteFile(envPath, []byte(line+"\n"), 0o600)
	}
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "LLM_PROVIDER=") {
			lines[i] = line
			replaced = true
		}
	}
	if !replaced {
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "" {
			lines[n-1] = line
			lines = append(lines, "")
		} else {
			lines = append(lines, line)
		}
	}
	return os.WriteFile(envPath, []byte(strings.Join(lines, "\n")), 0o600)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
