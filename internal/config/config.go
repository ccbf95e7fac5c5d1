// Package config resolves settings from defaults, an optional chaptran.yaml,
// a .env file, the environment and bound command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/chaptran/internal/chunker"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/rules"
	"github.com/valpere/chaptran/internal/scraper"
	"github.com/valpere/chaptran/internal/translator"
)

const (
	StageFetch = "fetch"
	StageRaw   = "raw"
	StageEdit  = "edit"
)

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"base_dir":              "BOOK_BASE_DIR",
	"fetch.source_url":      "BOOK_SOURCE_URL",
	"raw.service.api_key":   "STEP2_API_KEY",
	"raw.service.base_url":  "STEP2_API_BASE",
	"raw.service.model":     "STEP2_MODEL",
	"edit.service.provider": "LLM_PROVIDER",
	"edit.service.api_key":  "LLM_API_KEY",
	"edit.service.base_url": "LLM_API_BASE",
	"edit.service.model":    "LLM_MODEL",
	"db":                    "CHAPTRAN_DB",
	"log_level":             "CHAPTRAN_LOG_LEVEL",
	"error_log":             "CHAPTRAN_ERROR_LOG",

	"edit.service.gemini_base_url": "GEMINI_API_BASE",
}

type Config struct {
	BaseDir    string `mapstructure:"base_dir"`
	DBPath     string `mapstructure:"db"`
	LogLevel   string `mapstructure:"log_level"`
	ErrorLog   string `mapstructure:"error_log"`
	TargetLang string `mapstructure:"target_lang"`

	Fetch FetchConfig `mapstructure:"fetch"`
	Raw   StageConfig `mapstructure:"raw"`
	Edit  StageConfig `mapstructure:"edit"`
}

type FetchConfig struct {
	SourceURL string        `mapstructure:"source_url"`
	Delay     time.Duration `mapstructure:"delay"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retry     retry.Config  `mapstructure:"retry"`
}

type StageConfig struct {
	Service translator.ServiceConfig `mapstructure:"service"`
	// BatchProvider serves batched requests when BatchSize > 0.
	BatchProvider string        `mapstructure:"batch_provider"`
	BatchSize     int           `mapstructure:"batch_size"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	Rules         string        `mapstructure:"rules"`
	Delay         time.Duration `mapstructure:"delay"`
	Validate      bool          `mapstructure:"validate"`
	Memory        bool          `mapstructure:"memory"`
	ProtectMarkup bool          `mapstructure:"protect_markup"`
	Retry         retry.Config  `mapstructure:"retry"`
}

// BatchService returns the provider settings used for batched requests.
func (s StageConfig) BatchService() translator.ServiceConfig {
	cfg := s.Service
	cfg.Provider = s.BatchProvider
	return cfg
}

// New returns a viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range envKeys {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(key, env)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	rc := retry.DefaultConfig()

	v.SetDefault("base_dir", "bjXRF")
	v.SetDefault("db", "./data/chaptran.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("error_log", "errors.log")
	v.SetDefault("target_lang", "vi")

	v.SetDefault("fetch.source_url", scraper.DefaultBaseURL)
	v.SetDefault("fetch.delay", time.Second)
	v.SetDefault("fetch.timeout", 10*time.Second)
	setRetryDefaults(v, "fetch.retry", rc)

	v.SetDefault("raw.service.provider", "openai")
	v.SetDefault("raw.service.model", "GPT-5-nano")
	v.SetDefault("raw.service.timeout", 120*time.Second)
	v.SetDefault("raw.service.source_lang", "zh-CN")
	v.SetDefault("raw.batch_provider", "batchexecute")
	v.SetDefault("raw.batch_size", 0)
	v.SetDefault("raw.chunk_size", chunker.DefaultMaxSize)
	v.SetDefault("raw.rules", rules.TranslatorFile)
	v.SetDefault("raw.delay", time.Second)
	v.SetDefault("raw.validate", false)
	v.SetDefault("raw.memory", true)
	v.SetDefault("raw.protect_markup", true)
	setRetryDefaults(v, "raw.retry", rc)

	v.SetDefault("edit.service.provider", "openai")
	v.SetDefault("edit.service.model", "gpt-5-mini")
	v.SetDefault("edit.service.timeout", 300*time.Second)
	v.SetDefault("edit.service.temperature", 0.7)
	v.SetDefault("edit.service.source_lang", "zh-CN")
	v.SetDefault("edit.batch_provider", "batchexecute")
	v.SetDefault("edit.batch_size", 0)
	v.SetDefault("edit.chunk_size", 0)
	v.SetDefault("edit.rules", rules.EditorFile)
	v.SetDefault("edit.delay", time.Second)
	v.SetDefault("edit.validate", true)
	v.SetDefault("edit.memory", false)
	v.SetDefault("edit.protect_markup", false)
	setRetryDefaults(v, "edit.retry", rc)
}

func setRetryDefaults(v *viper.Viper, prefix string, rc retry.Config) {
	v.SetDefault(prefix+".attempts", rc.Attempts)
	v.SetDefault(prefix+".rate_delay", rc.RateDelay)
	v.SetDefault(prefix+".failure_delay", rc.FailureDelay)
	v.SetDefault(prefix+".attempt_timeout", rc.AttemptTimeout)
	v.SetDefault(prefix+".breaker_threshold", rc.BreakerThreshold)
	v.SetDefault(prefix+".breaker_cooldown", rc.BreakerCooldown)
}

// LoadEnv reads .env files into the process environment. Variables that are
// already set win; a missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ReadFile reads cfgFile, or chaptran.yaml from the working directory when
// cfgFile is empty. It returns the path used, or "" when no file was found.
func ReadFile(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("chaptran")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// BindFlags binds each flag to a config key; flags left at their default
// do not override other sources.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Raw.Service.TargetLang = firstNonEmpty(cfg.Raw.Service.TargetLang, cfg.TargetLang)
	cfg.Edit.Service.TargetLang = firstNonEmpty(cfg.Edit.Service.TargetLang, cfg.TargetLang)
	return &cfg, nil
}

// Stage returns the settings of the raw or edit stage.
func (c *Config) Stage(name string) (StageConfig, error) {
	switch name {
	case StageRaw:
		return c.Raw, nil
	case StageEdit:
		return c.Edit, nil
	default:
		return StageConfig{}, fmt.Errorf("unknown stage %q", name)
	}
}

// Validate checks what the named stage needs before any chapter is touched.
func (c *Config) Validate(stage string) error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return errors.New("base_dir must be set (BOOK_BASE_DIR)")
	}

	if stage == StageFetch {
		if c.Fetch.SourceURL == "" {
			return errors.New("fetch.source_url must be set (BOOK_SOURCE_URL)")
		}
		return nil
	}

	sc, err := c.Stage(stage)
	if err != nil {
		return err
	}
	if sc.BatchSize != 0 && (sc.BatchSize < 1 || sc.BatchSize > 10) {
		return fmt.Errorf("%s.batch_size must be between 1 and 10, got %d", stage, sc.BatchSize)
	}
	if sc.ChunkSize < 0 {
		return fmt.Errorf("%s.chunk_size must not be negative", stage)
	}
	if sc.Retry.Attempts < 1 {
		return fmt.Errorf("%s.retry.attempts must be at least 1", stage)
	}

	svc := sc.Service
	if sc.BatchSize > 0 {
		svc = sc.BatchService()
	}
	if strings.EqualFold(svc.Provider, "openai") || svc.Provider == "" {
		prefix := "STEP2"
		if stage == StageEdit {
			prefix = "LLM"
		}
		if svc.APIKey == "" || svc.BaseURL == "" {
			return fmt.Errorf("%s_API_KEY and %s_API_BASE must be set", prefix, prefix)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
