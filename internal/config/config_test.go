package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envKeys {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BaseDir != "bjXRF" {
		t.Errorf("expected default base dir, got %q", cfg.BaseDir)
	}
	if cfg.Fetch.SourceURL != "https://www.52shuku.net" {
		t.Errorf("unexpected source url %q", cfg.Fetch.SourceURL)
	}
	if cfg.Raw.Service.Model != "GPT-5-nano" || cfg.Edit.Service.Model != "gpt-5-mini" {
		t.Errorf("unexpected models %q / %q", cfg.Raw.Service.Model, cfg.Edit.Service.Model)
	}
	if cfg.Raw.ChunkSize != 2000 || cfg.Edit.ChunkSize != 0 {
		t.Errorf("unexpected chunk sizes %d / %d", cfg.Raw.ChunkSize, cfg.Edit.ChunkSize)
	}
	if cfg.Raw.Rules != "TRANSLATOR.md" || cfg.Edit.Rules != "EDITOR.md" {
		t.Errorf("unexpected rules files %q / %q", cfg.Raw.Rules, cfg.Edit.Rules)
	}
	if cfg.Raw.Retry.Attempts != 3 || cfg.Raw.Retry.FailureDelay != 2*time.Second || cfg.Raw.Retry.RateDelay != time.Second {
		t.Errorf("unexpected retry config %+v", cfg.Raw.Retry)
	}
	if !cfg.Raw.ProtectMarkup || cfg.Edit.ProtectMarkup {
		t.Errorf("expected markup protection on raw only, got %v / %v", cfg.Raw.ProtectMarkup, cfg.Edit.ProtectMarkup)
	}
	if cfg.Raw.Service.Temperature != 0 || cfg.Edit.Service.Temperature != 0.7 {
		t.Errorf("expected temperature unset for raw and 0.7 for edit, got %v / %v", cfg.Raw.Service.Temperature, cfg.Edit.Service.Temperature)
	}
	if cfg.Raw.Service.TargetLang != "vi" || cfg.Edit.Service.TargetLang != "vi" {
		t.Errorf("expected target language to fall back to vi, got %q / %q", cfg.Raw.Service.TargetLang, cfg.Edit.Service.TargetLang)
	}
}

func TestLoad_EnvironmentKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOK_BASE_DIR", "book42")
	t.Setenv("STEP2_API_KEY", "raw-key")
	t.Setenv("STEP2_API_BASE", "https://raw.example/v1")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("LLM_MODEL", "gemini-2.5-flash")
	t.Setenv("LLM_API_BASE", "https://openai.example/v1")

	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BaseDir != "book42" {
		t.Errorf("expected base dir from env, got %q", cfg.BaseDir)
	}
	if cfg.Raw.Service.APIKey != "raw-key" || cfg.Raw.Service.BaseURL != "https://raw.example/v1" {
		t.Errorf("unexpected raw service %+v", cfg.Raw.Service)
	}
	if cfg.Edit.Service.Provider != "gemini" || cfg.Edit.Service.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected edit service %+v", cfg.Edit.Service)
	}
	if cfg.Edit.Service.APIKey != "" {
		t.Errorf("raw key must not leak into edit stage, got %q", cfg.Edit.Service.APIKey)
	}
	if cfg.Edit.Service.GeminiBaseURL != "" {
		t.Errorf("LLM_API_BASE must not become the Gemini endpoint, got %q", cfg.Edit.Service.GeminiBaseURL)
	}

	t.Setenv("GEMINI_API_BASE", "https://gemini.example")
	cfg, err = Load(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Edit.Service.GeminiBaseURL != "https://gemini.example" {
		t.Errorf("expected Gemini endpoint from GEMINI_API_BASE, got %q", cfg.Edit.Service.GeminiBaseURL)
	}
}

func TestReadFile_YAMLAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := `base_dir: from-file
raw:
  batch_size: 5
  retry:
    attempts: 4
    failure_delay: 500ms
edit:
  delay: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOK_BASE_DIR", "from-env")

	v := New()
	used, err := ReadFile(v, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != path {
		t.Errorf("expected %q, got %q", path, used)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseDir != "from-env" {
		t.Errorf("environment should override the file, got %q", cfg.BaseDir)
	}
	if cfg.Raw.BatchSize != 5 || cfg.Raw.Retry.Attempts != 4 || cfg.Raw.Retry.FailureDelay != 500*time.Millisecond {
		t.Errorf("unexpected raw stage %+v", cfg.Raw)
	}
	if cfg.Raw.Retry.RateDelay != time.Second {
		t.Errorf("unset retry fields should keep defaults, got %v", cfg.Raw.Retry.RateDelay)
	}
	if cfg.Edit.Delay != 2*time.Second {
		t.Errorf("expected 2s edit delay, got %v", cfg.Edit.Delay)
	}
}

func TestReadFile_MissingDefaultIsFine(t *testing.T) {
	t.Chdir(t.TempDir())

	used, err := ReadFile(New(), "")
	if err != nil || used != "" {
		t.Errorf("expected no file and no error, got %q, %v", used, err)
	}
}

func TestReadFile_MissingExplicitFails(t *testing.T) {
	if _, err := ReadFile(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestBindFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOK_BASE_DIR", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("batch-size", 0, "")
	fs.String("base-dir", "", "")
	fs.Duration("delay", time.Second, "")

	v := New()
	err := BindFlags(v, fs, map[string]string{
		"batch-size": "raw.batch_size",
		"base-dir":   "base_dir",
		"delay":      "raw.delay",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fs.Parse([]string{"--batch-size", "7"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Raw.BatchSize != 7 {
		t.Errorf("expected batch size from flag, got %d", cfg.Raw.BatchSize)
	}
	if cfg.BaseDir != "from-env" {
		t.Errorf("unchanged flag should not override env, got %q", cfg.BaseDir)
	}

	if err := BindFlags(v, fs, map[string]string{"missing": "x"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "STEP2_API_KEY=file-key\nBOOK_BASE_DIR=file-dir\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOK_BASE_DIR", "preset")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := os.Getenv("STEP2_API_KEY"); got != "file-key" {
		t.Errorf("expected key from .env, got %q", got)
	}
	if got := os.Getenv("BOOK_BASE_DIR"); got != "preset" {
		t.Errorf("existing variables must win, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := Load(New())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		stage   string
		mutate  func(c *Config)
		wantErr string
	}{
		{"fetch needs nothing else", StageFetch, func(c *Config) {}, ""},
		{"raw without key", StageRaw, func(c *Config) {}, "STEP2_API_KEY"},
		{"edit without key", StageEdit, func(c *Config) {}, "LLM_API_KEY"},
		{"raw with key", StageRaw, func(c *Config) {
			c.Raw.Service.APIKey = "k"
			c.Raw.Service.BaseURL = "https://x"
		}, ""},
		{"gtx needs no key", StageRaw, func(c *Config) { c.Raw.Service.Provider = "gtx" }, ""},
		{"batch size too big", StageRaw, func(c *Config) {
			c.Raw.Service.Provider = "gtx"
			c.Raw.BatchSize = 11
		}, "batch_size"},
		{"negative batch size", StageRaw, func(c *Config) {
			c.Raw.Service.Provider = "gtx"
			c.Raw.BatchSize = -1
		}, "batch_size"},
		{"batch mode needs no chat key", StageRaw, func(c *Config) { c.Raw.BatchSize = 5 }, ""},
		{"zero attempts", StageEdit, func(c *Config) {
			c.Edit.Service.Provider = "gtx"
			c.Edit.Retry.Attempts = 0
		}, "attempts"},
		{"empty base dir", StageFetch, func(c *Config) { c.BaseDir = " " }, "base_dir"},
		{"unknown stage", "polish", func(c *Config) {}, "unknown stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate(tt.stage)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBatchService(t *testing.T) {
	sc := StageConfig{BatchProvider: "batchexecute"}
	sc.Service.Provider = "openai"
	sc.Service.TargetLang = "vi"

	got := sc.BatchService()
	if got.Provider != "batchexecute" || got.TargetLang != "vi" {
		t.Errorf("unexpected batch service config %+v", got)
	}
	if sc.Service.Provider != "openai" {
		t.Error("BatchService must not modify the stage service")
	}
}
