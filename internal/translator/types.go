package translator

import (
	"context"
	"errors"
	"time"
)

// Failure taxonomy. Every client error wraps exactly one of these.
var (
	ErrTransport    = errors.New("transport failure")
	ErrStatus       = errors.New("non-success status")
	ErrParse        = errors.New("unexpected response shape")
	ErrEmpty        = errors.New("empty translation")
	ErrPartialBatch = errors.New("partial batch")
)

// ServiceConfig selects and configures one provider.
type ServiceConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Model       string        `mapstructure:"model" json:"model"`
	Temperature float32       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	SourceLang  string        `mapstructure:"source_lang" json:"source_lang"`
	TargetLang  string        `mapstructure:"target_lang" json:"target_lang"`
	Credentials string        `mapstructure:"credentials" json:"credentials"`

	// GeminiBaseURL overrides the Gemini endpoint. BaseURL names the
	// OpenAI-compatible host and is never used for Gemini.
	GeminiBaseURL string `mapstructure:"gemini_base_url" json:"gemini_base_url,omitempty"`
}

// Request is one unit of text to translate. Reference and Rules are optional.
type Request struct {
	Text      string `json:"text"`
	Reference string `json:"reference,omitempty"`
	Rules     string `json:"rules,omitempty"`
}

// Service translates one unit of text. Implementations never panic; every
// failure is returned as an error wrapping one of the taxonomy sentinels.
// Whitespace-only input yields "" and no error.
type Service interface {
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
}

// BatchService translates several texts in one round trip. The returned
// slice always has len(texts) elements; positions the provider did not fill
// are "".
type BatchService interface {
	Service
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}
