package translator

import (
	"context"
	"fmt"
	"strings"
)

// Providers lists the names accepted by New.
var Providers = []string{"openai", "gemini", "gtx", "batchexecute", "google-cloud"}

// New constructs the provider named by cfg.Provider.
func New(ctx context.Context, cfg ServiceConfig) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider: API key required")
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider: base URL required")
		}
		return NewChatService(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout), nil
	case "gemini", "google":
		return NewGeminiService(ctx, cfg.APIKey, cfg.GeminiBaseURL, cfg.Model, cfg.Temperature, cfg.Timeout)
	case "gtx":
		return NewSingleService(cfg.BaseURL, cfg.SourceLang, cfg.TargetLang, cfg.Timeout), nil
	case "batchexecute":
		return NewBatchExecuteService(cfg.BaseURL, cfg.SourceLang, cfg.TargetLang, cfg.Timeout), nil
	case "google-cloud":
		return NewCloudService(cfg.Credentials, cfg.APIKey, cfg.SourceLang, cfg.TargetLang), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (available: %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

// NewBatch constructs a provider that supports batched requests.
func NewBatch(ctx context.Context, cfg ServiceConfig) (BatchService, error) {
	svc, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	batch, ok := svc.(BatchService)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support batched requests", svc.Name())
	}
	return batch, nil
}
