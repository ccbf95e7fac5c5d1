package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/valpere/chaptran/internal/postprocess"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiService sends the same system-rules + user-content request as
// ChatService to the Gemini API.
type GeminiService struct {
	model       string
	temperature float32
	client      *genai.Client
}

func NewGeminiService(ctx context.Context, apiKey, baseURL, model string, temperature float32, timeout time.Duration) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{model: model, temperature: temperature, client: client}, nil
}

func (s *GeminiService) Name() string {
	return "gemini"
}

func (s *GeminiService) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Rules != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Rules, genai.RoleUser)
	}
	if s.temperature > 0 {
		t := s.temperature
		cfg.Temperature = &t
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildUserContent(req.Text, req.Reference)), cfg)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return "", fmt.Errorf("%w: %v", ErrStatus, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates in response", ErrParse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}

	text := postprocess.Clean(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned no content", ErrEmpty, s.model)
	}
	return text, nil
}
