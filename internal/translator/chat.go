package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/valpere/chaptran/internal/postprocess"
)

const (
	DefaultChatModel = "gpt-5-mini"

	// Labels for the reference block sent with edit-stage requests.
	ReferenceLabel = "## Bản gốc:"
	SubjectLabel   = "## Bản dịch thô:"
)

// ChatService talks to any OpenAI-compatible chat-completion endpoint. The
// rules are sent as the system message and the text (optionally preceded by
// a labeled reference block) as the user message.
type ChatService struct {
	model       string
	temperature float32
	client      *openai.Client
}

func NewChatService(apiKey, baseURL, model string, temperature float32, timeout time.Duration) *ChatService {
	if model == "" {
		model = DefaultChatModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &ChatService{
		model:       model,
		temperature: temperature,
		client:      openai.NewClientWithConfig(cfg),
	}
}

func (s *ChatService) Name() string {
	return "openai"
}

func (s *ChatService) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}

	chatReq := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Rules},
			{Role: openai.ChatMessageRoleUser, Content: buildUserContent(req.Text, req.Reference)},
		},
		// zero is omitted from the payload; some models reject any explicit value
		Temperature: s.temperature,
	}

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyChatError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrParse)
	}

	text := postprocess.Clean(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned no content", ErrEmpty, s.model)
	}
	return text, nil
}

// buildUserContent prefixes text with a labeled reference block when a
// reference is available.
func buildUserContent(text, reference string) string {
	if reference == "" {
		return text
	}
	return fmt.Sprintf("%s\n%s\n\n%s\n%s", ReferenceLabel, reference, SubjectLabel, text)
}

func classifyChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: API returned status %d: %s", ErrStatus, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: API returned status %d: %v", ErrStatus, reqErr.HTTPStatusCode, reqErr.Err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return fmt.Errorf("%w: %v", ErrParse, err)
}
