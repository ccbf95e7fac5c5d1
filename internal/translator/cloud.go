package translator

import (
	"context"
	"fmt"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// CloudService uses the official Cloud Translation API. It implements
// BatchService natively since the API accepts several inputs per call.
type CloudService struct {
	credentials string
	apiKey      string
	sourceLang  string
	targetLang  string
}

func NewCloudService(credentials, apiKey, sourceLang, targetLang string) *CloudService {
	if sourceLang == "" {
		sourceLang = DefaultSourceLang
	}
	if targetLang == "" {
		targetLang = DefaultTargetLang
	}
	return &CloudService{
		credentials: credentials,
		apiKey:      apiKey,
		sourceLang:  sourceLang,
		targetLang:  targetLang,
	}
}

func (s *CloudService) Name() string {
	return "google-cloud"
}

func (s *CloudService) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}
	out, err := s.TranslateBatch(ctx, []string{req.Text})
	if err != nil {
		return "", err
	}
	if out[0] == "" {
		return "", fmt.Errorf("%w: no translation returned", ErrEmpty)
	}
	return out[0], nil
}

func (s *CloudService) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))

	var (
		positions []int
		pending   []string
	)
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			positions = append(positions, i)
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}

	targetTag, err := language.Parse(s.targetLang)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target language: %v", ErrParse, err)
	}

	var opts []option.ClientOption
	switch {
	case s.credentials != "":
		opts = append(opts, option.WithCredentialsFile(s.credentials))
	case s.apiKey != "":
		opts = append(opts, option.WithAPIKey(s.apiKey))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %v", ErrTransport, err)
	}
	defer client.Close()

	var tOpts *translate.Options
	if s.sourceLang != "" && s.sourceLang != "auto" {
		if sourceTag, err := language.Parse(s.sourceLang); err == nil {
			tOpts = &translate.Options{Source: sourceTag, Format: translate.Text}
		}
	}

	translations, err := client.Translate(ctx, pending, targetTag, tOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: translation failed: %v", ErrStatus, err)
	}

	for k, pos := range positions {
		if k < len(translations) {
			out[pos] = translations[k].Text
		}
	}
	return out, nil
}
