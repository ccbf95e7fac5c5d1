package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultSingleURL  = "https://translate.googleapis.com/translate_a/single"
	DefaultSourceLang = "zh-CN"
	DefaultTargetLang = "vi"
)

// SingleService translates one string per request through the public
// translate_a/single endpoint. The reply is a nested array whose first
// element lists phrase fragments; the fragments are concatenated.
type SingleService struct {
	endpoint   string
	sourceLang string
	targetLang string
	client     *http.Client
}

func NewSingleService(endpoint, sourceLang, targetLang string, timeout time.Duration) *SingleService {
	if endpoint == "" {
		endpoint = DefaultSingleURL
	}
	if sourceLang == "" {
		sourceLang = DefaultSourceLang
	}
	if targetLang == "" {
		targetLang = DefaultTargetLang
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SingleService{
		endpoint:   endpoint,
		sourceLang: sourceLang,
		targetLang: targetLang,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SingleService) Name() string {
	return "gtx"
}

// Translate ignores Reference and Rules; the endpoint has no notion of them.
func (s *SingleService) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", s.sourceLang)
	params.Set("tl", s.targetLang)
	params.Set("dt", "t")
	params.Set("q", req.Text)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: API returned status %d: %s", ErrStatus, resp.StatusCode, string(body))
	}

	var data []interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrParse, err)
	}

	text, err := concatSegments(data)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: no segments in response", ErrEmpty)
	}
	return text, nil
}

// concatSegments joins data[0][i][0] for every segment that carries text.
func concatSegments(data []interface{}) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty top-level array", ErrParse)
	}
	segments, ok := data[0].([]interface{})
	if !ok {
		return "", fmt.Errorf("%w: first element is %T, want array", ErrParse, data[0])
	}

	var sb strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]interface{})
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}
