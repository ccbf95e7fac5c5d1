package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// The bulk client speaks the web UI's undocumented batchexecute protocol.
// Everything that depends on its wire format lives in this file.
//
// Request: POST form field f.req holding
//
//	[[ ["MkEWBc", "<json: [[text, sl, tl, true], [null]]>", null, "generic"], ... ]]
//
// with one descriptor per text.
//
// Response: an anti-XSSI prefix and length-prefixed JSON chunks. Entries of
// the form ["wrb.fr", "MkEWBc", "<json payload>", ...] carry one translation
// each; fragments sit at payload[1][0][0][5][*][0].
//
// There is no per-item correlation ID. Entries are assumed to come back in
// submission order. That has not been verified under reordering or partial
// replies.
const (
	SchemaVersion = "batchexecute/MkEWBc v1"

	DefaultBatchExecuteHost = "https://translate.google.com"
	batchExecutePath        = "/_/TranslateWebserverUi/data/batchexecute"
	translateRPCID          = "MkEWBc"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var (
	reSessionID = regexp.MustCompile(`"FdrFJe":"(.*?)"`)
	reBuildID   = regexp.MustCompile(`"cfb2h":"(.*?)"`)
)

type batchSession struct {
	sid string
	bl  string
}

// BatchExecuteService translates many texts per request over batchexecute.
type BatchExecuteService struct {
	host       string
	sourceLang string
	targetLang string
	client     *http.Client
	reqID      atomic.Int64
}

func NewBatchExecuteService(host, sourceLang, targetLang string, timeout time.Duration) *BatchExecuteService {
	if host == "" {
		host = DefaultBatchExecuteHost
	}
	if sourceLang == "" {
		sourceLang = DefaultSourceLang
	}
	if targetLang == "" {
		targetLang = DefaultTargetLang
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &BatchExecuteService{
		host:       strings.TrimRight(host, "/"),
		sourceLang: sourceLang,
		targetLang: targetLang,
		client:     &http.Client{Timeout: timeout},
	}
	s.reqID.Store(int64(1000 + rand.Intn(9000)))
	return s
}

func (s *BatchExecuteService) Name() string {
	return "batchexecute"
}

// Translate sends a one-element batch.
func (s *BatchExecuteService) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}
	out, err := s.TranslateBatch(ctx, []string{req.Text})
	if err != nil {
		return "", err
	}
	if out[0] == "" {
		return "", fmt.Errorf("%w: no translation for input", ErrEmpty)
	}
	return out[0], nil
}

// TranslateBatch submits the non-empty texts in one request and maps the
// results back onto the caller's positions. Empty inputs come back as "".
// If fewer results arrive than were submitted, the missing tail is "".
func (s *BatchExecuteService) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
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

	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.post(ctx, sess, pending)
	if err != nil {
		return nil, err
	}

	results, err := parseBatchResponse(body, translateRPCID)
	if err != nil {
		return nil, err
	}

	for k, pos := range positions {
		if k < len(results) {
			out[pos] = results[k]
		}
	}
	return out, nil
}

func (s *BatchExecuteService) session(ctx context.Context) (batchSession, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/", nil)
	if err != nil {
		return batchSession{}, fmt.Errorf("%w: failed to create session request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return batchSession{}, fmt.Errorf("%w: session request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return batchSession{}, fmt.Errorf("%w: session page returned status %d", ErrStatus, resp.StatusCode)
	}

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return batchSession{}, fmt.Errorf("%w: failed to read session page: %v", ErrTransport, err)
	}

	// Missing values are tolerated; the endpoint usually still answers.
	var sess batchSession
	if m := reSessionID.FindSubmatch(page); m != nil {
		sess.sid = string(m[1])
	}
	if m := reBuildID.FindSubmatch(page); m != nil {
		sess.bl = string(m[1])
	}
	return sess, nil
}

func (s *BatchExecuteService) post(ctx context.Context, sess batchSession, texts []string) ([]byte, error) {
	freq, err := encodeBatchRequest(texts, s.sourceLang, s.targetLang)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", ErrParse, err)
	}

	query := url.Values{}
	query.Set("rpcids", translateRPCID)
	query.Set("source-path", "/")
	query.Set("f.sid", sess.sid)
	query.Set("bl", sess.bl)
	query.Set("hl", "en-US")
	query.Set("soc-app", "1")
	query.Set("soc-platform", "1")
	query.Set("soc-device", "1")
	query.Set("_reqid", strconv.FormatInt(s.reqID.Add(100000), 10))
	query.Set("rt", "c")

	form := url.Values{}
	form.Set("f.req", freq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+batchExecutePath+"?"+query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrStatus, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}
	return body, nil
}

// encodeBatchRequest builds the f.req value for texts.
func encodeBatchRequest(texts []string, sourceLang, targetLang string) (string, error) {
	descriptors := make([]interface{}, 0, len(texts))
	for _, t := range texts {
		params, err := json.Marshal([]interface{}{
			[]interface{}{t, sourceLang, targetLang, true},
			[]interface{}{nil},
		})
		if err != nil {
			return "", err
		}
		descriptors = append(descriptors, []interface{}{translateRPCID, string(params), nil, "generic"})
	}

	freq, err := json.Marshal([]interface{}{descriptors})
	if err != nil {
		return "", err
	}
	return string(freq), nil
}

// parseBatchResponse returns one translation per matching wrb.fr entry, in
// the order they appear. An entry whose payload cannot be read yields "" so
// later entries keep their positions.
func parseBatchResponse(body []byte, rpcID string) ([]string, error) {
	start := bytes.IndexByte(body, '[')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrParse)
	}

	var results []string
	matched := false

	// After the prefix the body alternates length lines and arrays; the
	// decoder reads both as JSON values.
	dec := json.NewDecoder(bytes.NewReader(body[start:]))
	for {
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF || matched {
				break
			}
			return nil, fmt.Errorf("%w: failed to decode payload: %v", ErrParse, err)
		}

		entries, ok := v.([]interface{})
		if !ok {
			continue
		}
		for _, e := range entries {
			entry, ok := e.([]interface{})
			if !ok || len(entry) < 3 {
				continue
			}
			if tag, _ := entry[0].(string); tag != "wrb.fr" {
				continue
			}
			if id, _ := entry[1].(string); id != rpcID {
				continue
			}
			matched = true
			raw, _ := entry[2].(string)
			results = append(results, extractTranslation(raw))
		}
	}

	if !matched {
		return nil, fmt.Errorf("%w: no %s entries in response", ErrParse, rpcID)
	}
	return results, nil
}

// extractTranslation reads the translated fragments out of one entry
// payload. It returns "" on any shape mismatch.
func extractTranslation(raw string) string {
	if raw == "" {
		return ""
	}
	var payload interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ""
	}

	if frags, ok := at(payload, 1, 0, 0, 5); ok {
		if list, ok := frags.([]interface{}); ok {
			var parts []string
			for _, f := range list {
				if s, ok := at(f, 0); ok {
					if text, ok := s.(string); ok {
						parts = append(parts, text)
					}
				}
			}
			if len(parts) > 0 {
				return joinFragments(parts)
			}
		}
	}

	// Short inputs sometimes carry only the whole translation.
	if whole, ok := at(payload, 1, 0, 0, 0); ok {
		if text, ok := whole.(string); ok {
			return text
		}
	}
	return ""
}

// at walks v along an index path of nested arrays.
func at(v interface{}, path ...int) (interface{}, bool) {
	for _, i := range path {
		arr, ok := v.([]interface{})
		if !ok || i < 0 || i >= len(arr) {
			return nil, false
		}
		v = arr[i]
	}
	return v, true
}

// joinFragments joins sentence fragments with a space unless a fragment
// already ends in whitespace.
func joinFragments(parts []string) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			prev := parts[i-1]
			if prev != "" && !strings.HasSuffix(prev, " ") && !strings.HasSuffix(prev, "\n") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(p)
	}
	return sb.String()
}
