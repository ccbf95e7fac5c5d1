// Package processor turns one chapter artifact of a stage into the next
// stage's artifact: chunk, translate through the retry controller, join and
// write. A chapter either produces a complete output file or nothing.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/chaptran/internal"
	"github.com/valpere/chaptran/internal/artifact"
	"github.com/valpere/chaptran/internal/chunker"
	"github.com/valpere/chaptran/internal/placeholder"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/rules"
	"github.com/valpere/chaptran/internal/translator"
)

// NoReference stands in for a missing reference artifact.
const NoReference = "No reference available."

const (
	MinBatchSize = 1
	MaxBatchSize = 10
)

var (
	ErrEmptyInput    = errors.New("input artifact is empty")
	ErrWrongLanguage = errors.New("translation not in target language")
)

type Status int

const (
	Pending Status = iota
	Skipped
	InProgress
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Skipped:
		return "skipped"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Stage describes one translation step between two artifact directories.
type Stage struct {
	Name   string
	Input  artifact.Dir
	Output artifact.Dir
	// Reference, when set, is read and sent alongside every unit.
	Reference *artifact.Dir
	Rules     *rules.Loader

	Service translator.Service
	// Batch and BatchSize > 0 switch the stage to batched requests.
	Batch     translator.BatchService
	BatchSize int
	// ChunkSize <= 0 sends the whole chapter as one unit.
	ChunkSize int

	TargetLang string
	Force      bool
	// ProtectMarkup swaps tags, links and separator lines for markers
	// while a chunk is out for translation.
	ProtectMarkup bool
}

type Validator interface {
	IsValid(text, targetLang string) (bool, error)
}

// Memory entries are keyed by rulesKey as well, so a rules edit never
// serves translations made under the previous rules.
type Memory interface {
	GetMemory(ctx context.Context, stage, provider, rulesKey, sourceText string) (string, bool, error)
	SaveMemory(ctx context.Context, stage, provider, rulesKey, sourceText, translated string) error
}

// memoryEntry is a fresh translation held back until the chapter is written.
type memoryEntry struct {
	provider, rulesKey, source, text string
}

type Ledger interface {
	RecordRun(ctx context.Context, run internal.ChapterRun) error
}

type Outcome struct {
	Chapter  int
	Status   Status
	Chunks   int
	Err      error
	Duration time.Duration
}

type Processor struct {
	stage     Stage
	retry     *retry.Controller
	validator Validator
	memory    Memory
	ledger    Ledger
	runID     string
	logger    *slog.Logger
}

type Option func(*Processor)

func WithValidator(v Validator) Option {
	return func(p *Processor) { p.validator = v }
}

func WithMemory(m Memory) Option {
	return func(p *Processor) { p.memory = m }
}

// WithLedger records every outcome under runID.
func WithLedger(l Ledger, runID string) Option {
	return func(p *Processor) {
		p.ledger = l
		p.runID = runID
	}
}

func New(stage Stage, rc *retry.Controller, logger *slog.Logger, opts ...Option) (*Processor, error) {
	if stage.Service == nil && stage.Batch == nil {
		return nil, fmt.Errorf("stage %s: no translation service", stage.Name)
	}
	if stage.Batch != nil && (stage.BatchSize < MinBatchSize || stage.BatchSize > MaxBatchSize) {
		return nil, fmt.Errorf("stage %s: batch size %d out of range %d..%d", stage.Name, stage.BatchSize, MinBatchSize, MaxBatchSize)
	}
	if stage.Rules == nil {
		return nil, fmt.Errorf("stage %s: no rules loader", stage.Name)
	}
	if rc == nil {
		return nil, fmt.Errorf("stage %s: no retry controller", stage.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{stage: stage, retry: rc, logger: logger.With("stage", stage.Name)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProcessChapter runs chapter n through the stage. It never returns an
// error; failures are reported in the Outcome.
func (p *Processor) ProcessChapter(ctx context.Context, n int) Outcome {
	start := time.Now()
	out := p.process(ctx, n)
	out.Chapter = n
	out.Duration = time.Since(start)

	switch out.Status {
	case Failed:
		p.logger.Error("chapter failed, nothing written", "file", artifact.FileName(n), "error", out.Err)
	case Done:
		p.logger.Info("saved chapter", "path", p.stage.Output.PathFor(n), "chunks", out.Chunks, "duration", out.Duration.Round(time.Millisecond))
	}

	p.record(ctx, out)
	return out
}

func (p *Processor) process(ctx context.Context, n int) Outcome {
	name := artifact.FileName(n)

	if exists, size := p.stage.Output.Exists(n); exists && !p.stage.Force {
		if size > 0 {
			p.logger.Info("skipping chapter, output already exists (use --force to overwrite)", "file", name)
			return Outcome{Status: Skipped}
		}
		p.logger.Warn("found empty output, re-processing", "file", name)
	}

	p.logger.Info("processing chapter", "file", name)

	text, err := p.stage.Input.Read(n)
	if err != nil {
		return Outcome{Status: Failed, Err: fmt.Errorf("read input: %w", err)}
	}
	if strings.TrimSpace(text) == "" {
		return Outcome{Status: Failed, Err: ErrEmptyInput}
	}

	reference := ""
	if p.stage.Reference != nil {
		reference, err = p.stage.Reference.Read(n)
		if err != nil {
			p.logger.Warn("reference not found, proceeding without reference", "path", p.stage.Reference.PathFor(n))
			reference = NoReference
		}
	}

	req := translator.Request{Reference: reference, Rules: p.stage.Rules.Load()}
	chunks := chunker.Split(text, p.stage.ChunkSize)

	var (
		translations []string
		fresh        []memoryEntry
	)
	if p.stage.Batch != nil {
		translations, fresh, err = p.translateBatched(ctx, n, chunks)
	} else {
		translations, fresh, err = p.translateEach(ctx, n, chunks, req)
	}
	if err != nil {
		return Outcome{Status: Failed, Chunks: len(chunks), Err: err}
	}

	if err := p.validate(translations); err != nil {
		return Outcome{Status: Failed, Chunks: len(chunks), Err: err}
	}

	if err := p.stage.Output.Write(n, chunker.Join(translations)); err != nil {
		return Outcome{Status: Failed, Chunks: len(chunks), Err: fmt.Errorf("write output: %w", err)}
	}
	p.remember(ctx, fresh)
	return Outcome{Status: Done, Chunks: len(chunks)}
}

func (p *Processor) translateEach(ctx context.Context, n int, chunks []chunker.Chunk, req translator.Request) ([]string, []memoryEntry, error) {
	provider := p.stage.Service.Name()
	key := rulesKey(req.Rules)
	out := make([]string, len(chunks))
	var fresh []memoryEntry

	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			out[i] = c.Text
			continue
		}
		if cached, ok := p.recall(ctx, provider, key, c.Text); ok {
			out[i] = cached
			continue
		}

		label := fmt.Sprintf("chapter %d chunk %d/%d", n, i+1, len(chunks))
		shield := p.protect(c.Text)
		unit := req
		unit.Text = shield.Text
		if len(shield.Markers) > 0 && unit.Rules != "" {
			unit.Rules += "\n\n" + placeholder.Hint
		}

		text, err := retry.Do(ctx, p.retry, label, func(ctx context.Context) (string, error) {
			return p.stage.Service.Translate(ctx, unit)
		})
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil, fmt.Errorf("%s: %w", label, translator.ErrEmpty)
		}
		text = p.restore(label, shield, text)

		out[i] = text
		fresh = append(fresh, memoryEntry{provider, key, c.Text, text})
	}
	return out, fresh, nil
}

// translateBatched sends the chunks BatchSize at a time. Any batch that
// comes back short, or with a blank slot for a non-blank chunk, fails the
// chapter without retrying. Batched requests carry no rules, so their
// memory entries use the empty rules key.
func (p *Processor) translateBatched(ctx context.Context, n int, chunks []chunker.Chunk) ([]string, []memoryEntry, error) {
	provider := p.stage.Batch.Name()
	out := make([]string, len(chunks))
	batches := chunker.Batches(chunks, p.stage.BatchSize)
	var fresh []memoryEntry

	for b, batch := range batches {
		var (
			pending []chunker.Chunk
			shields []placeholder.Protected
			texts   []string
		)
		for _, c := range batch {
			if strings.TrimSpace(c.Text) == "" {
				out[c.Index] = c.Text
				continue
			}
			if cached, ok := p.recall(ctx, provider, "", c.Text); ok {
				out[c.Index] = cached
				continue
			}
			shield := p.protect(c.Text)
			pending = append(pending, c)
			shields = append(shields, shield)
			texts = append(texts, shield.Text)
		}
		if len(texts) == 0 {
			continue
		}

		label := fmt.Sprintf("chapter %d batch %d/%d", n, b+1, len(batches))
		results, err := retry.Do(ctx, p.retry, label, func(ctx context.Context) ([]string, error) {
			return p.stage.Batch.TranslateBatch(ctx, texts)
		})
		if err != nil {
			return nil, nil, err
		}
		if len(results) != len(texts) {
			return nil, nil, fmt.Errorf("%s: %w: got %d results for %d texts", label, translator.ErrPartialBatch, len(results), len(texts))
		}

		for k, c := range pending {
			if strings.TrimSpace(results[k]) == "" {
				return nil, nil, fmt.Errorf("%s: %w: no translation for chunk %d", label, translator.ErrPartialBatch, c.Index+1)
			}
			text := p.restore(label, shields[k], results[k])
			out[c.Index] = text
			fresh = append(fresh, memoryEntry{provider, "", c.Text, text})
		}
	}
	return out, fresh, nil
}

func (p *Processor) protect(text string) placeholder.Protected {
	if !p.stage.ProtectMarkup {
		return placeholder.Protected{Text: text}
	}
	return placeholder.Protect(text)
}

// restore puts protected markup back. Lost markers only cost formatting,
// so they are logged and the translation is kept.
func (p *Processor) restore(label string, shield placeholder.Protected, text string) string {
	out, missing := shield.Restore(text)
	if len(missing) > 0 {
		p.logger.Warn("markup lost in translation", "unit", label, "missing", len(missing), "total", len(shield.Markers))
	}
	return out
}

func (p *Processor) validate(translations []string) error {
	if p.validator == nil || p.stage.TargetLang == "" {
		return nil
	}
	for i, t := range translations {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if ok, err := p.validator.IsValid(t, p.stage.TargetLang); !ok {
			return fmt.Errorf("chunk %d: %w: %v", i+1, ErrWrongLanguage, err)
		}
	}
	return nil
}

// rulesKey identifies a rules document in memory keys. No rules, no key.
func rulesKey(rules string) string {
	if rules == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(rules))
	return hex.EncodeToString(sum[:8])
}

func (p *Processor) recall(ctx context.Context, provider, key, source string) (string, bool) {
	if p.memory == nil || p.stage.Force {
		return "", false
	}
	text, ok, err := p.memory.GetMemory(ctx, p.stage.Name, provider, key, source)
	if err != nil {
		p.logger.Warn("memory lookup failed", "error", err)
		return "", false
	}
	if ok && strings.TrimSpace(text) != "" {
		return text, true
	}
	return "", false
}

// remember stores the fresh translations of a written chapter.
func (p *Processor) remember(ctx context.Context, entries []memoryEntry) {
	if p.memory == nil {
		return
	}
	for _, e := range entries {
		if err := p.memory.SaveMemory(ctx, p.stage.Name, e.provider, e.rulesKey, e.source, e.text); err != nil {
			p.logger.Warn("memory save failed", "error", err)
			return
		}
	}
}

func (p *Processor) record(ctx context.Context, out Outcome) {
	if p.ledger == nil {
		return
	}
	run := internal.ChapterRun{
		RunID:    p.runID,
		Stage:    p.stage.Name,
		Chapter:  out.Chapter,
		Status:   out.Status.String(),
		Chunks:   out.Chunks,
		Duration: out.Duration,
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if err := p.ledger.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Warn("failed to record run", "chapter", out.Chapter, "error", err)
	}
}
