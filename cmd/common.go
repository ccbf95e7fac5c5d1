/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/chaptran/internal/artifact"
	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/pipeline"
	"github.com/valpere/chaptran/internal/processor"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/rules"
	"github.com/valpere/chaptran/internal/store"
	"github.com/valpere/chaptran/internal/translator"
	"github.com/valpere/chaptran/internal/validator"
)

// stageFlags are the selectors shared by the raw and edit commands.
type stageFlags struct {
	chapter    string
	start      int
	count      int
	failed     bool
	force      bool
	noMemory   bool
	watchRules bool
}

func addStageFlags(cmd *cobra.Command, stage string, f *stageFlags) {
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "Process one chapter, by number or file name (e.g. chapter_0012.md)")
	cmd.Flags().IntVar(&f.start, "start", 0, "First chapter of a range (used with --count)")
	cmd.Flags().IntVar(&f.count, "count", 0, "Number of chapters in the range starting at --start")
	cmd.Flags().BoolVar(&f.failed, "failed", false, "Process only chapters whose last recorded run failed")
	cmd.Flags().BoolVar(&f.force, "force", false, "Re-translate even if the output exists")
	cmd.Flags().BoolVar(&f.noMemory, "no-memory", false, "Do not read or write the translation memory")
	cmd.Flags().BoolVar(&f.watchRules, "watch-rules", false, "Log when the rules file changes during the run")

	cmd.Flags().String("provider", "", "Translation provider ("+strings.Join(translator.Providers, ", ")+")")
	cmd.Flags().String("model", "", "Model name for LLM providers")
	cmd.Flags().Int("batch-size", 0, "Chunks per batched request, 1-10 (0 = one request per chunk)")
	cmd.Flags().Int("chunk-size", 0, "Maximum chunk size in characters (0 = whole chapter)")
	cmd.Flags().String("rules", "", "Rules file sent as the system prompt")
	cmd.Flags().Duration("delay", 0, "Delay between chapters")
	cmd.Flags().Int("max-retries", 3, "Total attempts per request including the first (1 = no retries)")

	bindFlags(cmd, map[string]string{
		"provider":    stage + ".service.provider",
		"model":       stage + ".service.model",
		"batch-size":  stage + ".batch_size",
		"chunk-size":  stage + ".chunk_size",
		"rules":       stage + ".rules",
		"delay":       stage + ".delay",
		"max-retries": stage + ".retry.attempts",
	})
}

// runStage wires one translation stage from the loaded config and runs it
// over the selected chapters. Chapter failures only show in the summary.
func runStage(ctx context.Context, name string, f *stageFlags) error {
	if f.chapter != "" && (f.count > 0 || f.failed) {
		return fmt.Errorf("--chapter cannot be combined with --count or --failed")
	}
	if err := cfg.Validate(name); err != nil {
		return err
	}
	sc, err := cfg.Stage(name)
	if err != nil {
		return err
	}

	stage, err := buildStage(ctx, name, sc, f.force)
	if err != nil {
		return err
	}

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := uuid.New().String()
	opts := []processor.Option{processor.WithLedger(db, runID)}
	if sc.Memory && !f.noMemory {
		opts = append(opts, processor.WithMemory(db))
	}
	if sc.Validate {
		opts = append(opts, processor.WithValidator(validator.New()))
	}

	rc := retry.New(name, sc.Retry, logger)
	proc, err := processor.New(stage, rc, logger, opts...)
	if err != nil {
		return err
	}

	chapters, err := selectChapters(ctx, db, name, stage.Input, f)
	if err != nil {
		return err
	}

	if f.watchRules {
		if _, err := stage.Rules.Watch(ctx); err != nil {
			logger.Warn("rules watch unavailable", "error", err)
		}
	}

	logger.Info("starting stage", "stage", name, "run_id", runID, "input", stage.Input.Path, "output", stage.Output.Path)
	runner := pipeline.NewRunner(proc.ProcessChapter, sc.Delay, logger.With("stage", name))
	sum := runner.Run(ctx, chapters)

	fmt.Printf("Processed %d/%d chapters successfully", sum.Succeeded(), sum.Total)
	if sum.Failed > 0 {
		fmt.Printf(" (%d failed)", sum.Failed)
	}
	fmt.Println()
	return nil
}

func buildStage(ctx context.Context, name string, sc config.StageConfig, force bool) (processor.Stage, error) {
	stage := processor.Stage{
		Name:          name,
		ChunkSize:     sc.ChunkSize,
		TargetLang:    sc.Service.TargetLang,
		Force:         force,
		ProtectMarkup: sc.ProtectMarkup,
	}

	switch name {
	case config.StageRaw:
		stage.Input = artifact.Open(cfg.BaseDir, artifact.StageSource)
		stage.Output = artifact.Open(cfg.BaseDir, artifact.StageRaw)
		stage.Rules = rules.NewLoader(sc.Rules, rules.TranslatorFallback, logger)
	case config.StageEdit:
		ref := artifact.Open(cfg.BaseDir, artifact.StageSource)
		stage.Input = artifact.Open(cfg.BaseDir, artifact.StageRaw)
		stage.Output = artifact.Open(cfg.BaseDir, artifact.StageEdited)
		stage.Reference = &ref
		stage.Rules = rules.NewLoader(sc.Rules, rules.EditorFallback, logger)
	default:
		return stage, fmt.Errorf("unknown stage %q", name)
	}

	if sc.BatchSize > 0 {
		batch, err := translator.NewBatch(ctx, sc.BatchService())
		if err != nil {
			return stage, err
		}
		stage.Batch = batch
		stage.BatchSize = sc.BatchSize
		logger.Info("batched requests enabled", "provider", batch.Name(), "batch_size", sc.BatchSize)
		return stage, nil
	}

	svc, err := translator.New(ctx, sc.Service)
	if err != nil {
		return stage, err
	}
	stage.Service = svc
	logger.Info("translation service ready", "provider", svc.Name(), "model", sc.Service.Model)
	return stage, nil
}

// selectChapters resolves the chapter flags to an ordered list. Without a
// selector every chapter in the input directory is processed.
func selectChapters(ctx context.Context, db *store.Store, stage string, input artifact.Dir, f *stageFlags) ([]int, error) {
	switch {
	case f.chapter != "":
		n, err := parseChapter(f.chapter)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	case f.failed:
		return db.FailedChapters(ctx, stage)
	case f.count > 0:
		if f.start < 1 {
			return nil, fmt.Errorf("--start must be at least 1 when --count is set")
		}
		return pipeline.Range(f.start, f.count), nil
	}

	chapters, err := input.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", input.Path, err)
	}
	if len(chapters) == 0 {
		logger.Warn("no chapters found", "dir", input.Path)
	} else {
		logger.Info("found chapters to process", "count", len(chapters), "dir", input.Path)
	}
	return chapters, nil
}

// parseChapter accepts "12", "chapter_0012.md" or "chapter_012.md".
func parseChapter(s string) (int, error) {
	if n, ok := artifact.ParseName(s); ok {
		return n, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid chapter %q", s)
	}
	return n, nil
}

func openStore(dbPath string) (*store.Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
