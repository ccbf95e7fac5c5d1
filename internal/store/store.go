package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/chaptran/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	if err := s.dropStaleMemory(); err != nil {
		return err
	}

	schema := `
	-- chapter_runs is the ledger: one row per chapter per pipeline invocation
	CREATE TABLE IF NOT EXISTS chapter_runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		chapter INTEGER NOT NULL,
		status TEXT NOT NULL,
		chunks INTEGER DEFAULT 0,
		error TEXT,
		duration_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- chunk_memory reuses successful chunk translations across runs;
	-- rules_key ties an entry to the rules document it was made under
	CREATE TABLE IF NOT EXISTS chunk_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		stage TEXT NOT NULL,
		provider TEXT NOT NULL,
		rules_key TEXT NOT NULL DEFAULT '',
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, stage, provider, rules_key)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_stage_chapter ON chapter_runs(stage, chapter);
	CREATE INDEX IF NOT EXISTS idx_runs_run ON chapter_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON chunk_memory(source_text, stage, provider, rules_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dropStaleMemory removes a chunk_memory table created before entries were
// keyed by rules. Its entries cannot be attributed to a rules document.
func (s *Store) dropStaleMemory() error {
	var tables, hasKey int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'chunk_memory'`).Scan(&tables)
	if err != nil || tables == 0 {
		return err
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('chunk_memory') WHERE name = 'rules_key'`).Scan(&hasKey)
	if err != nil || hasKey > 0 {
		return err
	}
	_, err = s.db.Exec(`DROP INDEX IF EXISTS idx_memory_lookup; DROP TABLE chunk_memory`)
	return err
}

// RecordRun appends run to the ledger. An empty ID gets a fresh UUID.
func (s *Store) RecordRun(ctx context.Context, run internal.ChapterRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chapter_runs (id, run_id, stage, chapter, status, chunks, error, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, run.Stage, run.Chapter, run.Status, run.Chunks, run.Error, run.Duration.Milliseconds(), run.CreatedAt)
	return err
}

// ListRuns returns the newest ledger rows first. An empty stage matches all
// stages; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, stage string, limit int) ([]internal.ChapterRun, error) {
	query := `SELECT id, run_id, stage, chapter, status, chunks, COALESCE(error, ''), duration_ms, created_at FROM chapter_runs`
	var args []interface{}
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []internal.ChapterRun
	for rows.Next() {
		var (
			r  internal.ChapterRun
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stage, &r.Chapter, &r.Status, &r.Chunks, &r.Error, &ms, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastStatus returns the most recent recorded status of chapter in stage.
func (s *Store) LastStatus(ctx context.Context, stage string, chapter int) (string, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM chapter_runs WHERE stage = ? AND chapter = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		stage, chapter).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// FailedChapters lists chapters whose latest status in stage is "failed".
func (s *Store) FailedChapters(ctx context.Context, stage string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter FROM chapter_runs r
		WHERE stage = ? AND status = 'failed'
		AND rowid = (SELECT MAX(rowid) FROM chapter_runs WHERE stage = r.stage AND chapter = r.chapter)
		ORDER BY chapter`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		chapters = append(chapters, n)
	}
	return chapters, rows.Err()
}

// GetMemory returns a stored translation of sourceText made under the rules
// identified by rulesKey, and bumps its usage.
func (s *Store) GetMemory(ctx context.Context, stage, provider, rulesKey, sourceText string) (string, bool, error) {
	key := normalizeText(sourceText)

	var translated string
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text FROM chunk_memory WHERE source_text = ? AND stage = ? AND provider = ? AND rules_key = ?`,
		key, stage, provider, rulesKey).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE chunk_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND stage = ? AND provider = ? AND rules_key = ?`,
		time.Now(), key, stage, provider, rulesKey)

	return translated, true, err
}

func (s *Store) SaveMemory(ctx context.Context, stage, provider, rulesKey, sourceText, translated string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_memory (id, source_text, stage, provider, rules_key, translated_text, usage_count, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		uuid.NewString(), normalizeText(sourceText), stage, provider, rulesKey, translated, now, now)
	return err
}

// ClearMemory removes memory entries for stage, or all entries when stage
// is empty.
func (s *Store) ClearMemory(ctx context.Context, stage string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if stage == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunk_memory`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunk_memory WHERE stage = ?`, stage)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarises the ledger and the memory.
type Stats struct {
	Runs          int
	DoneRuns      int
	SkippedRuns   int
	FailedRuns    int
	MemoryEntries int
	MemoryUsage   int
}

func (s *Store) Stats(ctx context.Context, stage string) (*Stats, error) {
	stats := &Stats{}

	where, args := "", []interface{}{}
	if stage != "" {
		where = ` WHERE stage = ?`
		args = append(args, stage)
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM chapter_runs`+where, args...).Scan(
		&stats.Runs,
		&stats.DoneRuns,
		&stats.SkippedRuns,
		&stats.FailedRuns,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(usage_count), 0) FROM chunk_memory`+where, args...).Scan(
		&stats.MemoryEntries,
		&stats.MemoryUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// so equivalent chunks share one memory key.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
