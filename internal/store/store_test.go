package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/chaptran/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_RecordRun_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runs := []internal.ChapterRun{
		{RunID: "r1", Stage: "raw", Chapter: 1, Status: "done", Chunks: 2, Duration: 1500 * time.Millisecond},
		{RunID: "r1", Stage: "raw", Chapter: 2, Status: "failed", Error: "no result"},
		{RunID: "r1", Stage: "edit", Chapter: 1, Status: "skipped"},
	}
	for _, r := range runs {
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	raw, err := s.ListRuns(ctx, "raw", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 raw runs, got %d", len(raw))
	}
	for _, r := range raw {
		if r.ID == "" {
			t.Error("expected generated ID")
		}
		if r.Chapter == 1 && r.Duration != 1500*time.Millisecond {
			t.Errorf("expected duration 1.5s, got %v", r.Duration)
		}
		if r.Chapter == 2 && r.Error != "no result" {
			t.Errorf("expected error text, got %q", r.Error)
		}
	}

	limited, _ := s.ListRuns(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestStore_LastStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.LastStatus(ctx, "raw", 5); err != nil || found {
		t.Fatalf("expected no status, got found=%v err=%v", found, err)
	}

	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "raw", Chapter: 5, Status: "failed"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "b", Stage: "raw", Chapter: 5, Status: "done"})

	status, found, err := s.LastStatus(ctx, "raw", 5)
	if err != nil || !found {
		t.Fatalf("expected status, got found=%v err=%v", found, err)
	}
	if status != "done" {
		t.Errorf("expected 'done', got %q", status)
	}
}

func TestStore_FailedChapters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "edit", Chapter: 1, Status: "failed"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "edit", Chapter: 2, Status: "failed"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "b", Stage: "edit", Chapter: 1, Status: "done"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "b", Stage: "raw", Chapter: 3, Status: "failed"})

	failed, err := s.FailedChapters(ctx, "edit")
	if err != nil {
		t.Fatalf("FailedChapters failed: %v", err)
	}
	if len(failed) != 1 || failed[0] != 2 {
		t.Errorf("expected [2], got %v", failed)
	}
}

func TestStore_Memory_Miss(t *testing.T) {
	s := newTestStore(t)

	text, found, err := s.GetMemory(context.Background(), "raw", "gtx", "k1", "你好")
	if err != nil {
		t.Errorf("GetMemory failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_Memory_Hit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMemory(ctx, "raw", "gtx", "k1", "你好", "Xin chào"); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	text, found, err := s.GetMemory(ctx, "raw", "gtx", "k1", "  你好\n")
	if err != nil {
		t.Errorf("GetMemory failed: %v", err)
	}
	if !found {
		t.Error("expected to find entry for whitespace-padded source")
	}
	if text != "Xin chào" {
		t.Errorf("expected 'Xin chào', got %q", text)
	}

	if _, found, _ := s.GetMemory(ctx, "edit", "gtx", "k1", "你好"); found {
		t.Error("expected stage to be part of the key")
	}
	if _, found, _ := s.GetMemory(ctx, "raw", "openai", "k1", "你好"); found {
		t.Error("expected provider to be part of the key")
	}
}

func TestStore_Memory_NormalizesUnicode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// decomposed "Việt" (e + combining marks) vs precomposed
	decomposed := "Vie\u0323\u0302t"
	precomposed := "Vi\u1EC7t"

	s.SaveMemory(ctx, "edit", "openai", "k1", decomposed, "ok")

	if _, found, _ := s.GetMemory(ctx, "edit", "openai", "k1", precomposed); !found {
		t.Error("expected NFC-equivalent source to hit")
	}
}

func TestStore_SaveMemory_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveMemory(ctx, "raw", "gtx", "k1", "你好", "v1")
	s.SaveMemory(ctx, "raw", "gtx", "k1", "你好", "v2")

	text, _, _ := s.GetMemory(ctx, "raw", "gtx", "k1", "你好")
	if text != "v2" {
		t.Errorf("expected 'v2', got %q", text)
	}

	stats, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.MemoryEntries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.MemoryEntries)
	}
}

func TestStore_ClearMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveMemory(ctx, "raw", "gtx", "k1", "一", "một")
	s.SaveMemory(ctx, "raw", "gtx", "k1", "二", "hai")
	s.SaveMemory(ctx, "edit", "openai", "k1", "三", "ba")

	n, err := s.ClearMemory(ctx, "raw")
	if err != nil {
		t.Fatalf("ClearMemory failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	n, _ = s.ClearMemory(ctx, "")
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "raw", Chapter: 1, Status: "done"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "raw", Chapter: 2, Status: "skipped"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "raw", Chapter: 3, Status: "failed"})
	s.RecordRun(ctx, internal.ChapterRun{RunID: "a", Stage: "edit", Chapter: 1, Status: "done"})
	s.SaveMemory(ctx, "raw", "gtx", "k1", "一", "một")
	s.GetMemory(ctx, "raw", "gtx", "k1", "一")

	stats, err := s.Stats(ctx, "raw")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Runs != 3 || stats.DoneRuns != 1 || stats.SkippedRuns != 1 || stats.FailedRuns != 1 {
		t.Errorf("unexpected run stats: %+v", stats)
	}
	if stats.MemoryEntries != 1 || stats.MemoryUsage != 2 {
		t.Errorf("unexpected memory stats: %+v", stats)
	}

	all, _ := s.Stats(ctx, "")
	if all.Runs != 4 {
		t.Errorf("expected 4 runs overall, got %d", all.Runs)
	}
}

func TestStore_Memory_KeyedByRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveMemory(ctx, "raw", "openai", "k1", "你好", "v1")
	s.SaveMemory(ctx, "raw", "openai", "k2", "你好", "v2")

	if text, _, _ := s.GetMemory(ctx, "raw", "openai", "k1", "你好"); text != "v1" {
		t.Errorf("expected 'v1' under k1, got %q", text)
	}
	if text, _, _ := s.GetMemory(ctx, "raw", "openai", "k2", "你好"); text != "v2" {
		t.Errorf("expected 'v2' under k2, got %q", text)
	}
	if _, found, _ := s.GetMemory(ctx, "raw", "openai", "k3", "你好"); found {
		t.Error("expected rules key to be part of the key")
	}
}

func TestStore_New_DropsMemoryWithoutRulesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE chunk_memory (
			id TEXT PRIMARY KEY,
			source_text TEXT NOT NULL,
			stage TEXT NOT NULL,
			provider TEXT NOT NULL,
			translated_text TEXT NOT NULL,
			usage_count INTEGER DEFAULT 1,
			last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_text, stage, provider)
		);
		INSERT INTO chunk_memory (id, source_text, stage, provider, translated_text) VALUES ('1', '你好', 'raw', 'openai', 'cũ');`)
	db.Close()
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(path)
	if err != nil {
		t.Fatalf("failed to open old database: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, found, _ := s.GetMemory(ctx, "raw", "openai", "", "你好"); found {
		t.Error("expected entries without a rules key to be dropped")
	}
	if err := s.SaveMemory(ctx, "raw", "openai", "k1", "你好", "mới"); err != nil {
		t.Fatalf("SaveMemory after migration failed: %v", err)
	}
}
