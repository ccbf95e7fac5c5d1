package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLoader(t *testing.T, name, fallback string) *Loader {
	t.Helper()
	return NewLoader(filepath.Join(t.TempDir(), name), fallback, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoad_MissingFileUsesFallback(t *testing.T) {
	l := newTestLoader(t, EditorFile, EditorFallback)

	if got := l.Load(); got != EditorFallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestLoad_BlankFileUsesFallback(t *testing.T) {
	l := newTestLoader(t, TranslatorFile, TranslatorFallback)
	os.WriteFile(l.Path, []byte("  \n"), 0o644)

	if got := l.Load(); got != TranslatorFallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestLoad_RereadsOnEveryCall(t *testing.T) {
	l := newTestLoader(t, EditorFile, EditorFallback)

	os.WriteFile(l.Path, []byte("Quy tắc 1"), 0o644)
	if got := l.Load(); got != "Quy tắc 1" {
		t.Fatalf("expected first version, got %q", got)
	}

	os.WriteFile(l.Path, []byte("Quy tắc 2"), 0o644)
	if got := l.Load(); got != "Quy tắc 2" {
		t.Errorf("expected edited version, got %q", got)
	}

	os.Remove(l.Path)
	if got := l.Load(); got != EditorFallback {
		t.Errorf("expected fallback after removal, got %q", got)
	}
}

func TestWatch_SignalsChange(t *testing.T) {
	l := newTestLoader(t, EditorFile, EditorFallback)
	os.WriteFile(l.Path, []byte("v1"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := l.Watch(ctx)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	os.WriteFile(filepath.Join(filepath.Dir(l.Path), "other.md"), []byte("x"), 0o644)
	os.WriteFile(l.Path, []byte("v2"), 0o644)

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	for range changes {
	}
}

func TestWatch_UnreadChannelDoesNotBlock(t *testing.T) {
	l := newTestLoader(t, TranslatorFile, TranslatorFallback)
	os.WriteFile(l.Path, []byte("v1"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := l.Watch(ctx)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	for i := 2; i <= 4; i++ {
		os.WriteFile(l.Path, []byte(fmt.Sprintf("v%d", i)), 0o644)
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watcher did not stop after cancel")
		}
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope", EditorFile), EditorFallback, nil)

	if _, err := l.Watch(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}
