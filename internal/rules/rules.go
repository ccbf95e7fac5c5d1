// Package rules loads the instruction documents sent as the system prompt.
// A document is read on every Load so edits apply from the next chapter.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

const (
	TranslatorFile = "TRANSLATOR.md"
	EditorFile     = "EDITOR.md"

	TranslatorFallback = "Translate the following Chinese text to Vietnamese. Provide a literal translation that captures the meaning."
	EditorFallback     = "Translate to natural Vietnamese."
)

type Loader struct {
	Path     string
	Fallback string
	Logger   *slog.Logger
}

func NewLoader(path, fallback string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Path: path, Fallback: fallback, Logger: logger}
}

// Load returns the document contents, or Fallback when the file is missing,
// unreadable or blank.
func (l *Loader) Load() string {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			l.Logger.Warn("rules file not found, using default rules", "path", l.Path)
		} else {
			l.Logger.Error("failed to read rules file, using default rules", "path", l.Path, "error", err)
		}
		return l.Fallback
	}
	if strings.TrimSpace(string(data)) == "" {
		l.Logger.Warn("rules file is empty, using default rules", "path", l.Path)
		return l.Fallback
	}
	l.Logger.Info("loaded rules", "path", l.Path, "bytes", len(data))
	return string(data)
}

// Watch logs every change to the document until ctx is done. The directory
// is watched rather than the file since editors often replace it. Each
// change is also signalled on the returned channel without blocking.
func (l *Loader) Watch(ctx context.Context) (<-chan fsnotify.Op, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.Path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(l.Path), err)
	}

	target := filepath.Clean(l.Path)
	changes := make(chan fsnotify.Op, 1)

	go func() {
		defer w.Close()
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				l.Logger.Info("rules file changed, applies from the next chapter", "path", l.Path, "op", event.Op.String())
				select {
				case changes <- event.Op:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.Logger.Warn("rules watcher error", "path", l.Path, "error", err)
			}
		}
	}()

	return changes, nil
}
