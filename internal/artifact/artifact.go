// Package artifact stores one markdown file per chapter per stage under a
// book directory. A non-empty file is the only signal that a stage is done.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	StageSource = "raw_chinese"
	StageRaw    = "raw_vietnamese"
	StageEdited = "edited_vietnamese"
)

var nameRe = regexp.MustCompile(`^chapter_(\d+)\.md$`)

// FileName returns the artifact name for chapter n.
func FileName(n int) string {
	return fmt.Sprintf("chapter_%04d.md", n)
}

// ParseName extracts the chapter number from an artifact name. Any zero
// padding is accepted.
func ParseName(name string) (int, bool) {
	m := nameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Dir is one stage directory.
type Dir struct {
	Path string
}

func Open(baseDir, stage string) Dir {
	return Dir{Path: filepath.Join(baseDir, stage)}
}

func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.Path, err)
	}
	return nil
}

func (d Dir) PathFor(n int) string {
	return filepath.Join(d.Path, FileName(n))
}

// Exists reports whether chapter n has a file and its size.
func (d Dir) Exists(n int) (bool, int64) {
	info, err := os.Stat(d.PathFor(n))
	if err != nil || info.IsDir() {
		return false, 0
	}
	return true, info.Size()
}

func (d Dir) Read(n int) (string, error) {
	data, err := os.ReadFile(d.PathFor(n))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces chapter n atomically: a reader sees either the old file or
// the complete new one.
func (d Dir) Write(n int, content string) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	dest := d.PathFor(n)

	tmp, err := os.CreateTemp(d.Path, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return nil
}

// List returns the chapter numbers present, ascending. A missing directory
// is an empty list.
func (d Dir) List() ([]int, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", d.Path, err)
	}

	var chapters []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := ParseName(e.Name()); ok {
			chapters = append(chapters, n)
		}
	}
	sort.Ints(chapters)
	return chapters, nil
}
