package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileName(t *testing.T) {
	if got := FileName(7); got != "chapter_0007.md" {
		t.Errorf("expected chapter_0007.md, got %q", got)
	}
	if got := FileName(12345); got != "chapter_12345.md" {
		t.Errorf("expected chapter_12345.md, got %q", got)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"chapter_0001.md", 1, true},
		{"chapter_001.md", 1, true},
		{"raw_chinese/chapter_0651.md", 651, true},
		{"chapter_0001.txt", 0, false},
		{"chap_0001.md", 0, false},
		{".tmp-123", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseName(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseName(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWriteReadExists(t *testing.T) {
	d := Open(t.TempDir(), StageRaw)

	if ok, _ := d.Exists(1); ok {
		t.Fatal("expected no artifact before write")
	}

	if err := d.Write(1, "Chương 1\nNội dung"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ok, size := d.Exists(1)
	if !ok || size == 0 {
		t.Errorf("expected non-empty artifact, got ok=%v size=%d", ok, size)
	}

	got, err := d.Read(1)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "Chương 1\nNội dung" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestWrite_OverwritesAndLeavesNoTemp(t *testing.T) {
	d := Open(t.TempDir(), StageEdited)

	d.Write(3, "v1")
	if err := d.Write(3, "v2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	got, _ := d.Read(3)
	if got != "v2" {
		t.Errorf("expected v2, got %q", got)
	}

	entries, _ := os.ReadDir(d.Path)
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in the directory, got %d entries", len(entries))
	}
}

func TestExists_ZeroSize(t *testing.T) {
	d := Open(t.TempDir(), StageRaw)
	d.Ensure()
	os.WriteFile(d.PathFor(2), nil, 0o644)

	ok, size := d.Exists(2)
	if !ok || size != 0 {
		t.Errorf("expected existing empty artifact, got ok=%v size=%d", ok, size)
	}
}

func TestList(t *testing.T) {
	d := Open(t.TempDir(), StageSource)

	chapters, err := d.List()
	if err != nil || len(chapters) != 0 {
		t.Fatalf("expected empty list for missing dir, got %v, %v", chapters, err)
	}

	d.Write(10, "x")
	d.Write(2, "x")
	os.WriteFile(filepath.Join(d.Path, "notes.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(d.Path, "chapter_0005.md"), 0o755)

	chapters, err = d.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(chapters) != 2 || chapters[0] != 2 || chapters[1] != 10 {
		t.Errorf("expected [2 10], got %v", chapters)
	}
}
