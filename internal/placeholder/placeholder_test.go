package placeholder_test

import (
	"strings"
	"testing"

	"github.com/valpere/chaptran/internal/placeholder"
)

func TestProtect_NoMarkup(t *testing.T) {
	text := "第一段。\n第二段。"
	p := placeholder.Protect(text)
	if p.Text != text {
		t.Errorf("expected unchanged text, got %q", p.Text)
	}
	if len(p.Markers) != 0 {
		t.Errorf("expected 0 markers, got %d", len(p.Markers))
	}

	out, missing := p.Restore("Đoạn một.")
	if out != "Đoạn một." || missing != nil {
		t.Errorf("restore without markers should be a no-op, got %q %v", out, missing)
	}
}

func TestProtect_Tags(t *testing.T) {
	p := placeholder.Protect("他说<br/>好的<b>真的</b>")

	if len(p.Markers) != 3 {
		t.Fatalf("expected 3 markers, got %d: %v", len(p.Markers), p.Markers)
	}
	if p.Text != "他说[PH0]好的[PH1]真的[PH2]" {
		t.Errorf("unexpected protected text %q", p.Text)
	}
}

func TestProtect_TagKeepsItsLink(t *testing.T) {
	p := placeholder.Protect(`<a href="https://example.net/1.html">第1章</a> 见 https://example.net/2.html`)

	want := []string{`<a href="https://example.net/1.html">`, `</a>`, `https://example.net/2.html`}
	if len(p.Markers) != len(want) {
		t.Fatalf("expected %d markers, got %v", len(want), p.Markers)
	}
	for i := range want {
		if p.Markers[i] != want[i] {
			t.Errorf("marker %d: expected %q, got %q", i, want[i], p.Markers[i])
		}
	}
}

func TestProtect_SeparatorLines(t *testing.T) {
	text := "### 标题 | Title\n\n第12章 风云\n\n---\n\n### 内容 | Content\n\n正文\n\n***\n"
	p := placeholder.Protect(text)

	if len(p.Markers) != 2 {
		t.Fatalf("expected 2 separator markers, got %v", p.Markers)
	}
	if strings.Contains(p.Text, "---") || strings.Contains(p.Text, "***") {
		t.Errorf("separators still present in %q", p.Text)
	}
	if strings.Contains(placeholder.Protect("a---b").Text, "[PH") {
		t.Error("dashes inside a line are not a separator")
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	text := "正文<br>\n---\n更多 https://example.net/x"
	p := placeholder.Protect(text)

	out, missing := p.Restore(p.Text)
	if out != text {
		t.Errorf("expected %q, got %q", text, out)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing markers, got %v", missing)
	}
}

func TestRestore_ToleratesMangledMarkers(t *testing.T) {
	p := placeholder.Protect("他说<br>好的<br/>")

	out, missing := p.Restore("Anh ấy nói [ ph 0 ] được [Ph1]")
	if out != "Anh ấy nói <br> được <br/>" {
		t.Errorf("unexpected restore %q", out)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing markers, got %v", missing)
	}
}

func TestRestore_ReportsMissing(t *testing.T) {
	p := placeholder.Protect("<p>一</p>二<hr>")

	out, missing := p.Restore("[PH0]một[PH7] hai")
	if out != "<p>một[PH7] hai" {
		t.Errorf("unknown index should be left as-is, got %q", out)
	}
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 2 {
		t.Errorf("expected missing [1 2], got %v", missing)
	}
}
