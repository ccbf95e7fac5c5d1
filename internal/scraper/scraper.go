// Package scraper builds the source-stage artifacts: it reads a saved table
// of contents, downloads each chapter page and stores its text as markdown.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/valpere/chaptran/internal/artifact"
	"github.com/valpere/chaptran/internal/retry"
)

const (
	DefaultBaseURL = "https://www.52shuku.net"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	contentID      = "text"
)

var (
	chapterLinkRe = regexp.MustCompile(`^第(\d+)[页章]\s*(.*)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

type ChapterLink struct {
	Number    int
	Title     string
	URL       string
	FullTitle string
}

// ParseIndex returns every link whose text reads like "第12章 title" or
// "第3页", in document order. Hrefs starting with "/" are resolved against
// baseURL.
func ParseIndex(r io.Reader, baseURL string) ([]ChapterLink, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var links []ChapterLink
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return true
		}
		text := strings.Join(textPieces(n), "")
		m := chapterLinkRe.FindStringSubmatch(text)
		if m == nil {
			return false
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return false
		}

		title := strings.TrimSpace(m[2])
		if title == "" {
			title = text
		}
		href := attr(n, "href")
		if strings.HasPrefix(href, "/") {
			href = baseURL + href
		}

		links = append(links, ChapterLink{Number: num, Title: title, URL: href, FullTitle: text})
		return false
	})
	return links, nil
}

// ExtractContent returns the text of the div#text element with every
// whitespace run turned into one newline.
func ExtractContent(r io.Reader) (string, bool, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse page: %w", err)
	}

	var content *html.Node
	walk(doc, func(n *html.Node) bool {
		if content != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && attr(n, "id") == contentID {
			content = n
			return false
		}
		return true
	})
	if content == nil {
		return "", false, nil
	}

	text := strings.Join(textPieces(content), "\n")
	text = whitespaceRe.ReplaceAllString(text, "\n")
	return strings.Trim(text, "\n"), true, nil
}

// Render lays out a source-stage artifact.
func Render(number int, title, content string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("\n### 标题 | Title\n\n")
	fmt.Fprintf(&sb, "第%d章 %s\n\n", number, title)
	sb.WriteString("---\n\n### 内容 | Content\n\n")
	sb.WriteString(content)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "*生成时间: %s*\n", now.Format("2006-01-02 15:04:05"))
	return sb.String()
}

// walk visits nodes depth-first; fn returns false to skip a node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// textPieces collects the trimmed, non-empty text nodes under n, leaving
// out script and style bodies.
func textPieces(n *html.Node) []string {
	var pieces []string
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style):
			return false
		case c.Type == html.TextNode:
			if s := strings.TrimSpace(c.Data); s != "" {
				pieces = append(pieces, s)
			}
		}
		return true
	})
	return pieces
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Fetcher downloads chapter pages into the source stage directory.
type Fetcher struct {
	out    artifact.Dir
	client *http.Client
	retry  *retry.Controller
	delay  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewFetcher(out artifact.Dir, rc *retry.Controller, delay, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		out:    out,
		client: &http.Client{Timeout: timeout},
		retry:  rc,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}
}

// FetchContent downloads url and extracts the chapter text. A page without
// a content element yields "" and no error.
func (f *Fetcher) FetchContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	content, found, err := ExtractContent(resp.Body)
	if err != nil {
		return "", err
	}
	if !found {
		f.logger.Warn("no content found", "url", url)
	}
	return content, nil
}

type Result struct {
	Total   int
	Saved   int
	Skipped int
	Failed  int
}

// Run fetches up to limit links (all when limit <= 0). Chapters that already
// have a non-empty artifact are skipped unless force is set.
func (f *Fetcher) Run(ctx context.Context, links []ChapterLink, limit int, force bool) (Result, error) {
	if limit > 0 && limit < len(links) {
		links = links[:limit]
	}
	res := Result{Total: len(links)}

	if err := f.out.Ensure(); err != nil {
		return res, err
	}
	f.logger.Info("fetching chapters", "count", len(links), "dir", f.out.Path)

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if exists, size := f.out.Exists(link.Number); exists && size > 0 && !force {
			f.logger.Info("skipping chapter, already fetched", "chapter", link.Number)
			res.Skipped++
			continue
		}

		f.logger.Info("fetching chapter", "progress", fmt.Sprintf("%d/%d", i+1, len(links)), "chapter", link.Number, "title", link.Title)

		label := fmt.Sprintf("fetch chapter %d", link.Number)
		content, err := retry.Do(ctx, f.retry, label, func(ctx context.Context) (string, error) {
			return f.FetchContent(ctx, link.URL)
		})
		if err != nil || content == "" {
			f.logger.Warn("skipping chapter, no content fetched", "chapter", link.Number, "error", err)
			res.Failed++
			continue
		}

		if err := f.out.Write(link.Number, Render(link.Number, link.Title, content, f.now())); err != nil {
			f.logger.Error("failed to save chapter", "chapter", link.Number, "error", err)
			res.Failed++
			continue
		}
		f.logger.Info("saved chapter", "chapter", link.Number, "path", f.out.PathFor(link.Number))
		res.Saved++

		if i < len(links)-1 && f.delay > 0 {
			t := time.NewTimer(f.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return res, ctx.Err()
			case <-t.C:
			}
		}
	}
	return res, nil
}
