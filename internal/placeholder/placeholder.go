// Package placeholder shields the markup in chapter text from translation.
// HTML tags, links and markdown separator lines are swapped for numbered
// markers ([PH0], [PH1], …) before a chunk is sent and swapped back after.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
)

// Hint is appended to the rules of LLM requests that carry markers.
const Hint = "Keep every [PHn] marker exactly as written. Do not translate, move or remove them."

var (
	reHTMLTag    = regexp.MustCompile(`<[^>\n]+>`)
	reURL        = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
	reSeparator  = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`)
	reMarker     = regexp.MustCompile(`(?i)\[\s*PH\s*(\d+)\s*\]`)
	protectOrder = []*regexp.Regexp{reHTMLTag, reURL, reSeparator}
)

// Protected is a chunk with its markup replaced by markers.
type Protected struct {
	Text    string
	Markers []string
}

// Protect replaces markup in text with markers numbered in replacement
// order. Tags go first so a link inside an attribute stays with its tag.
func Protect(text string) Protected {
	p := Protected{Text: text}
	for _, re := range protectOrder {
		p.Text = re.ReplaceAllStringFunc(p.Text, func(match string) string {
			id := fmt.Sprintf("[PH%d]", len(p.Markers))
			p.Markers = append(p.Markers, match)
			return id
		})
	}
	return p
}

// Restore puts the markup back into translated. Machine translators often
// re-space or re-case the markers, so "[ ph 3 ]" is accepted too. It also
// reports the markers that did not survive translation.
func (p Protected) Restore(translated string) (string, []int) {
	if len(p.Markers) == 0 {
		return translated, nil
	}

	seen := make([]bool, len(p.Markers))
	out := reMarker.ReplaceAllStringFunc(translated, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx >= len(p.Markers) {
			return match
		}
		seen[idx] = true
		return p.Markers[idx]
	})

	var missing []int
	for i, ok := range seen {
		if !ok {
			missing = append(missing, i)
		}
	}
	return out, missing
}
