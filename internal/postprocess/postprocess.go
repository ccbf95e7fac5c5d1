// Package postprocess strips model artifacts from chat replies before they
// are stored as chapter text.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean runs every filter in order and trims the result.
func Clean(text string) string {
	for _, f := range filters {
		text = f(text)
	}
	return strings.TrimSpace(text)
}

var filters = []func(string) string{
	stripReasoning,
	stripFence,
	stripPreamble,
	stripQuotes,
}

// RE2 has no backreferences, so each tag pair is spelled out.
var (
	reasoningRe = regexp.MustCompile(
		`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
	)
	openReasoningRe = regexp.MustCompile(`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`)
)

// stripReasoning drops closed reasoning blocks, then anything after an
// unclosed one (the reply was cut off mid-thought).
func stripReasoning(text string) string {
	text = reasoningRe.ReplaceAllString(text, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\n(.*?)\n?```$")

// stripFence unwraps a reply that is a single fenced block.
func stripFence(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Preambles must start the reply and end with a colon.
var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:edited |refined |polished |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:edited |refined |polished )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:edited |refined |polished |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:dưới )?đây là (?:bản dịch|bản biên tập|văn bản)(?: [^:\n]{0,40})?\s*:`),
	regexp.MustCompile(`(?i)^(?:bản dịch|bản biên tập)(?: (?:đã chỉnh sửa|hoàn chỉnh|tiếng việt))?\s*:`),
}

func stripPreamble(text string) string {
	for _, re := range preambleRes {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var quotePairs = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'«':      '»',
	'\u201C': '\u201D',
	'\u2018': '\u2019',
}

// stripQuotes removes one matching pair of quotes wrapping the whole reply.
func stripQuotes(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	if closing, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == closing {
		return strings.TrimSpace(string(runes[1 : len(runes)-1]))
	}
	return text
}
