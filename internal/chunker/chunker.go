// Package chunker splits chapter text into line-preserving chunks that stay
// under a provider's request size limit, and reassembles translated chunks.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSize is the default chunk bound, in runes.
const DefaultMaxSize = 2000

// Chunk is a contiguous run of whole lines taken from a chapter.
type Chunk struct {
	Index int
	Text  string
}

// Split breaks text into chunks of whole lines. Lines are accumulated
// greedily; when appending the next line (plus its newline separator) would
// bring the chunk to maxSize runes or more, the chunk is closed and the line
// starts a new one. A line that alone reaches maxSize becomes its own
// oversized chunk. Lines are never split.
//
// Joining the chunk texts with "\n" reproduces text exactly. Empty text
// yields no chunks. If maxSize <= 0 the whole text is returned as one chunk.
func Split(text string, maxSize int) []Chunk {
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		return []Chunk{{Index: 0, Text: text}}
	}

	var (
		chunks  []Chunk
		current []string
		size    int
	)

	flush := func() {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: strings.Join(current, "\n")})
		current = nil
		size = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if len(current) > 0 && size+1+n >= maxSize {
			flush()
		}
		if len(current) > 0 {
			size++
		}
		current = append(current, line)
		size += n
	}
	flush()

	return chunks
}

// Texts returns the text of each chunk in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// Join reassembles chunk texts with newline separators.
func Join(parts []string) string {
	return strings.Join(parts, "\n")
}

// Batches groups chunks into consecutive batches of at most size chunks.
// A size <= 0 puts every chunk in a single batch.
func Batches(chunks []Chunk, size int) [][]Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(chunks)
	}
	var out [][]Chunk
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[start:end])
	}
	return out
}
