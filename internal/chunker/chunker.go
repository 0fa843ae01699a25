package chunker

import (
	"errors"
	"strings"
	"unicode"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	// Chunks below this length carry no retrievable signal and are
	// dropped, unless the caller asked for chunks that small.
	minChunkChars = 50

	// Overlap is expressed in characters but applied as whole words,
	// assuming ~5 characters per word.
	avgWordLen = 5
)

var ErrNoContent = errors.New("no extractable text content")

type Config struct {
	Size    int
	Overlap int
}

// Split normalizes text and cuts it into overlapping segments.
// Splitting is paragraph-first; a paragraph that alone exceeds the chunk
// size is further split at sentence boundaries (without the word overlap,
// which only applies between paragraph-level chunks). Empty or
// all-whitespace input returns ErrNoContent.
func Split(text string, cfg Config) ([]string, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	norm := Normalize(text)
	if norm == "" {
		return nil, ErrNoContent
	}

	var chunks []string
	buf := ""
	flush := func() {
		if s := strings.TrimSpace(buf); s != "" {
			chunks = append(chunks, s)
		}
		buf = ""
	}

	for _, para := range strings.Split(norm, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > size {
			flush()
			chunks = append(chunks, splitSentences(para, size)...)
			continue
		}
		candidate := para
		if buf != "" {
			candidate = buf + "\n\n" + para
		}
		if len(candidate) > size && buf != "" {
			emitted := strings.TrimSpace(buf)
			flush()
			if tail := overlapTail(emitted, overlap); tail != "" {
				buf = tail + " " + para
			} else {
				buf = para
			}
			continue
		}
		buf = candidate
	}
	flush()

	// The sub-minimum discard is skipped for deliberately tiny chunk
	// sizes, where it would throw away every chunk.
	if size > minChunkChars {
		kept := chunks[:0]
		for _, c := range chunks {
			if len(c) >= minChunkChars {
				kept = append(kept, c)
			}
		}
		chunks = kept
	}
	return chunks, nil
}

// Normalize unifies line endings, strips control characters, collapses
// runs of horizontal whitespace, trims every line, and collapses multiple
// blank lines to at most one.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true // swallow leading blank lines
	for _, line := range lines {
		line = stripControl(line)
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// EstimatePage maps a chunk's position onto the document's pages by
// proportional interpolation. Defaults to page 1 when counts are unknown.
func EstimatePage(chunkIndex, totalChunks, totalPages int) int {
	if totalChunks <= 0 || totalPages <= 0 {
		return 1
	}
	page := chunkIndex*totalPages/totalChunks + 1
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// overlapTail returns roughly the last overlap characters of text as whole
// words (ceil(overlap/5) trailing words).
func overlapTail(text string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	n := (overlap + avgWordLen - 1) / avgWordLen
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}

// splitSentences cuts an oversized paragraph at terminal punctuation,
// accumulating sentences until the buffer would exceed size. A single
// sentence longer than size is kept whole.
func splitSentences(text string, size int) []string {
	var out []string
	buf := ""
	for _, s := range sentenceSplit(text) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		candidate := s
		if buf != "" {
			candidate = buf + " " + s
		}
		if len(candidate) > size && buf != "" {
			out = append(out, buf)
			buf = s
			continue
		}
		buf = candidate
	}
	if buf != "" {
		out = append(out, buf)
	}
	return out
}

func sentenceSplit(text string) []string {
	var parts []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			parts = append(parts, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

func stripControl(line string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, line)
}
