package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	in := "Title\r\n\r\n\r\n  first   line\t\twith   gaps  \r\nsecond\x00\x07 line\n\n\n\nlast"
	got := Normalize(in)
	assert.Equal(t, "Title\n\nfirst line with gaps\nsecond line\n\nlast", got)
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Equal(t, "", Normalize("   \r\n\t \n\n "))
}

func TestSplitEmptyInput(t *testing.T) {
	_, err := Split("   \n\n  ", Config{Size: 100, Overlap: 10})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestSplitParagraphOverlap(t *testing.T) {
	// "A. B. C." paragraphs repeated past the chunk size must produce
	// multiple chunks, the later ones seeded with the word tail of the
	// previous one.
	para := "A. B. C."
	text := strings.Repeat(para+"\n\n", 6)

	chunks, err := Split(text, Config{Size: 20, Overlap: 5})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 25, "chunk %q exceeds size plus slack", c)
	}

	firstWords := strings.Fields(chunks[0])
	tail := firstWords[len(firstWords)-1]
	assert.True(t, strings.HasPrefix(chunks[1], tail), "second chunk %q should start with overlap tail %q", chunks[1], tail)
}

func TestSplitOversizedParagraphBySentence(t *testing.T) {
	text := "One sentence here. Another sentence follows! A third one too? And a fourth."
	chunks, err := Split(text, Config{Size: 30, Overlap: 5})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		// size plus the slack of one trailing sentence
		assert.LessOrEqual(t, len(c), 50)
	}
	// sentence-level splitting carries no overlap
	assert.True(t, strings.HasPrefix(chunks[0], "One sentence here."))
	assert.False(t, strings.HasPrefix(chunks[1], "here."), "no word overlap expected between sentence chunks")
}

func TestSplitDiscardsShortChunks(t *testing.T) {
	long := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 3)
	text := long + "\n\n" + "tiny"
	chunks, err := Split(text, Config{Size: 135, Overlap: 20})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c), 50, "chunk %q under the minimum survived", c)
	}
}

func TestSplitNoContentDropped(t *testing.T) {
	paras := []string{
		strings.Repeat("alpha beta gamma delta epsilon ", 3),
		strings.Repeat("zeta eta theta iota kappa ", 3),
		strings.Repeat("lambda mu nu xi omicron ", 3),
		strings.Repeat("pi rho sigma tau upsilon ", 3),
	}
	text := strings.Join(paras, "\n\n")

	chunks, err := Split(text, Config{Size: 120, Overlap: 20})
	require.NoError(t, err)

	joined := strings.Join(chunks, " ")
	for _, w := range strings.Fields(Normalize(text)) {
		assert.Contains(t, joined, w)
	}
}

func TestEstimatePage(t *testing.T) {
	tests := []struct {
		name                       string
		index, chunks, pages, want int
	}{
		{"zero chunks", 0, 0, 10, 1},
		{"zero pages", 3, 10, 0, 1},
		{"first chunk", 0, 10, 5, 1},
		{"middle chunk", 5, 10, 10, 6},
		{"last chunk clamped", 9, 10, 5, 5},
		{"single page", 7, 8, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimatePage(tt.index, tt.chunks, tt.pages))
		})
	}
}
