package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_InvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SplitText("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks, err := SplitText("short", 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0])
}

func TestSplitText_ExactSizeSingleChunk(t *testing.T) {
	text := strings.Repeat("x", 100)
	chunks, err := SplitText(text, 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitText_EmptyText(t *testing.T) {
	chunks, err := SplitText("", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitText_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	first, err := SplitText(text, 500, 50)
	require.NoError(t, err)
	second, err := SplitText(text, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitText_OverlapInvariant(t *testing.T) {
	const size, overlap = 300, 40
	text := strings.Repeat("abcdefghij", 150)

	chunks, err := SplitText(text, size, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		prev, next := chunks[i], chunks[i+1]
		assert.LessOrEqual(t, len(next), size)
		// Each chunk ends with the overlap the next one starts with,
		// except possibly the final short chunk.
		tail := prev[len(prev)-overlap:]
		if len(next) >= overlap {
			assert.Equal(t, tail, next[:overlap], "chunks %d and %d do not share the configured overlap", i, i+1)
		} else {
			assert.True(t, strings.HasPrefix(tail, next))
		}
	}
}

func TestSplitText_3219CharsYieldsFourChunks(t *testing.T) {
	text := strings.Repeat("abcdefghij", 321) + "abcdefghi"
	require.Len(t, text, 3219)

	chunks, err := SplitText(text, 1000, 100)
	require.NoError(t, err)
	assert.Len(t, chunks, 4)

	// Reassembling without the overlaps reproduces the input.
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		sb.WriteString(c[100:])
	}
	assert.Equal(t, text, sb.String())
}
