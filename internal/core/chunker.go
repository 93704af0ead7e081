package core

import "fmt"

// SplitText splits text into passages of at most size characters, each
// overlapping the previous passage by overlap characters. Boundaries are
// purely positional; no sentence or paragraph awareness. The split is
// deterministic for a given input and configuration, which re-ingestion
// and the tests rely on.
//
// Text no longer than size yields exactly one chunk. The final chunk may
// be shorter than size and carry less than the full overlap.
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	stride := size - overlap
	chunks := make([]string, 0, len(runes)/stride+1)

	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
