package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
)

const testDimensions = 384

// fakeEmbedder produces deterministic 384-dimension unit vectors. Texts
// registered via set get exact vectors so tests can control similarity;
// everything else gets a hash-derived vector.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(text string, vec []float32) {
	f.vectors[text] = padVector(vec, testDimensions)
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("%w: fake embedder down", ErrEmbeddingUnavailable)
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return hashVector(text, testDimensions), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return testDimensions }

func (f *fakeEmbedder) Healthy(ctx context.Context) error {
	_, err := f.Embed(ctx, "ping")
	return err
}

// fakeGenerator returns a canned answer and records the prompts it saw.
type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	fail    bool
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", fmt.Errorf("%w: fake generator down", ErrGenerationFailure)
	}
	g.prompts = append(g.prompts, prompt)
	if g.answer == "" {
		return "canned answer", nil
	}
	return g.answer, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = r.Float32()*2 - 1
	}
	return normalize(vec)
}

// padVector extends vec with zeros to dim components, normalized.
func padVector(vec []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, vec)
	return normalize(out)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
