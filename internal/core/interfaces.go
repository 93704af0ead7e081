package core

import "context"

// Embedder maps text to fixed-dimension dense vectors. The same
// implementation (same model, same version) must serve both the
// ingestion and query paths; vectors from different models are not
// comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector length this embedder produces.
	Dimensions() int
	// Healthy verifies the underlying model is loaded and reachable.
	Healthy(ctx context.Context) error
}

// Generator produces an answer for a fully assembled prompt. One
// blocking call per chat turn; no streaming.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
