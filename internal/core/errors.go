package core

import "errors"

// Failure taxonomy for the ingestion and chat pipelines. Callers match
// with errors.Is to decide between fatal, skippable and retryable outcomes.
var (
	// ErrInvalidConfig indicates bad chunking parameters. Fatal; fix the
	// configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExtractionFailure indicates an unreadable source file. The
	// affected document is skipped and the batch continues.
	ErrExtractionFailure = errors.New("text extraction failed")

	// ErrEmbeddingUnavailable indicates the embedding model could not be
	// reached or failed after retries. Aborts the affected document or
	// chat turn; retryable.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexUnavailable indicates the vector index could not be
	// queried or written. Surfaced to the caller as a service error.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGenerationFailure indicates the generation model call failed or
	// timed out. The turn aborts with nothing persisted; retryable.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrConversationNotFound indicates a chat request referenced a
	// conversation id that does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
)
