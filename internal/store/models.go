package store

import "time"

// Message roles. A closed enumeration, also enforced by a CHECK
// constraint in the schema.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Document struct {
	ID        string            `json:"id"` // UUID
	FileName  string            `json:"file_name"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Chunk is an immutable passage of document text plus its embedding.
// A chunk without a vector is never written and never queryable.
type Chunk struct {
	ID         string    `json:"id"` // UUID
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"` // stored as a JSON array in the DB
	CreatedAt  time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"` // UUID
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // RoleUser or RoleAssistant
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// SourceChunk links an assistant message to a chunk it drew evidence
// from, with the similarity score observed at retrieval time. User
// messages never carry source links.
type SourceChunk struct {
	MessageID       string  `json:"message_id"`
	ChunkID         string  `json:"chunk_id"`
	SimilarityScore float32 `json:"similarity_score"`
}

// ChunkVector pairs a chunk id with its embedding, in chunk creation
// order, for rebuilding the vector index at startup.
type ChunkVector struct {
	ChunkID   string
	Embedding []float32
}
