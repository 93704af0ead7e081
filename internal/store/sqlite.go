package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        file_name TEXT NOT NULL,
        metadata TEXT, -- JSON object of string key-values
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding TEXT NOT NULL, -- JSON array of float32
        created_at DATETIME NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id);

    CREATE TABLE IF NOT EXISTS message_source_chunks (
        message_id TEXT NOT NULL,
        chunk_id TEXT NOT NULL,
        similarity_score REAL NOT NULL,
        PRIMARY KEY (message_id, chunk_id),
        FOREIGN KEY (message_id) REFERENCES messages (id),
        FOREIGN KEY (chunk_id) REFERENCES chunks (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document and chunk methods (ingestion path)

// CreateDocumentWithChunks persists a document and all of its chunks in
// one transaction. A failure on any row rolls back everything so no
// document is ever left half-ingested. Missing ids and timestamps are
// filled in; chunk timestamps increase with position so creation order
// is recoverable.
func (s *SQLiteStore) CreateDocumentWithChunks(doc *Document, chunks []Chunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return fmt.Errorf("chunk %d has no embedding", i)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	_, err = tx.Exec("INSERT INTO documents (id, file_name, metadata, created_at) VALUES (?, ?, ?, ?)",
		doc.ID, doc.FileName, string(metadataJSON), doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (id, document_id, content, embedding, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		chunk.DocumentID = doc.ID
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = doc.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		}

		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %d: %w", i, err)
		}
		if _, err := stmt.Exec(chunk.ID, chunk.DocumentID, chunk.Content, string(embeddingJSON), chunk.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and, via the cascade, its chunks.
// Maintenance operation; the in-memory index is rebuilt on next start.
func (s *SQLiteStore) DeleteDocument(documentID string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(documentID string) (*Document, error) {
	var doc Document
	var metadataJSON sql.NullString
	err := s.db.QueryRow("SELECT id, file_name, metadata, created_at FROM documents WHERE id = ?", documentID).
		Scan(&doc.ID, &doc.FileName, &metadataJSON, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}
	return &doc, nil
}

func (s *SQLiteStore) CountChunksByDocument(documentID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// AllChunkVectors returns every chunk id with its embedding, in chunk
// creation order. Used to rebuild the vector index at startup; insertion
// order into the index is what breaks similarity ties.
func (s *SQLiteStore) AllChunkVectors() ([]ChunkVector, error) {
	rows, err := s.db.Query("SELECT id, embedding FROM chunks ORDER BY created_at ASC, rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk vectors: %w", err)
	}
	defer rows.Close()

	var vectors []ChunkVector
	for rows.Next() {
		var cv ChunkVector
		var embeddingJSON string
		if err := rows.Scan(&cv.ChunkID, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk vector row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &cv.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %s: %w", cv.ChunkID, err)
		}
		vectors = append(vectors, cv)
	}
	return vectors, rows.Err()
}

// RetrievedChunk is a chunk joined with its owning document's file name,
// as needed for prompt assembly and citations.
type RetrievedChunk struct {
	Chunk
	DocumentName string
}

// GetChunksByIDs loads chunks and their document names. The result is
// keyed by chunk id; missing ids are simply absent.
func (s *SQLiteStore) GetChunksByIDs(chunkIDs []string) (map[string]RetrievedChunk, error) {
	if len(chunkIDs) == 0 {
		return map[string]RetrievedChunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
        SELECT c.id, c.document_id, c.content, c.created_at, d.file_name
        FROM chunks c
        JOIN documents d ON d.id = c.document_id
        WHERE c.id IN (%s)`, placeholders)

	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	result := make(map[string]RetrievedChunk, len(chunkIDs))
	for rows.Next() {
		var rc RetrievedChunk
		if err := rows.Scan(&rc.ID, &rc.DocumentID, &rc.Content, &rc.CreatedAt, &rc.DocumentName); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		result[rc.ID] = rc
	}
	return result, rows.Err()
}

// Conversation and message methods (chat path)

func (s *SQLiteStore) GetConversation(conversationID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow("SELECT id, created_at FROM conversations WHERE id = ?", conversationID).
		Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// GetMessages returns a conversation's full history in creation order,
// ties broken by insertion order.
func (s *SQLiteStore) GetMessages(conversationID string) ([]Message, error) {
	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC
    `
	rows, err := s.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) GetSourceChunks(messageID string) ([]SourceChunk, error) {
	rows, err := s.db.Query(
		"SELECT message_id, chunk_id, similarity_score FROM message_source_chunks WHERE message_id = ?", messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source chunks: %w", err)
	}
	defer rows.Close()

	var sources []SourceChunk
	for rows.Next() {
		var sc SourceChunk
		if err := rows.Scan(&sc.MessageID, &sc.ChunkID, &sc.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan source chunk row: %w", err)
		}
		sources = append(sources, sc)
	}
	return sources, rows.Err()
}

// AppendExchange commits one complete chat turn: the conversation row
// when it does not exist yet, the user message, the assistant message,
// and the assistant's source links, all in a single transaction. An
// aborted turn therefore leaves nothing behind, not even a new
// conversation.
func (s *SQLiteStore) AppendExchange(conversationID, userText, assistantText string, sources []SourceChunk) (*Conversation, *Message, *Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	conv := &Conversation{ID: conversationID, CreatedAt: now}
	err = tx.QueryRow("SELECT created_at FROM conversations WHERE id = ?", conversationID).Scan(&conv.CreatedAt)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec("INSERT INTO conversations (id, created_at) VALUES (?, ?)", conv.ID, conv.CreatedAt); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to insert conversation: %w", err)
		}
	} else if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to check conversation: %w", err)
	}

	userMsg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        userText,
		CreatedAt:      now,
	}
	assistantMsg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        assistantText,
		CreatedAt:      now.Add(time.Microsecond),
	}

	stmt, err := tx.Prepare("INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(userMsg.ID, userMsg.ConversationID, userMsg.Role, userMsg.Content, userMsg.CreatedAt); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to insert user message: %w", err)
	}
	if _, err := stmt.Exec(assistantMsg.ID, assistantMsg.ConversationID, assistantMsg.Role, assistantMsg.Content, assistantMsg.CreatedAt); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to insert assistant message: %w", err)
	}

	for _, src := range sources {
		_, err := tx.Exec("INSERT INTO message_source_chunks (message_id, chunk_id, similarity_score) VALUES (?, ?, ?)",
			assistantMsg.ID, src.ChunkID, src.SimilarityScore)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to insert source chunk link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to commit exchange: %w", err)
	}
	return conv, userMsg, assistantMsg, nil
}
