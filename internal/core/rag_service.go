package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragbot/ragbot/internal/store"
	"github.com/ragbot/ragbot/internal/vector"
)

const (
	// NoGroundingResponse is returned verbatim when no retrieved chunk
	// clears the similarity threshold. The generation model is not
	// called on this path, so it cannot fabricate an answer.
	NoGroundingResponse = "The available documents do not contain information to answer this question."

	groundingInstruction = "You are an assistant that answers questions based exclusively on the document excerpts provided below.\n" +
		"Rules:\n" +
		"1. Answer ONLY from the provided excerpts.\n" +
		"2. If the excerpts do not contain the answer, state clearly that the documents do not contain that information.\n" +
		"3. Mention the source documents you used.\n" +
		"4. Be precise and concise. Do not make up information."

	// Citation text returned over the API is capped at this many runes.
	citationPreviewLen = 200
)

// RAGConfig carries the retrieval and prompt-assembly parameters.
type RAGConfig struct {
	MaxChunks           int
	SimilarityThreshold float32
	HistoryBudget       int
	LLMTimeout          time.Duration
}

type ChatRequest struct {
	ConversationID string // empty creates a new conversation
	Message        string
	MaxChunks      int // 0 uses the configured default
}

// Citation is one piece of evidence behind an answer, as surfaced to
// the caller. Content is a preview; the full linkage lives in the
// message_source_chunks rows.
type Citation struct {
	DocumentName    string  `json:"document_name"`
	Content         string  `json:"content"`
	SimilarityScore float32 `json:"similarity_score"`
}

type ChatResponse struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	Response       string     `json:"response"`
	Sources        []Citation `json:"sources"`
	ProcessingTime float64    `json:"processing_time"`
}

type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	IndexChunks int    `json:"index_chunks"`
}

// RAGService orchestrates one chat turn: embed the query, retrieve
// evidence, assemble a grounded prompt within the context budget,
// generate, and persist the exchange with its citations. Turns within
// one conversation are serialised; distinct conversations run
// concurrently.
type RAGService struct {
	cfg       RAGConfig
	dbStore   *store.SQLiteStore
	embedder  Embedder
	generator Generator
	index     vector.Index
	convLocks *keyedMutex
}

func NewRAGService(cfg RAGConfig, dbStore *store.SQLiteStore, embedder Embedder, generator Generator, index vector.Index) *RAGService {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 5
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	return &RAGService{
		cfg:       cfg,
		dbStore:   dbStore,
		embedder:  embedder,
		generator: generator,
		index:     index,
		convLocks: newKeyedMutex(),
	}
}

// Chat runs one full turn. On any failure nothing is persisted; the
// conversation stays usable for the next turn. A new conversation id is
// only materialised if the turn commits.
func (s *RAGService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	conversationID := req.ConversationID
	isNew := conversationID == ""
	if isNew {
		conversationID = uuid.NewString()
	} else {
		conv, err := s.dbStore.GetConversation(conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up conversation: %w", err)
		}
		if conv == nil {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
	}

	// Serialise turns per conversation so a second turn cannot start
	// persisting before the first one commits.
	s.convLocks.Lock(conversationID)
	defer s.convLocks.Unlock(conversationID)

	queryVector, err := s.embedQuery(ctx, req.Message)
	if err != nil {
		return nil, err
	}

	k := req.MaxChunks
	if k <= 0 {
		k = s.cfg.MaxChunks
	}
	hits, err := s.index.Search(queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	// Below-threshold retrieval is not a failure: the turn continues on
	// the explicit no-grounding path and persists a canned answer.
	relevant := hits[:0:len(hits)]
	for _, hit := range hits {
		if hit.Similarity >= s.cfg.SimilarityThreshold {
			relevant = append(relevant, hit)
		}
	}

	var answer string
	var sources []store.SourceChunk
	var citations []Citation

	if len(relevant) == 0 {
		log.Printf("No chunks above similarity threshold %.2f for conversation %s", s.cfg.SimilarityThreshold, conversationID)
		answer = NoGroundingResponse
	} else {
		chunkIDs := make([]string, len(relevant))
		for i, hit := range relevant {
			chunkIDs[i] = hit.ChunkID
		}
		chunkByID, err := s.dbStore.GetChunksByIDs(chunkIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load retrieved chunks: %v", ErrIndexUnavailable, err)
		}

		var history []store.Message
		if !isNew {
			history, err = s.dbStore.GetMessages(conversationID)
			if err != nil {
				return nil, fmt.Errorf("failed to load conversation history: %w", err)
			}
		}

		prompt := s.buildPrompt(req.Message, relevant, chunkByID, history)

		answer, err = s.generateAnswer(ctx, prompt)
		if err != nil {
			return nil, err
		}

		for _, hit := range relevant {
			rc, ok := chunkByID[hit.ChunkID]
			if !ok {
				continue
			}
			sources = append(sources, store.SourceChunk{ChunkID: hit.ChunkID, SimilarityScore: hit.Similarity})
			citations = append(citations, Citation{
				DocumentName:    rc.DocumentName,
				Content:         previewText(rc.Content),
				SimilarityScore: hit.Similarity,
			})
		}
	}

	conv, _, assistantMsg, err := s.dbStore.AppendExchange(conversationID, req.Message, answer, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to persist chat turn: %w", err)
	}

	return &ChatResponse{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Response:       answer,
		Sources:        citations,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// History returns a conversation and its messages in creation order.
func (s *RAGService) History(conversationID string) (*store.Conversation, []store.Message, error) {
	conv, err := s.dbStore.GetConversation(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	messages, err := s.dbStore.GetMessages(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return conv, messages, nil
}

// Health reports whether the embedding model is loaded and how many
// chunks the index currently serves.
func (s *RAGService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{IndexChunks: s.index.Len()}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.embedder.Healthy(ctx); err == nil {
		status.ModelLoaded = true
		status.Status = "ok"
	} else {
		status.Status = "degraded: embedding model unavailable"
	}
	return status
}

func (s *RAGService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

func (s *RAGService) generateAnswer(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrGenerationFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}
	return answer, nil
}

// buildPrompt combines the grounding instruction, the retrieved
// evidence tagged with its source document, a history window bounded by
// the configured budget, and the user's question.
func (s *RAGService) buildPrompt(question string, hits []vector.Hit, chunkByID map[string]store.RetrievedChunk, history []store.Message) string {
	var sb strings.Builder
	sb.WriteString(groundingInstruction)
	sb.WriteString("\n\nDOCUMENT EXCERPTS:\n")
	for _, hit := range hits {
		rc, ok := chunkByID[hit.ChunkID]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n[Document: %s]\n%s\n", rc.DocumentName, rc.Content)
	}

	if window := historyWindow(history, s.cfg.HistoryBudget); len(window) > 0 {
		sb.WriteString("\nCONVERSATION SO FAR:\n")
		for _, msg := range window {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	sb.WriteString("\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}

// historyWindow keeps the most recent messages whose combined content
// fits within budget characters, dropping the oldest first. The
// returned slice preserves chronological order.
func historyWindow(history []store.Message, budget int) []store.Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}
	used := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		used += len(history[i].Content)
		if used > budget {
			break
		}
		cut = i
	}
	if cut == len(history) {
		return nil
	}
	return history[cut:]
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= citationPreviewLen {
		return text
	}
	return string(runes[:citationPreviewLen]) + "…"
}
