package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot/ragbot/internal/store"
	"github.com/ragbot/ragbot/internal/vector"
)

type ragFixture struct {
	svc       *RAGService
	dbStore   *store.SQLiteStore
	index     *vector.MemoryIndex
	embedder  *fakeEmbedder
	generator *fakeGenerator
	chunkIDs  []string
}

// newRAGFixture seeds one document with three chunks: two pointing along
// the first axis (retrievable) and one along the second (irrelevant to
// axis-one queries).
func newRAGFixture(t *testing.T) *ragFixture {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	chunks := []store.Chunk{
		{Content: "Solar panels convert sunlight into electricity.", Embedding: padVector([]float32{1, 0, 0}, testDimensions)},
		{Content: "Panel efficiency degrades about half a percent per year.", Embedding: padVector([]float32{0.9, 0.1, 0}, testDimensions)},
		{Content: "The warranty excludes damage from hail.", Embedding: padVector([]float32{0, 1, 0}, testDimensions)},
	}
	doc := &store.Document{FileName: "solar-manual.pdf"}
	require.NoError(t, dbStore.CreateDocumentWithChunks(doc, chunks))

	index := vector.NewMemoryIndex()
	ids := make([]string, len(chunks))
	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		entries[i] = vector.Entry{ChunkID: c.ID, Vector: c.Embedding}
	}
	require.NoError(t, index.Insert(entries))

	embedder := newFakeEmbedder()
	embedder.set("how do solar panels work?", []float32{1, 0, 0})
	embedder.set("what about the weather on mars?", []float32{0, 0, 1})

	generator := &fakeGenerator{answer: "They convert sunlight into electricity."}

	svc := NewRAGService(RAGConfig{
		MaxChunks:           5,
		SimilarityThreshold: 0.5,
		HistoryBudget:       4000,
		LLMTimeout:          5 * time.Second,
	}, dbStore, embedder, generator, index)

	return &ragFixture{svc: svc, dbStore: dbStore, index: index, embedder: embedder, generator: generator, chunkIDs: ids}
}

func TestChat_NewConversationWithGrounding(t *testing.T) {
	fx := newRAGFixture(t)

	resp, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "They convert sunlight into electricity.", resp.Response)
	assert.GreaterOrEqual(t, resp.ProcessingTime, 0.0)

	// Only the two axis-one chunks clear the 0.5 threshold.
	require.Len(t, resp.Sources, 2)
	for _, src := range resp.Sources {
		assert.Equal(t, "solar-manual.pdf", src.DocumentName)
		assert.GreaterOrEqual(t, src.SimilarityScore, float32(0.5))
	}

	// Exactly two messages were appended, in order.
	messages, err := fx.dbStore.GetMessages(resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "how do solar panels work?", messages[0].Content)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)

	// Citation rows exist only for chunks above threshold.
	sources, err := fx.dbStore.GetSourceChunks(messages[1].ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	for _, src := range sources {
		assert.NotEqual(t, fx.chunkIDs[2], src.ChunkID, "below-threshold chunk must not be cited")
	}
}

func TestChat_NoGroundingReturnsCannedAnswer(t *testing.T) {
	fx := newRAGFixture(t)

	resp, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "what about the weather on mars?"})
	require.NoError(t, err)

	assert.Equal(t, NoGroundingResponse, resp.Response)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, fx.generator.callCount(), "generation model must not run without grounding")

	// The turn is still persisted: user question plus canned answer,
	// with zero citation rows.
	messages, err := fx.dbStore.GetMessages(resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, NoGroundingResponse, messages[1].Content)

	sources, err := fx.dbStore.GetSourceChunks(messages[1].ID)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestChat_MaxChunksOverride(t *testing.T) {
	fx := newRAGFixture(t)

	resp, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?", MaxChunks: 1})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.InDelta(t, 1.0, float64(resp.Sources[0].SimilarityScore), 1e-3)
}

func TestChat_UnknownConversation(t *testing.T) {
	fx := newRAGFixture(t)

	_, err := fx.svc.Chat(context.Background(), ChatRequest{
		ConversationID: uuid.NewString(),
		Message:        "how do solar panels work?",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	fx := newRAGFixture(t)
	_, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "   "})
	assert.Error(t, err)
}

func TestChat_EmbeddingFailureAbortsTurn(t *testing.T) {
	fx := newRAGFixture(t)
	fx.embedder.fail = true

	_, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestChat_GenerationFailurePersistsNothing(t *testing.T) {
	fx := newRAGFixture(t)

	first, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?"})
	require.NoError(t, err)

	fx.generator.fail = true
	_, err = fx.svc.Chat(context.Background(), ChatRequest{
		ConversationID: first.ConversationID,
		Message:        "how do solar panels work?",
	})
	require.ErrorIs(t, err, ErrGenerationFailure)

	// The aborted turn left nothing behind; the conversation still holds
	// only the first exchange and stays usable.
	messages, err := fx.dbStore.GetMessages(first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	fx.generator.fail = false
	_, err = fx.svc.Chat(context.Background(), ChatRequest{
		ConversationID: first.ConversationID,
		Message:        "how do solar panels work?",
	})
	require.NoError(t, err)

	messages, err = fx.dbStore.GetMessages(first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestChat_MultiTurnOrderingAndHistory(t *testing.T) {
	fx := newRAGFixture(t)

	first, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?"})
	require.NoError(t, err)

	second, err := fx.svc.Chat(context.Background(), ChatRequest{
		ConversationID: first.ConversationID,
		Message:        "how do solar panels work?",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	messages, err := fx.dbStore.GetMessages(first.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"messages must come back in creation order")
	}
	roles := []string{messages[0].Role, messages[1].Role, messages[2].Role, messages[3].Role}
	assert.Equal(t, []string{store.RoleUser, store.RoleAssistant, store.RoleUser, store.RoleAssistant}, roles)

	// The second prompt included the first exchange.
	require.Equal(t, 2, fx.generator.callCount())
	lastPrompt := fx.generator.prompts[1]
	assert.Contains(t, lastPrompt, "CONVERSATION SO FAR:")
	assert.Contains(t, lastPrompt, "They convert sunlight into electricity.")
}

func TestChat_PromptShape(t *testing.T) {
	fx := newRAGFixture(t)

	_, err := fx.svc.Chat(context.Background(), ChatRequest{Message: "how do solar panels work?"})
	require.NoError(t, err)

	require.Equal(t, 1, fx.generator.callCount())
	prompt := fx.generator.prompts[0]
	assert.Contains(t, prompt, "exclusively on the document excerpts")
	assert.Contains(t, prompt, "[Document: solar-manual.pdf]")
	assert.Contains(t, prompt, "Solar panels convert sunlight into electricity.")
	assert.Contains(t, prompt, "QUESTION:\nhow do solar panels work?")
	assert.NotContains(t, prompt, "The warranty excludes damage from hail.",
		"below-threshold chunks must not enter the prompt")
}

func TestHistoryWindow(t *testing.T) {
	msg := func(content string) store.Message {
		return store.Message{Content: content}
	}

	t.Run("empty history", func(t *testing.T) {
		assert.Nil(t, historyWindow(nil, 100))
	})

	t.Run("all fits", func(t *testing.T) {
		history := []store.Message{msg("aa"), msg("bb"), msg("cc")}
		window := historyWindow(history, 100)
		assert.Equal(t, history, window)
	})

	t.Run("oldest dropped first", func(t *testing.T) {
		history := []store.Message{msg(strings.Repeat("x", 50)), msg("recent one"), msg("recent two")}
		window := historyWindow(history, 25)
		require.Len(t, window, 2)
		assert.Equal(t, "recent one", window[0].Content)
		assert.Equal(t, "recent two", window[1].Content)
	})

	t.Run("nothing fits", func(t *testing.T) {
		history := []store.Message{msg(strings.Repeat("x", 50))}
		assert.Nil(t, historyWindow(history, 10))
	})

	t.Run("zero budget", func(t *testing.T) {
		assert.Nil(t, historyWindow([]store.Message{msg("a")}, 0))
	})
}

func TestHealth(t *testing.T) {
	fx := newRAGFixture(t)

	status := fx.svc.Health(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.True(t, status.ModelLoaded)
	assert.Equal(t, 3, status.IndexChunks)

	fx.embedder.fail = true
	status = fx.svc.Health(context.Background())
	assert.False(t, status.ModelLoaded)
	assert.NotEqual(t, "ok", status.Status)
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "short", previewText("short"))

	long := strings.Repeat("y", citationPreviewLen+50)
	preview := previewText(long)
	assert.Len(t, []rune(preview), citationPreviewLen+1)
	assert.True(t, strings.HasSuffix(preview, "…"))
}
