package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragbot/ragbot/internal/core"
	"github.com/ragbot/ragbot/internal/store"
)

type APIHandler struct {
	ragService *core.RAGService
}

func NewAPIHandler(rs *core.RAGService) *APIHandler {
	return &APIHandler{ragService: rs}
}

// ChatRequest is the transport-level payload, validated here and
// decoupled from the core's request type.
type ChatRequest struct {
	ConversationID *string `json:"conversation_id,omitempty"`
	Message        string  `json:"message"`
	MaxChunks      int     `json:"max_chunks,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}
	if req.MaxChunks < 0 {
		http.Error(w, "max_chunks cannot be negative", http.StatusBadRequest)
		return
	}

	coreReq := core.ChatRequest{
		Message:   req.Message,
		MaxChunks: req.MaxChunks,
	}
	if req.ConversationID != nil {
		coreReq.ConversationID = *req.ConversationID
	}

	resp, err := h.ragService.Chat(r.Context(), coreReq)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrConversationNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, core.ErrEmbeddingUnavailable),
			errors.Is(err, core.ErrGenerationFailure),
			errors.Is(err, core.ErrIndexUnavailable):
			// Retryable: the turn aborted with nothing persisted.
			log.Printf("Chat turn aborted: %v", err)
			http.Error(w, "Could not process your request, please try again", http.StatusServiceUnavailable)
		default:
			log.Printf("Chat request failed: %v", err)
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type GetConversationResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, messages, err := h.ragService.History(conversationID)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting conversation %s: %v", conversationID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetConversationResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.ragService.Health(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !status.ModelLoaded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
