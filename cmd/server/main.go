package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ragbot/ragbot/internal/api"
	"github.com/ragbot/ragbot/internal/config"
	"github.com/ragbot/ragbot/internal/core"
	"github.com/ragbot/ragbot/internal/store"
	"github.com/ragbot/ragbot/internal/vector"
)

func main() {
	config.LoadConfig()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// Rebuild the in-memory index from persisted chunk vectors. Load
	// order matches chunk creation order, which breaks similarity ties.
	index := vector.NewMemoryIndex()
	chunkVectors, err := dbStore.AllChunkVectors()
	if err != nil {
		log.Fatalf("Failed to load chunk vectors: %v", err)
	}
	entries := make([]vector.Entry, len(chunkVectors))
	for i, cv := range chunkVectors {
		entries[i] = vector.Entry{ChunkID: cv.ChunkID, Vector: cv.Embedding}
	}
	if err := index.Insert(entries); err != nil {
		log.Fatalf("Failed to build vector index: %v", err)
	}
	if index.Len() == 0 {
		log.Println("Warning: vector index is empty. Run the ingest command to add documents.")
	} else {
		log.Printf("Vector index ready with %d chunks", index.Len())
	}

	ragService := core.NewRAGService(core.RAGConfig{
		MaxChunks:           config.AppConfig.MaxChunks,
		SimilarityThreshold: float32(config.AppConfig.SimilarityThreshold),
		HistoryBudget:       config.AppConfig.HistoryBudget,
		LLMTimeout:          time.Duration(config.AppConfig.LLMTimeoutSeconds) * time.Second,
	}, dbStore, llmService, llmService, index)

	apiHandler := api.NewAPIHandler(ragService)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
