package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ragbot/ragbot/internal/store"
	"github.com/ragbot/ragbot/internal/vector"
)

// IngestConfig carries the chunking and batching parameters for one
// pipeline instance. Validated once at construction.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// IngestResult reports the outcome for a single source file.
type IngestResult struct {
	Path       string
	DocumentID string
	Chunks     int
	Err        error
}

// IngestService turns source documents into persisted chunks with
// embeddings: extract, chunk, embed in batches, persist document and
// chunks atomically, then publish the vectors to the index.
//
// Re-ingesting a file always creates a new document; there is no
// content or file-name deduplication. Callers wanting exactly-once
// ingestion must dedupe by file name before calling.
type IngestService struct {
	cfg      IngestConfig
	dbStore  *store.SQLiteStore
	embedder Embedder
	index    vector.Index

	// Serialises pipeline runs per source file so two runs on the same
	// document never interleave chunk writes.
	fileLocks *keyedMutex
}

func NewIngestService(cfg IngestConfig, dbStore *store.SQLiteStore, embedder Embedder, index vector.Index) (*IngestService, error) {
	if _, err := SplitText("", cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &IngestService{
		cfg:       cfg,
		dbStore:   dbStore,
		embedder:  embedder,
		index:     index,
		fileLocks: newKeyedMutex(),
	}, nil
}

// IngestFile runs the full pipeline for one file. The document and all
// of its chunks commit as one unit; on any failure past extraction the
// transaction rolls back and nothing is left behind.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	fileName := filepath.Base(path)
	s.fileLocks.Lock(fileName)
	defer s.fileLocks.Unlock(fileName)

	result := &IngestResult{Path: path}

	text, metadata, err := ExtractText(path)
	if err != nil {
		result.Err = err
		return result, err
	}

	passages, err := SplitText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		result.Err = err
		return result, err
	}

	log.Printf("Split %s into %d chunks, embedding in batches of %d...", fileName, len(passages), s.cfg.BatchSize)

	chunks := make([]store.Chunk, 0, len(passages))
	for start := 0; start < len(passages); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(passages) {
			end = len(passages)
		}
		vectors, err := s.embedder.EmbedBatch(ctx, passages[start:end])
		if err != nil {
			result.Err = err
			return result, fmt.Errorf("embedding batch %d failed for %s: %w", start/s.cfg.BatchSize, fileName, err)
		}
		for i, vec := range vectors {
			chunks = append(chunks, store.Chunk{
				Content:   passages[start+i],
				Embedding: vec,
			})
		}
	}

	doc := &store.Document{
		FileName:  fileName,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.dbStore.CreateDocumentWithChunks(doc, chunks); err != nil {
		result.Err = err
		return result, fmt.Errorf("failed to persist %s: %w", fileName, err)
	}

	entries := make([]vector.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vector.Entry{ChunkID: chunk.ID, Vector: chunk.Embedding}
	}
	if err := s.index.Insert(entries); err != nil {
		// The document is committed but unsearchable; roll it back so
		// the store and index stay consistent.
		if delErr := s.dbStore.DeleteDocument(doc.ID); delErr != nil {
			log.Printf("Failed to roll back document %s after index error: %v", doc.ID, delErr)
		}
		result.Err = fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		return result, result.Err
	}

	result.DocumentID = doc.ID
	result.Chunks = len(chunks)
	log.Printf("Ingested %s: document %s, %d chunks", fileName, doc.ID, len(chunks))
	return result, nil
}

// IngestDir runs the pipeline for every supported file in dir. Files
// fail independently; one bad document never aborts the rest of the
// batch. Results come back in file-name order.
func (s *IngestService) IngestDir(ctx context.Context, dir string) ([]IngestResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pdf", ".txt", ".md":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	results := make([]IngestResult, 0, len(paths))
	for _, path := range paths {
		res, err := s.IngestFile(ctx, path)
		if err != nil {
			log.Printf("Failed to ingest %s: %v", path, err)
		}
		results = append(results, *res)
	}
	return results, nil
}
