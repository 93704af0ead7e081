package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ragbot/ragbot/internal/config"
	"github.com/ragbot/ragbot/internal/core"
	"github.com/ragbot/ragbot/internal/store"
	"github.com/ragbot/ragbot/internal/vector"
)

const usage = `Ingest documents into the chat knowledge base.

One of -path or -dir is required. Supported file types: .pdf, .txt, .md.

Re-ingesting a file with the same name always creates a NEW document;
there is no deduplication. Dedupe by file name before running if you
need exactly-once ingestion.

Exit status is non-zero if any file failed, unless -best-effort is set,
in which case partial success exits zero as long as at least one file
was ingested.
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage+"\n")
		flag.PrintDefaults()
	}

	pathFlag := flag.String("path", "", "Path to a single file to ingest")
	dirFlag := flag.String("dir", "", "Path to a folder of files to ingest")
	bestEffort := flag.Bool("best-effort", false, "Exit zero on partial success")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if (*pathFlag == "") == (*dirFlag == "") {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadConfig()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if *verbose {
		config.AppConfig.LogLevel = "DEBUG"
	}

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	ctx := context.Background()

	llmService, err := core.NewLLMService(ctx, config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// The server rebuilds its index from the database at startup, so
	// ingestion only needs a throwaway index for dimension checks.
	ingestService, err := core.NewIngestService(core.IngestConfig{
		ChunkSize:    config.AppConfig.ChunkSize,
		ChunkOverlap: config.AppConfig.ChunkOverlap,
		BatchSize:    config.AppConfig.EmbedBatchSize,
	}, dbStore, llmService, vector.NewMemoryIndex())
	if err != nil {
		log.Fatalf("Invalid ingestion configuration: %v", err)
	}

	start := time.Now()
	var results []core.IngestResult

	if *pathFlag != "" {
		res, err := ingestService.IngestFile(ctx, *pathFlag)
		if err != nil && !errors.Is(err, core.ErrExtractionFailure) {
			log.Printf("Ingestion failed: %v", err)
		}
		results = append(results, *res)
	} else {
		results, err = ingestService.IngestDir(ctx, *dirFlag)
		if err != nil {
			log.Fatalf("Failed to read directory: %v", err)
		}
	}

	succeeded, failed := 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("FAIL  %s: %v\n", res.Path, res.Err)
		} else {
			succeeded++
			fmt.Printf("OK    %s: document %s, %d chunks\n", res.Path, res.DocumentID, res.Chunks)
		}
	}
	fmt.Printf("\nIngested %d/%d files in %.2fs\n", succeeded, len(results), time.Since(start).Seconds())

	if failed > 0 && !(*bestEffort && succeeded > 0) {
		os.Exit(1)
	}
}
