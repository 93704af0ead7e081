package vector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ragbot/ragbot/internal/utils"
)

// MemoryIndex is an exact brute-force cosine index held in memory.
// Reads are safe while ingestion appends; both sides go through the mutex.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (ix *MemoryIndex) Insert(entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("chunk %s has no embedding", e.ChunkID)
		}
		if ix.dimension == 0 {
			ix.dimension = len(e.Vector)
		}
		if len(e.Vector) != ix.dimension {
			return fmt.Errorf("chunk %s has dimension %d, index expects %d", e.ChunkID, len(e.Vector), ix.dimension)
		}
	}

	ix.entries = append(ix.entries, entries...)
	return nil
}

func (ix *MemoryIndex) Search(query []float32, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if ix.dimension != 0 && len(query) != ix.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), ix.dimension)
	}

	type scored struct {
		pos int
		hit Hit
	}

	results := make([]scored, 0, len(ix.entries))
	for i, e := range ix.entries {
		similarity, err := utils.CosineSimilarity(query, e.Vector)
		if err != nil {
			return nil, fmt.Errorf("scoring chunk %s: %w", e.ChunkID, err)
		}
		results = append(results, scored{pos: i, hit: Hit{ChunkID: e.ChunkID, Similarity: similarity}})
	}

	// Highest similarity first; earlier insertion wins ties.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].hit.Similarity != results[j].hit.Similarity {
			return results[i].hit.Similarity > results[j].hit.Similarity
		}
		return results[i].pos < results[j].pos
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = results[i].hit
	}
	return hits, nil
}

func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
