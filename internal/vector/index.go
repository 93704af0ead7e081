// Package vector provides similarity search over chunk embeddings.
package vector

// Entry is a (chunk id, embedding) pair to be indexed. Entries must be
// inserted in chunk creation order; that order breaks similarity ties.
type Entry struct {
	ChunkID string
	Vector  []float32
}

// Hit is a single similarity search result.
type Hit struct {
	ChunkID    string
	Similarity float32
}

// Index persists chunk vectors and answers top-k queries by cosine
// similarity. Insertion is append-only; a changed embedding requires
// delete and reinsert, which no caller currently needs.
type Index interface {
	// Insert appends entries to the index. All vectors must share the
	// dimensionality fixed by the first inserted entry.
	Insert(entries []Entry) error

	// Search returns up to k chunks ranked by cosine similarity to the
	// query vector, highest first, ties broken by insertion order.
	Search(query []float32, k int) ([]Hit, error)

	// Len reports the number of indexed chunks.
	Len() int
}
