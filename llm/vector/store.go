package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"lexrag/llm"
)

// Store is the vector store capability. A namespace partitions one
// knowledge base from another; queries never cross namespaces.
// Upsert is idempotent on record id. Querying an empty or unknown
// namespace returns an empty result, not an error.
type Store interface {
	// Upsert inserts or replaces records in the namespace.
	Upsert(ctx context.Context, namespace string, records []llm.VectorRecord) error

	// Query returns the topK most similar records by cosine
	// similarity, ordered by descending score.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]llm.RetrievedPassage, error)

	// Count returns the number of records in the namespace.
	Count(ctx context.Context, namespace string) (int64, error)

	// DeleteNamespace removes every record in the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases connections and resources.
	Close() error
}

// StoreConfig holds configuration shared by store implementations.
type StoreConfig struct {
	// Dim is the vector dimension fixed at index creation; it must
	// match the embedder's output dimension.
	Dim int

	// IndexName is the base index name; namespaces derive their own
	// index/prefix from it.
	IndexName string

	// MaxTopK caps a single query.
	MaxTopK int
}

// DefaultStoreConfig returns the store defaults matching the embedding
// model the corpus was ingested with.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Dim:       3072,
		IndexName: "lexrag",
		MaxTopK:   100,
	}
}

// validateQuery enforces the shared query preconditions.
func (c StoreConfig) validateQuery(vector []float32, topK int) error {
	if topK <= 0 || topK > c.MaxTopK {
		return &llm.StoreError{Op: "query", Err: fmt.Errorf("top-k %d out of range [1,%d]", topK, c.MaxTopK)}
	}
	if len(vector) != c.Dim {
		return &llm.StoreError{Op: "query", Err: fmt.Errorf("query vector dimension %d, index expects %d", len(vector), c.Dim)}
	}
	return nil
}

// validateRecords enforces the shared upsert preconditions.
func (c StoreConfig) validateRecords(records []llm.VectorRecord) error {
	for _, r := range records {
		if r.ID == "" {
			return &llm.StoreError{Op: "upsert", Err: fmt.Errorf("record without id")}
		}
		if len(r.Vector) != c.Dim {
			return &llm.StoreError{Op: "upsert", Err: fmt.Errorf("record %s has dimension %d, index expects %d", r.ID, len(r.Vector), c.Dim)}
		}
	}
	return nil
}

// storeRetryDelay is the pause before the single retry a transient
// store failure gets.
const storeRetryDelay = 500 * time.Millisecond

// withRetry runs op and retries it once after a short backoff. The
// returned error is the last failure wrapped as *llm.StoreError.
func withRetry(ctx context.Context, opName string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return &llm.StoreError{Op: opName, Err: ctx.Err()}
	case <-time.After(storeRetryDelay):
	}

	if err = op(); err != nil {
		return &llm.StoreError{Op: opName, Err: err}
	}
	return nil
}

// float32SliceToBytes converts a vector to its little-endian float32
// byte representation, the layout both backends store.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a stored byte blob back to a vector.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// cosineSimilarity returns the cosine similarity of two vectors, 0
// when either has zero norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
