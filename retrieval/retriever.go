// Package retrieval turns a question into ranked passages from one
// knowledge base namespace.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/phuslu/log"

	"lexrag/llm"
	"lexrag/llm/vector"
)

// Embedder is the single-text embedding capability the retriever
// needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a question and runs a similarity search against
// the vector store.
type Retriever struct {
	embedder Embedder
	store    vector.Store
	topK     int
}

// New creates a retriever returning at most topK passages per query.
func New(embedder Embedder, store vector.Store, topK int) *Retriever {
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns the passages most similar to the question within
// the namespace, ordered by descending score. An empty namespace
// yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, namespace, question string) ([]llm.RetrievedPassage, error) {
	queryVec, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	passages, err := r.store.Query(ctx, namespace, queryVec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching namespace %s: %w", namespace, err)
	}

	// Both backends return ranked results; normalizing here keeps the
	// ordering contract independent of the backend.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})

	log.Debug().Str("namespace", namespace).Int("passages", len(passages)).Msg("retrieval complete")
	return passages, nil
}
