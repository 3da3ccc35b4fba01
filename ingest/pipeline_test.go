package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexrag/llm"
	"lexrag/llm/parser"
	"lexrag/llm/vector"
	"lexrag/pubsub"
)

const testDim = 8

// hashEmbedder derives a deterministic vector from each chunk text.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *hashEmbedder) EmbedChunks(ctx context.Context, chunks []llm.Chunk) ([]llm.EmbeddingVector, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}

	out := make([]llm.EmbeddingVector, len(chunks))
	for i, c := range chunks {
		vec := make([]float32, testDim)
		for j, r := range c.Text {
			vec[j%testDim] += float32(r % 13)
		}
		out[i] = llm.EmbeddingVector{ChunkID: c.ID, Vector: vec, ModelID: "test-model"}
	}
	return out, nil
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"estatuto.txt":      strings.Repeat("La tarifa general del impuesto sobre la renta es del 35 por ciento. ", 30),
		"conceptos/dian.md": "# Concepto 915\n\n" + strings.Repeat("La retención en la fuente es un mecanismo de recaudo anticipado. ", 25),
		"resolucion.html":   "<html><head><title>Resolución</title></head><body><p>" + strings.Repeat("Calendario tributario para grandes contribuyentes. ", 20) + "</p></body></html>",
		"escaneo.bin":       "binary noise",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	return dir
}

func newTestPipeline(t *testing.T, embedder Embedder) (*Pipeline, vector.Store) {
	t.Helper()
	store, err := vector.NewSQLiteStore(t.TempDir(), vector.StoreConfig{Dim: testDim, IndexName: "test", MaxTopK: 100})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p := New(parser.DefaultRegistry(), embedder, store, nil, Config{
		ChunkConfig: vector.ChunkConfig{ChunkSize: 200, ChunkOverlap: 40},
		BatchSize:   5,
		Workers:     2,
	})
	return p, store
}

func TestRunIngestsSupportedFiles(t *testing.T) {
	dir := writeCorpus(t)
	p, store := newTestPipeline(t, &hashEmbedder{})

	summary, err := p.Run(context.Background(), "renta", dir)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Files, "unsupported files are not counted as failures")
	assert.Zero(t, summary.FilesFailed)
	assert.Greater(t, summary.Chunks, 3)
	assert.Equal(t, summary.Chunks, summary.Records)

	count, err := store.Count(context.Background(), "renta")
	require.NoError(t, err)
	assert.Equal(t, int64(summary.Records), count)
}

func TestRunIsIdempotent(t *testing.T) {
	dir := writeCorpus(t)
	p, store := newTestPipeline(t, &hashEmbedder{})
	ctx := context.Background()

	first, err := p.Run(ctx, "renta", dir)
	require.NoError(t, err)

	second, err := p.Run(ctx, "renta", dir)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, second.Chunks)

	count, err := store.Count(ctx, "renta")
	require.NoError(t, err)
	assert.Equal(t, int64(first.Records), count, "re-ingestion must not duplicate records")
}

func TestRunStoredChunksAreRetrievable(t *testing.T) {
	dir := writeCorpus(t)
	embedder := &hashEmbedder{}
	p, store := newTestPipeline(t, embedder)
	ctx := context.Background()

	_, err := p.Run(ctx, "renta", dir)
	require.NoError(t, err)

	// Query with the embedding of a stored chunk text: it must come
	// back as the closest match with its metadata intact.
	chunks, err := vector.ChunkText(strings.Repeat("La tarifa general del impuesto sobre la renta es del 35 por ciento. ", 30),
		vector.ChunkConfig{ChunkSize: 200, ChunkOverlap: 40})
	require.NoError(t, err)

	vectors, err := embedder.EmbedChunks(ctx, []llm.Chunk{{ID: "probe", Text: chunks[0].Text}})
	require.NoError(t, err)

	passages, err := store.Query(ctx, "renta", vectors[0].Vector, 3)
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	top := passages[0]
	assert.InDelta(t, 1.0, float64(top.Score), 1e-5)
	assert.Equal(t, "estatuto.txt", top.Record.Metadata.SourcePath)
	assert.NotEmpty(t, top.Record.Metadata.ChunkText)
}

func TestRunPublishesProgressEvents(t *testing.T) {
	dir := writeCorpus(t)
	broker := pubsub.NewBroker[pubsub.IngestProgress]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	var (
		mu   sync.Mutex
		seen = map[pubsub.EventType]int{}
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		for event := range events {
			mu.Lock()
			seen[event.Type]++
			finished := event.Type == pubsub.IngestFinishedEvent
			mu.Unlock()
			if finished {
				return
			}
		}
	}()

	store, err := vector.NewSQLiteStore(t.TempDir(), vector.StoreConfig{Dim: testDim, IndexName: "test", MaxTopK: 100})
	require.NoError(t, err)
	defer store.Close()

	p := New(parser.DefaultRegistry(), &hashEmbedder{}, store, broker, Config{
		ChunkConfig: vector.ChunkConfig{ChunkSize: 200, ChunkOverlap: 40},
		BatchSize:   5,
		Workers:     2,
	})

	_, err = p.Run(context.Background(), "renta", dir)
	require.NoError(t, err)

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, seen[pubsub.FileParsedEvent])
	assert.Greater(t, seen[pubsub.BatchEmbeddedEvent], 0)
	assert.Equal(t, 1, seen[pubsub.IngestFinishedEvent])
}

func TestRunAbortsOnEmbeddingFailure(t *testing.T) {
	dir := writeCorpus(t)
	embedder := &hashEmbedder{err: &llm.EmbeddingError{Attempts: 5, Err: errors.New("rate limited")}}
	p, _ := newTestPipeline(t, embedder)

	_, err := p.Run(context.Background(), "renta", dir)
	require.Error(t, err)

	var eerr *llm.EmbeddingError
	assert.True(t, errors.As(err, &eerr))
}

func TestRunEmptyDirectory(t *testing.T) {
	p, _ := newTestPipeline(t, &hashEmbedder{})

	summary, err := p.Run(context.Background(), "renta", t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, summary.Files)
	assert.Zero(t, summary.Records)
}
