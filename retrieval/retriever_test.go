package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexrag/llm"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeStore struct {
	passages  []llm.RetrievedPassage
	err       error
	namespace string
	topK      int
}

func (f *fakeStore) Upsert(ctx context.Context, namespace string, records []llm.VectorRecord) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]llm.RetrievedPassage, error) {
	f.namespace = namespace
	f.topK = topK
	return f.passages, f.err
}

func (f *fakeStore) Count(ctx context.Context, namespace string) (int64, error) { return 0, nil }
func (f *fakeStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func TestRetrieveOrdersByScore(t *testing.T) {
	store := &fakeStore{passages: []llm.RetrievedPassage{
		{Record: llm.VectorRecord{ID: "b"}, Score: 0.4},
		{Record: llm.VectorRecord{ID: "a"}, Score: 0.9},
		{Record: llm.VectorRecord{ID: "c"}, Score: 0.4},
	}}
	r := New(&fakeEmbedder{vec: []float32{1, 0}}, store, 5)

	passages, err := r.Retrieve(context.Background(), "renta", "¿Cuál es la tarifa?")
	require.NoError(t, err)
	require.Len(t, passages, 3)

	assert.Equal(t, "a", passages[0].Record.ID)
	// Equal scores keep their store order.
	assert.Equal(t, "b", passages[1].Record.ID)
	assert.Equal(t, "c", passages[2].Record.ID)

	assert.Equal(t, "renta", store.namespace)
	assert.Equal(t, 5, store.topK)
}

func TestRetrieveEmptyNamespace(t *testing.T) {
	r := New(&fakeEmbedder{vec: []float32{1, 0}}, &fakeStore{}, 5)

	passages, err := r.Retrieve(context.Background(), "dian-varios", "pregunta")
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrievePropagatesEmbeddingError(t *testing.T) {
	r := New(&fakeEmbedder{err: &llm.EmbeddingError{Attempts: 5, Err: errors.New("rate limited")}}, &fakeStore{}, 5)

	_, err := r.Retrieve(context.Background(), "renta", "pregunta")
	require.Error(t, err)

	var eerr *llm.EmbeddingError
	assert.True(t, errors.As(err, &eerr))
}

func TestRetrievePropagatesStoreError(t *testing.T) {
	store := &fakeStore{err: &llm.StoreError{Op: "query", Err: errors.New("connection refused")}}
	r := New(&fakeEmbedder{vec: []float32{1, 0}}, store, 5)

	_, err := r.Retrieve(context.Background(), "renta", "pregunta")
	require.Error(t, err)

	var serr *llm.StoreError
	assert.True(t, errors.As(err, &serr))
}
