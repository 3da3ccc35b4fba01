package vector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"lexrag/llm"
)

const (
	// defaultMaxBatch matches the batch size the corpus was originally
	// embedded with.
	defaultMaxBatch = 100
	// defaultMaxAttempts bounds rate-limit retries per batch.
	defaultMaxAttempts = 5

	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// EmbeddingService wraps an embedding model with batching, pacing and
// rate-limit backoff. A batch either yields a vector per input text or
// fails as a whole; no partial batches are ever returned.
type EmbeddingService struct {
	embedder    embedding.Embedder
	modelID     string
	dim         int
	maxBatch    int
	maxAttempts int
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
}

// EmbeddingOption customises an EmbeddingService.
type EmbeddingOption func(*EmbeddingService)

// WithMaxBatch overrides the provider batch ceiling.
func WithMaxBatch(n int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithMaxAttempts overrides the rate-limit retry bound.
func WithMaxAttempts(n int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithPacing overrides the minimum interval between provider calls.
// Zero disables pacing.
func WithPacing(interval time.Duration) EmbeddingOption {
	return func(s *EmbeddingService) {
		if interval <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// withSleep replaces the backoff sleeper, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) EmbeddingOption {
	return func(s *EmbeddingService) { s.sleep = fn }
}

// NewEmbeddingService creates a new embedding service. dim is the
// expected vector dimension; any vector of a different dimension is a
// fatal embedding error.
func NewEmbeddingService(embedder embedding.Embedder, modelID string, dim int, opts ...EmbeddingOption) *EmbeddingService {
	s := &EmbeddingService{
		embedder:    embedder,
		modelID:     modelID,
		dim:         dim,
		maxBatch:    defaultMaxBatch,
		maxAttempts: defaultMaxAttempts,
		// The original pipeline paused 500ms between embedding batches
		// to stay under the provider rate limit.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension returns the configured embedding dimension.
func (s *EmbeddingService) Dimension() int { return s.dim }

// ModelID returns the embedding model identifier.
func (s *EmbeddingService) ModelID() string { return s.modelID }

// EmbedOne generates an embedding vector for a single text.
func (s *EmbeddingService) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	vectors, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates embedding vectors for texts, preserving order
// 1:1 with the input. Empty input yields empty output without a
// provider call. Rate-limited calls are retried with exponential
// backoff up to the attempt bound, then fail with *llm.EmbeddingError.
func (s *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, 0, len(texts))
	for off := 0; off < len(texts); off += s.maxBatch {
		hi := off + s.maxBatch
		if hi > len(texts) {
			hi = len(texts)
		}

		vectors, err := s.embedBatch(ctx, texts[off:hi])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

// EmbedChunks embeds the chunk texts and pairs each vector with its
// chunk id.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []llm.Chunk) ([]llm.EmbeddingVector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]llm.EmbeddingVector, len(chunks))
	for i, vec := range vectors {
		out[i] = llm.EmbeddingVector{
			ChunkID: chunks[i].ID,
			Vector:  vec,
			ModelID: s.modelID,
		}
	}
	return out, nil
}

// embedBatch performs one provider call of at most maxBatch texts,
// retrying rate-limit failures with exponential backoff.
func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &llm.EmbeddingError{Attempts: attempt, Err: err}
		}

		vectors, err := s.embedder.EmbedStrings(ctx, texts)
		if err == nil {
			return s.convert(texts, vectors, attempt)
		}
		lastErr = err

		if !isRateLimited(err) {
			return nil, &llm.EmbeddingError{Attempts: attempt, Err: err}
		}

		delay := backoffBase << (attempt - 1)
		if delay > backoffCap {
			delay = backoffCap
		}
		log.Warn().Int("attempt", attempt).Dur("backoff", delay).Err(err).
			Msg("embedding rate limited, backing off")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, &llm.EmbeddingError{Attempts: attempt, Err: err}
		}
	}

	return nil, &llm.EmbeddingError{Attempts: s.maxAttempts, Err: lastErr}
}

// convert checks the provider response shape and converts it to
// float32 vectors.
func (s *EmbeddingService) convert(texts []string, vectors [][]float64, attempt int) ([][]float32, error) {
	if len(vectors) != len(texts) {
		return nil, &llm.EmbeddingError{
			Attempts: attempt,
			Err:      fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)),
		}
	}

	out := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, &llm.EmbeddingError{
				Attempts: attempt,
				Err:      fmt.Errorf("vector %d has dimension %d, store expects %d", i, len(vec), s.dim),
			}
		}
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}

// isRateLimited reports whether a provider error looks like a rate
// limit signal.
func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
