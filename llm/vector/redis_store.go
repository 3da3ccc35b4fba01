package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"lexrag/llm"
)

const (
	// HNSW build parameters for the RediSearch index.
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in the Redis hash.
	fieldContent    = "content"
	fieldVector     = "vector"
	fieldSource     = "source"
	fieldDocType    = "doc_type"
	fieldChunkIndex = "chunk_index"

	// scoreAlias names the KNN distance in query results.
	scoreAlias = "score"
)

// RedisStore is the remote managed backend: RediSearch HNSW vector
// indexes over hashes, one index per namespace, cosine metric.
type RedisStore struct {
	client *redis.Client
	config StoreConfig

	mu      sync.Mutex
	indexed map[string]bool // namespaces whose index exists
}

// RedisConfig holds the Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore connects to Redis and returns a namespaced vector
// store. Indexes are created lazily, on first upsert into a
// namespace.
func NewRedisStore(ctx context.Context, rcfg RedisConfig, cfg StoreConfig) (*RedisStore, error) {
	if rcfg.Addr == "" {
		rcfg.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
		PoolSize: rcfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &llm.StoreError{Op: "connect", Err: fmt.Errorf("connecting to redis at %s: %w", rcfg.Addr, err)}
	}

	return &RedisStore{
		client:  client,
		config:  cfg,
		indexed: make(map[string]bool),
	}, nil
}

// indexName returns the per-namespace index name.
func (s *RedisStore) indexName(namespace string) string {
	return s.config.IndexName + "-" + namespace
}

// keyPrefix returns the per-namespace key prefix.
func (s *RedisStore) keyPrefix(namespace string) string {
	return "vec:" + namespace + ":"
}

// ensureIndex creates the namespace's HNSW index if it does not exist.
func (s *RedisStore) ensureIndex(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexed[namespace] {
		return nil
	}

	indexName := s.indexName(namespace)
	if _, err := s.client.Do(ctx, "FT.INFO", indexName).Result(); err == nil {
		s.indexed[namespace] = true
		return nil
	}

	_, err := s.client.Do(ctx, "FT.CREATE", indexName,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix(namespace),
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.config.Dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldContent, "TEXT",
		fieldSource, "TAG",
		fieldDocType, "TAG",
		fieldChunkIndex, "NUMERIC",
	).Result()
	if err != nil {
		return fmt.Errorf("creating index %s: %w", indexName, err)
	}

	s.indexed[namespace] = true
	return nil
}

// Upsert inserts or replaces records. Keys are derived from record
// ids, so re-ingesting the same chunks overwrites in place.
func (s *RedisStore) Upsert(ctx context.Context, namespace string, records []llm.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.config.validateRecords(records); err != nil {
		return err
	}

	return withRetry(ctx, "upsert", func() error {
		if err := s.ensureIndex(ctx, namespace); err != nil {
			return err
		}

		pipe := s.client.Pipeline()
		prefix := s.keyPrefix(namespace)
		for _, rec := range records {
			pipe.HSet(ctx, prefix+rec.ID,
				fieldContent, rec.Metadata.ChunkText,
				fieldVector, float32SliceToBytes(rec.Vector),
				fieldSource, escapeTag(rec.Metadata.SourcePath),
				fieldDocType, rec.Metadata.DocType,
				fieldChunkIndex, rec.Metadata.ChunkIndex,
			)
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("writing %d records: %w", len(records), err)
		}
		return nil
	})
}

// Query runs a KNN search in the namespace and returns passages by
// descending cosine similarity. An unknown namespace yields an empty
// result.
func (s *RedisStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]llm.RetrievedPassage, error) {
	if err := s.config.validateQuery(vector, topK); err != nil {
		return nil, err
	}

	var passages []llm.RetrievedPassage
	err := withRetry(ctx, "query", func() error {
		queryStr := fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", topK, fieldVector, scoreAlias)

		result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(namespace), queryStr,
			"PARAMS", "2", "query_vector", float32SliceToBytes(vector),
			"RETURN", "5", fieldContent, fieldSource, fieldDocType, fieldChunkIndex, scoreAlias,
			"SORTBY", scoreAlias,
			"LIMIT", "0", strconv.Itoa(topK),
			"DIALECT", "2",
		).Result()
		if err != nil {
			if isUnknownIndex(err) {
				passages = nil
				return nil
			}
			return fmt.Errorf("knn search: %w", err)
		}

		passages, err = s.parseSearchResults(namespace, result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return passages, nil
}

// parseSearchResults decodes the FT.SEARCH reply: a count followed by
// alternating document ids and field lists.
func (s *RedisStore) parseSearchResults(namespace string, result interface{}) ([]llm.RetrievedPassage, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected search result type %T", result)
	}
	if len(values) < 2 {
		return nil, nil
	}

	prefix := s.keyPrefix(namespace)
	var passages []llm.RetrievedPassage

	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		rec := llm.VectorRecord{ID: strings.TrimPrefix(key, prefix)}
		score := float32(0)

		for j := 0; j+1 < len(fields); j += 2 {
			name, ok := fields[j].(string)
			if !ok {
				continue
			}
			val, _ := fields[j+1].(string)

			switch name {
			case fieldContent:
				rec.Metadata.ChunkText = val
			case fieldSource:
				rec.Metadata.SourcePath = unescapeTag(val)
			case fieldDocType:
				rec.Metadata.DocType = val
			case fieldChunkIndex:
				if n, err := strconv.Atoi(val); err == nil {
					rec.Metadata.ChunkIndex = n
				}
			case scoreAlias:
				// RediSearch reports cosine distance; similarity is
				// its complement.
				if dist, err := strconv.ParseFloat(val, 32); err == nil {
					score = 1 - float32(dist)
				}
			}
		}

		passages = append(passages, llm.RetrievedPassage{Record: rec, Score: score})
	}

	return passages, nil
}

// Count returns the namespace's document count from FT.INFO.
func (s *RedisStore) Count(ctx context.Context, namespace string) (int64, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.indexName(namespace)).Result()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, nil
		}
		return 0, &llm.StoreError{Op: "count", Err: err}
	}

	values, ok := info.([]interface{})
	if !ok {
		return 0, &llm.StoreError{Op: "count", Err: fmt.Errorf("unexpected info format %T", info)}
	}

	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			switch v := values[i+1].(type) {
			case int64:
				return v, nil
			case string:
				n, _ := strconv.ParseInt(v, 10, 64)
				return n, nil
			}
		}
	}
	return 0, nil
}

// DeleteNamespace drops the namespace's index together with its
// documents.
func (s *RedisStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.client.Do(ctx, "FT.DROPINDEX", s.indexName(namespace), "DD").Result()
	if err != nil && !isUnknownIndex(err) {
		return &llm.StoreError{Op: "delete_namespace", Err: err}
	}

	s.mu.Lock()
	delete(s.indexed, namespace)
	s.mu.Unlock()
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// isUnknownIndex matches the RediSearch error for a missing index.
func isUnknownIndex(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index")
}

// escapeTag escapes separator characters in TAG field values.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, ",", "\\,")
	return strings.ReplaceAll(s, " ", "\\ ")
}

// unescapeTag reverses escapeTag.
func unescapeTag(s string) string {
	s = strings.ReplaceAll(s, "\\,", ",")
	return strings.ReplaceAll(s, "\\ ", " ")
}
