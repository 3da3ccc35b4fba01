// Package ingest walks a document tree and loads it into a knowledge
// base namespace: parse, chunk, embed, upsert.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"lexrag/llm"
	"lexrag/llm/parser"
	"lexrag/llm/vector"
	"lexrag/pubsub"
)

// Embedder is the chunk-embedding capability the pipeline needs.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []llm.Chunk) ([]llm.EmbeddingVector, error)
}

// Summary reports what an ingestion run did.
type Summary struct {
	Namespace   string
	Files       int
	FilesFailed int
	Chunks      int
	Records     int
}

// Config tunes an ingestion pipeline.
type Config struct {
	ChunkConfig vector.ChunkConfig
	BatchSize   int
	Workers     int
}

// Pipeline ingests documents into one namespace at a time. Parsing
// and chunking run sequentially; embedding and storing run on a
// bounded worker pool over chunk batches.
type Pipeline struct {
	registry *parser.Registry
	embedder Embedder
	store    vector.Store
	events   pubsub.Publisher[pubsub.IngestProgress]
	config   Config
}

// New creates a pipeline. events may be nil when nobody listens.
func New(registry *parser.Registry, embedder Embedder, store vector.Store, events pubsub.Publisher[pubsub.IngestProgress], cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Pipeline{
		registry: registry,
		embedder: embedder,
		store:    store,
		events:   events,
		config:   cfg,
	}
}

// Run ingests every supported file under dir into the namespace.
// Chunk ids derive from the file's path relative to dir and the chunk
// index, so re-running over the same tree overwrites records in place
// instead of duplicating them. Files that fail to parse are skipped
// and counted; embedding or store failures abort the run.
func (p *Pipeline) Run(ctx context.Context, namespace, dir string) (*Summary, error) {
	summary := &Summary{Namespace: namespace}

	paths, err := p.collectFiles(dir)
	if err != nil {
		return nil, err
	}

	var chunks []llm.Chunk
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		fileChunks, err := p.processFile(ctx, dir, path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping file")
			summary.FilesFailed++
			p.publish(pubsub.FileFailedEvent, pubsub.IngestProgress{Namespace: namespace, Path: path, Err: err.Error()})
			continue
		}

		summary.Files++
		summary.Chunks += len(fileChunks)
		chunks = append(chunks, fileChunks...)
		p.publish(pubsub.FileParsedEvent, pubsub.IngestProgress{Namespace: namespace, Path: path, Chunks: len(fileChunks)})
	}

	stored, err := p.embedAndStore(ctx, namespace, chunks)
	summary.Records = stored
	if err != nil {
		return summary, err
	}

	p.publish(pubsub.IngestFinishedEvent, pubsub.IngestProgress{Namespace: namespace, Chunks: summary.Chunks})
	log.Info().Str("namespace", namespace).Int("files", summary.Files).
		Int("failed", summary.FilesFailed).Int("chunks", summary.Chunks).Msg("ingestion complete")
	return summary, nil
}

// collectFiles gathers supported files under dir in a stable order.
func (p *Pipeline) collectFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && p.registry.Supports(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// processFile parses one file and chunks it with deterministic ids.
func (p *Pipeline) processFile(ctx context.Context, dir, path string) ([]llm.Chunk, error) {
	doc, err := p.registry.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}
	sourcePath := filepath.ToSlash(rel)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	document := llm.Document{
		ID:         hashID(sourcePath),
		SourcePath: sourcePath,
		DocType:    string(parser.FileTypeFromExt(ext)),
		Text:       doc.Content,
	}

	chunks, err := vector.ChunkDocument(document, p.config.ChunkConfig)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].ID = hashID(sourcePath + ":" + fmt.Sprint(chunks[i].Index))
	}
	return chunks, nil
}

// embedAndStore runs chunk batches through the embedder and store on
// a bounded worker pool. The first failure cancels remaining work.
func (p *Pipeline) embedAndStore(ctx context.Context, namespace string, chunks []llm.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []llm.Chunk)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		stored   int
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				n, err := p.storeBatch(ctx, namespace, batch)
				if err != nil {
					fail(err)
					return
				}
				mu.Lock()
				stored += n
				mu.Unlock()
				p.publish(pubsub.BatchEmbeddedEvent, pubsub.IngestProgress{Namespace: namespace, Chunks: n})
			}
		}()
	}

feed:
	for off := 0; off < len(chunks); off += p.config.BatchSize {
		hi := off + p.config.BatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		select {
		case batches <- chunks[off:hi]:
		case <-ctx.Done():
			break feed
		}
	}
	close(batches)
	wg.Wait()

	if firstErr != nil {
		return stored, firstErr
	}
	if err := ctx.Err(); err != nil {
		return stored, err
	}
	return stored, nil
}

// storeBatch embeds one batch and upserts its records.
func (p *Pipeline) storeBatch(ctx context.Context, namespace string, batch []llm.Chunk) (int, error) {
	vectors, err := p.embedder.EmbedChunks(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("embedding batch of %d chunks: %w", len(batch), err)
	}

	records := make([]llm.VectorRecord, len(batch))
	for i, c := range batch {
		records[i] = llm.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i].Vector,
			Metadata: llm.RecordMetadata{
				SourcePath: c.SourcePath,
				DocType:    c.DocType,
				ChunkIndex: c.Index,
				ChunkText:  c.Text,
			},
		}
	}

	if err := p.store.Upsert(ctx, namespace, records); err != nil {
		return 0, fmt.Errorf("storing batch of %d records: %w", len(records), err)
	}
	return len(records), nil
}

func (p *Pipeline) publish(t pubsub.EventType, progress pubsub.IngestProgress) {
	if p.events != nil {
		p.events.Publish(t, progress)
	}
}

// hashID derives a stable 32-character id from its input.
func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}
