package vector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"lexrag/llm"
)

// vectorsSchema stores one row per record with the vector as a
// little-endian float32 blob. Similarity search is a brute-force scan,
// which is adequate for corpora in the tens of thousands of chunks.
const vectorsSchema = `
CREATE TABLE IF NOT EXISTS vector_records (
	namespace   TEXT NOT NULL,
	id          TEXT NOT NULL,
	vector      BLOB NOT NULL,
	source_path TEXT NOT NULL DEFAULT '',
	doc_type    TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	chunk_text  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (namespace, id)
);
CREATE INDEX IF NOT EXISTS idx_vector_records_namespace ON vector_records(namespace);
`

// SQLiteStore is the local embedded backend: a single database file
// under the data directory, no server required.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	config StoreConfig
}

// NewSQLiteStore opens (or creates) the vector database at
// dataDir/vectors.db. If dataDir is empty, defaults to
// ~/.lexrag/data.
func NewSQLiteStore(dataDir string, cfg StoreConfig) (*SQLiteStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &llm.StoreError{Op: "open", Err: fmt.Errorf("getting home directory: %w", err)}
		}
		dataDir = filepath.Join(home, ".lexrag", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, &llm.StoreError{Op: "open", Err: fmt.Errorf("creating data directory: %w", err)}
	}

	dbPath := filepath.Join(dataDir, "vectors.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &llm.StoreError{Op: "open", Err: fmt.Errorf("opening database: %w", err)}
	}

	if _, err := db.Exec(vectorsSchema); err != nil {
		db.Close()
		return nil, &llm.StoreError{Op: "open", Err: fmt.Errorf("creating schema: %w", err)}
	}

	return &SQLiteStore{db: db, path: dbPath, config: cfg}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Upsert inserts or replaces records inside a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, namespace string, records []llm.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.config.validateRecords(records); err != nil {
		return err
	}

	return withRetry(ctx, "upsert", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vector_records (namespace, id, vector, source_path, doc_type, chunk_index, chunk_text)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(namespace, id) DO UPDATE SET
				vector = excluded.vector,
				source_path = excluded.source_path,
				doc_type = excluded.doc_type,
				chunk_index = excluded.chunk_index,
				chunk_text = excluded.chunk_text`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			_, err := stmt.ExecContext(ctx, namespace, rec.ID,
				float32SliceToBytes(rec.Vector),
				rec.Metadata.SourcePath, rec.Metadata.DocType,
				rec.Metadata.ChunkIndex, rec.Metadata.ChunkText)
			if err != nil {
				return fmt.Errorf("upserting record %s: %w", rec.ID, err)
			}
		}

		return tx.Commit()
	})
}

// Query scans the namespace, scores every record by cosine similarity
// and returns the topK best, ordered by descending score. Insertion
// order breaks score ties, which keeps results stable across runs.
func (s *SQLiteStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]llm.RetrievedPassage, error) {
	if err := s.config.validateQuery(vector, topK); err != nil {
		return nil, err
	}

	var passages []llm.RetrievedPassage
	err := withRetry(ctx, "query", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, vector, source_path, doc_type, chunk_index, chunk_text
			FROM vector_records WHERE namespace = ? ORDER BY rowid`, namespace)
		if err != nil {
			return fmt.Errorf("scanning namespace %s: %w", namespace, err)
		}
		defer rows.Close()

		passages = passages[:0]
		for rows.Next() {
			var rec llm.VectorRecord
			var blob []byte
			if err := rows.Scan(&rec.ID, &blob, &rec.Metadata.SourcePath,
				&rec.Metadata.DocType, &rec.Metadata.ChunkIndex, &rec.Metadata.ChunkText); err != nil {
				return fmt.Errorf("scanning record: %w", err)
			}

			stored := bytesToFloat32Slice(blob)
			passages = append(passages, llm.RetrievedPassage{
				Record: rec,
				Score:  cosineSimilarity(vector, stored),
			})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating records: %w", err)
		}

		sort.SliceStable(passages, func(i, j int) bool {
			return passages[i].Score > passages[j].Score
		})
		if len(passages) > topK {
			passages = passages[:topK]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return passages, nil
}

// Count returns the number of records in the namespace.
func (s *SQLiteStore) Count(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_records WHERE namespace = ?`, namespace).Scan(&count)
	if err != nil {
		return 0, &llm.StoreError{Op: "count", Err: err}
	}
	return count, nil
}

// DeleteNamespace removes every record in the namespace.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_records WHERE namespace = ?`, namespace)
	if err != nil {
		return &llm.StoreError{Op: "delete_namespace", Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
