package llm

import "fmt"

// ConfigError reports an invalid configuration value. It is fatal and
// surfaced before any ingestion or query run starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// EmbeddingError reports an embedding provider failure after the
// backoff budget was exhausted. It is fatal to the current ingestion
// batch or query; earlier batches stay committed, so ingestion can be
// re-run and resumes idempotently.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError reports a vector store upsert/query failure that survived
// one retry with backoff.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
