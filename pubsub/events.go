// Package pubsub provides an in-memory publish/subscribe broker used
// to stream ingestion progress to interested listeners.
package pubsub

import "context"

const (
	// FileParsedEvent fires after a source file is parsed and chunked.
	FileParsedEvent EventType = "file_parsed"
	// BatchEmbeddedEvent fires after a chunk batch is embedded and stored.
	BatchEmbeddedEvent EventType = "batch_embedded"
	// FileFailedEvent fires when a source file cannot be processed.
	FileFailedEvent EventType = "file_failed"
	// IngestFinishedEvent fires once at the end of an ingestion run.
	IngestFinishedEvent EventType = "ingest_finished"
)

type (
	// EventType identifies the kind of event.
	EventType string

	// Event carries one typed payload to subscribers.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher publishes events to all subscribers.
	Publisher[T any] interface {
		Publish(EventType, T)
	}

	// Subscriber returns a read-only event channel that closes
	// automatically when the context ends.
	Subscriber[T any] interface {
		Subscribe(context.Context) <-chan Event[T]
	}
)

// IngestProgress is the payload published during an ingestion run.
type IngestProgress struct {
	Namespace string
	Path      string
	Chunks    int
	Err       string
}
