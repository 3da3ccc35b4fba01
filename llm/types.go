package llm

// Document represents a raw source document before chunking. It only
// lives for the duration of ingestion; once chunked, the chunks carry
// everything downstream stages need.
type Document struct {
	ID         string
	SourcePath string
	Title      string
	DocType    string
	Text       string
	Metadata   map[string]string
}

// Chunk is a bounded contiguous span of a document's text, the unit of
// embedding and retrieval. Start and End are rune offsets into the
// source text.
type Chunk struct {
	ID         string
	DocumentID string
	SourcePath string
	DocType    string
	Text       string
	Start      int
	End        int
	Index      int
}

// EmbeddingVector pairs a chunk with its embedding. The vector
// dimension must match the vector store's configured dimension.
type EmbeddingVector struct {
	ChunkID string
	Vector  []float32
	ModelID string
}

// VectorRecord is the persisted form of an embedded chunk. Records are
// keyed by chunk id, so upserting the same chunk replaces the previous
// record instead of appending.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// RecordMetadata is the payload stored alongside a vector.
type RecordMetadata struct {
	SourcePath string
	DocType    string
	ChunkIndex int
	ChunkText  string
}

// RetrievedPassage is a vector record with its similarity score for
// one query. Ephemeral, produced per retrieval.
type RetrievedPassage struct {
	Record VectorRecord
	Score  float32
}

// Citation references a retrieved passage used by a generated answer.
type Citation struct {
	ChunkID    string
	SourcePath string
	ChunkIndex int
	Excerpt    string
}

// Answer is the result of the generation stage. Verified is only set
// after the groundedness checker accepted the answer; Insufficient
// marks an explicit refusal because no relevant context was available.
type Answer struct {
	Text         string
	Citations    []Citation
	Verified     bool
	Insufficient bool
}

// Verdict is the closed set of outcomes the groundedness checker can
// produce. The orchestrator must be correct for any sequence of these.
type Verdict int

const (
	// VerdictGrounded means every claim is supported by the passages
	// and the answer addresses the question.
	VerdictGrounded Verdict = iota
	// VerdictHallucinated means at least one claim is not supported by
	// the cited passages.
	VerdictHallucinated
	// VerdictNotUseful means the answer is grounded but does not
	// actually address the question.
	VerdictNotUseful
)

// String returns a human-readable verdict label.
func (v Verdict) String() string {
	switch v {
	case VerdictGrounded:
		return "grounded"
	case VerdictHallucinated:
		return "hallucinated"
	case VerdictNotUseful:
		return "not_useful"
	default:
		return "unknown"
	}
}
