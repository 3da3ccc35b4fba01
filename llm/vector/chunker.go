package vector

import (
	"fmt"
	"unicode"

	"lexrag/llm"
)

// ChunkConfig configures how document text is split into chunks.
// Sizes are in runes.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkConfig returns the chunking parameters the corpus was
// originally ingested with.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

func (c ChunkConfig) validate() error {
	if c.ChunkSize <= 0 {
		return &llm.ConfigError{Field: "ChunkSize", Reason: "must be positive"}
	}
	if c.ChunkOverlap < 0 {
		return &llm.ConfigError{Field: "ChunkOverlap", Reason: "must not be negative"}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &llm.ConfigError{
			Field:  "ChunkOverlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize),
		}
	}
	return nil
}

// ChunkDocument splits a document into chunks and stamps each chunk
// with the document's identity.
func ChunkDocument(doc llm.Document, cfg ChunkConfig) ([]llm.Chunk, error) {
	chunks, err := ChunkText(doc.Text, cfg)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].SourcePath = doc.SourcePath
		chunks[i].DocType = doc.DocType
	}
	return chunks, nil
}

// ChunkText splits text into overlapping chunks of at most
// cfg.ChunkSize runes. Cuts prefer paragraph boundaries, then sentence
// ends, then word boundaries, and fall back to a hard cut so the size
// bound always holds.
//
// Invariants: the chunk spans cover the whole text, each chunk shares
// exactly the trailing cfg.ChunkOverlap runes (or fewer, for a short
// predecessor) with the prefix of the next chunk, and chunk offsets
// are rune indexes into the original text.
func ChunkText(text string, cfg ChunkConfig) ([]llm.Chunk, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	var chunks []llm.Chunk

	start := 0
	for start < len(runes) {
		end := start + cfg.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := cutPoint(runes[start:end], cfg.ChunkSize/2); cut > 0 {
			end = start + cut
		}

		chunks = append(chunks, llm.Chunk{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
			Index: len(chunks),
		})

		if end == len(runes) {
			break
		}

		next := end - cfg.ChunkOverlap
		if next <= start {
			// Degenerate overlap on a very short chunk; force progress.
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// cutPoint returns the rune index within window where the chunk should
// end, or 0 when no acceptable boundary exists and the hard cut at the
// window end should be used. minCut rejects boundaries that would make
// the chunk degenerately small.
func cutPoint(window []rune, minCut int) int {
	// Paragraph boundary: cut right after the blank line.
	for i := len(window) - 2; i >= minCut; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i + 2
		}
	}

	// Sentence end followed by whitespace (or the window edge).
	for i := len(window) - 1; i >= minCut; i-- {
		if !isSentenceEnd(window[i]) {
			continue
		}
		if i+1 == len(window) || unicode.IsSpace(window[i+1]) {
			return i + 1
		}
	}

	// Word boundary.
	for i := len(window) - 1; i >= minCut; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}

	return 0
}

// isSentenceEnd reports whether a rune terminates a sentence.
func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}
