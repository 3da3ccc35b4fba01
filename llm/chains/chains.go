// Package chains implements the single-purpose LLM calls the query
// pipeline is built from: relevance grading, question rewriting,
// answer generation and groundedness checking. Each chain wraps a
// chat model behind a small method so the pipeline can swap in
// deterministic fakes.
package chains

import (
	"fmt"
	"strings"

	"lexrag/llm"
)

// formatPassages renders retrieved passages as a numbered block. The
// numbers are the ones the generator cites with [n].
func formatPassages(passages []llm.RetrievedPassage) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "DOCUMENTO [%d]: %s\n%s\n", i+1, p.Record.Metadata.SourcePath, p.Record.Metadata.ChunkText)
		b.WriteString(strings.Repeat("-", 50))
		b.WriteString("\n")
	}
	return b.String()
}

// parseBinaryScore interprets a grader reply as yes or no. Replies
// that start with neither are reported as an error so callers can
// apply their fail-safe default.
func parseBinaryScore(content string) (bool, error) {
	reply := strings.ToLower(strings.TrimSpace(content))
	reply = strings.Trim(reply, `"'.!`)

	switch {
	case strings.HasPrefix(reply, "yes"), strings.HasPrefix(reply, "sí"), strings.HasPrefix(reply, "si"):
		return true, nil
	case strings.HasPrefix(reply, "no"):
		return false, nil
	}
	return false, fmt.Errorf("unparseable grader reply %q", content)
}
