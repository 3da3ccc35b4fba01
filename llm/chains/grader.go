package chains

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"lexrag/llm"
)

const graderSystemPrompt = `You are a grader assessing the relevance of a retrieved document to a user question.
If the document contains keywords or semantic meaning related to the question, grade it as relevant.
Give a binary score 'yes' or 'no' to indicate whether the document is relevant to the question.
Answer with the single word 'yes' or 'no' and nothing else.`

// RelevanceGrader filters retrieved passages down to the ones that
// actually bear on the question.
type RelevanceGrader struct {
	model model.BaseChatModel
}

// NewRelevanceGrader creates a grader backed by the given chat model.
func NewRelevanceGrader(m model.BaseChatModel) *RelevanceGrader {
	return &RelevanceGrader{model: m}
}

// GradePassage scores a single passage against the question. Grading
// failures count as irrelevant: a passage only survives an explicit
// yes.
func (g *RelevanceGrader) GradePassage(ctx context.Context, question string, passage llm.RetrievedPassage) bool {
	messages := []*schema.Message{
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage("Retrieved document:\n\n" + passage.Record.Metadata.ChunkText +
			"\n\nUser question: " + question),
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		log.Warn().Str("chunk", passage.Record.ID).Err(err).Msg("relevance grading failed, dropping passage")
		return false
	}

	relevant, err := parseBinaryScore(resp.Content)
	if err != nil {
		log.Warn().Str("chunk", passage.Record.ID).Err(err).Msg("relevance grade unparseable, dropping passage")
		return false
	}
	return relevant
}

// GradePassages returns the subset of passages graded relevant,
// preserving their order.
func (g *RelevanceGrader) GradePassages(ctx context.Context, question string, passages []llm.RetrievedPassage) []llm.RetrievedPassage {
	relevant := make([]llm.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if err := ctx.Err(); err != nil {
			return relevant
		}
		if g.GradePassage(ctx, question, p) {
			relevant = append(relevant, p)
		}
	}
	return relevant
}
