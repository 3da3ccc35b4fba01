package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const rewriterSystemPrompt = `You are a question re-writer that converts an input question to a better version optimized for vector store retrieval over Colombian tax law documents.
Look at the input and reason about the underlying semantic intent. Broaden narrow phrasings, expand abbreviations and prefer the terminology used in statutes and rulings.
Return only the rewritten question, in the same language as the input, with no preamble.`

// QuestionRewriter reformulates a question whose retrieval came back
// empty or irrelevant, preserving its intent.
type QuestionRewriter struct {
	model model.BaseChatModel
}

// NewQuestionRewriter creates a rewriter backed by the given chat model.
func NewQuestionRewriter(m model.BaseChatModel) *QuestionRewriter {
	return &QuestionRewriter{model: m}
}

// Rewrite produces a reformulated question. attempt is 1-based and
// nudges later rewrites to diverge further from the original phrasing.
func (r *QuestionRewriter) Rewrite(ctx context.Context, question string, attempt int) (string, error) {
	user := "Initial question: " + question
	if attempt > 1 {
		user += fmt.Sprintf("\n\nPrevious rewrites did not retrieve relevant documents. This is attempt %d: take a noticeably different angle on the same intent.", attempt)
	}

	messages := []*schema.Message{
		schema.SystemMessage(rewriterSystemPrompt),
		schema.UserMessage(user),
	}

	resp, err := r.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("rewriting question: %w", err)
	}

	rewritten := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if rewritten == "" {
		return "", fmt.Errorf("rewriter returned an empty question")
	}
	return rewritten, nil
}
