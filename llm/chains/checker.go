package chains

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"lexrag/llm"
)

const hallucinationSystemPrompt = `You are a grader assessing whether an LLM generation is grounded in / supported by a set of retrieved facts.
Give a binary score 'yes' or 'no'. 'Yes' means that the answer is grounded in / supported by the set of facts.
Answer with the single word 'yes' or 'no' and nothing else.`

const usefulnessSystemPrompt = `You are a grader assessing whether an answer addresses / resolves a question.
Give a binary score 'yes' or 'no'. 'Yes' means that the answer resolves the question.
Answer with the single word 'yes' or 'no' and nothing else.`

// GroundednessChecker verifies a generated answer before it is shown:
// first that it is supported by the passages, then that it actually
// resolves the question.
type GroundednessChecker struct {
	model model.BaseChatModel
}

// NewGroundednessChecker creates a checker backed by the given chat model.
func NewGroundednessChecker(m model.BaseChatModel) *GroundednessChecker {
	return &GroundednessChecker{model: m}
}

// Check grades the answer and returns a verdict. Both grading failures
// and unparseable replies fail safe to VerdictHallucinated, so an
// unverifiable answer is never reported as grounded.
func (c *GroundednessChecker) Check(ctx context.Context, question, answer string, passages []llm.RetrievedPassage) llm.Verdict {
	grounded := c.grade(ctx, hallucinationSystemPrompt,
		"Set of facts:\n\n"+formatPassages(passages)+"\n\nLLM generation: "+answer)
	if !grounded {
		return llm.VerdictHallucinated
	}

	useful := c.grade(ctx, usefulnessSystemPrompt,
		"User question:\n\n"+question+"\n\nLLM generation: "+answer)
	if !useful {
		return llm.VerdictNotUseful
	}

	return llm.VerdictGrounded
}

func (c *GroundednessChecker) grade(ctx context.Context, system, user string) bool {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Msg("groundedness grading failed")
		return false
	}

	ok, err := parseBinaryScore(resp.Content)
	if err != nil {
		log.Warn().Err(err).Msg("groundedness grade unparseable")
		return false
	}
	return ok
}
