package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexrag/llm"
)

type scriptRetriever struct {
	calls     int
	questions []string
	passages  []llm.RetrievedPassage
	err       error
}

func (r *scriptRetriever) Retrieve(ctx context.Context, namespace, question string) ([]llm.RetrievedPassage, error) {
	r.calls++
	r.questions = append(r.questions, question)
	return r.passages, r.err
}

// scriptGrader replays per-call relevant subsets; once the script runs
// out it keeps everything.
type scriptGrader struct {
	calls   int
	scripts [][]llm.RetrievedPassage
}

func (g *scriptGrader) GradePassages(ctx context.Context, question string, passages []llm.RetrievedPassage) []llm.RetrievedPassage {
	g.calls++
	if len(g.scripts) > 0 {
		out := g.scripts[0]
		g.scripts = g.scripts[1:]
		return out
	}
	return passages
}

type scriptRewriter struct {
	calls int
	err   error
}

func (r *scriptRewriter) Rewrite(ctx context.Context, question string, attempt int) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("%s (reformulada %d)", question, attempt), nil
}

type scriptGenerator struct {
	calls int
	err   error
}

func (g *scriptGenerator) Generate(ctx context.Context, question string, passages []llm.RetrievedPassage) (llm.Answer, error) {
	g.calls++
	if len(passages) == 0 {
		return llm.Answer{Text: "No dispongo de información suficiente.", Insufficient: true}, nil
	}
	if g.err != nil {
		return llm.Answer{}, g.err
	}
	return llm.Answer{
		Text:      fmt.Sprintf("La tarifa es del 35%% [1]. (generación %d)", g.calls),
		Citations: []llm.Citation{{ChunkID: passages[0].Record.ID}},
	}, nil
}

type scriptChecker struct {
	calls    int
	verdicts []llm.Verdict
}

func (c *scriptChecker) Check(ctx context.Context, question, answer string, passages []llm.RetrievedPassage) llm.Verdict {
	c.calls++
	if len(c.verdicts) == 0 {
		return llm.VerdictGrounded
	}
	v := c.verdicts[0]
	c.verdicts = c.verdicts[1:]
	return v
}

func somePassages() []llm.RetrievedPassage {
	return []llm.RetrievedPassage{
		{Record: llm.VectorRecord{ID: "c-1", Metadata: llm.RecordMetadata{ChunkText: "tarifa del 35%"}}, Score: 0.9},
	}
}

func testConfig() Config {
	return Config{Namespace: "renta", MaxRetrievalRetries: 3, MaxGenerationRetries: 1}
}

func TestRunHappyPath(t *testing.T) {
	retriever := &scriptRetriever{passages: somePassages()}
	checker := &scriptChecker{}
	o := New(retriever, &scriptGrader{}, &scriptRewriter{}, &scriptGenerator{}, checker, testConfig())

	result, err := o.Run(context.Background(), "¿Cuál es la tarifa de renta?")
	require.NoError(t, err)

	assert.Equal(t, StateAnswer, result.State)
	assert.True(t, result.Answer.Verified)
	assert.False(t, result.Answer.Insufficient)
	require.Len(t, result.Answer.Citations, 1)
	assert.Equal(t, "¿Cuál es la tarifa de renta?", result.FinalQuestion)
	assert.NotEmpty(t, result.RunID)

	states := make([]State, 0, len(result.Trace))
	for _, s := range result.Trace {
		states = append(states, s.State)
	}
	assert.Equal(t, []State{StateRetrieve, StateGrade, StateGenerate, StateCheck}, states)
}

func TestRunRewritesUntilBudgetExhausted(t *testing.T) {
	retriever := &scriptRetriever{passages: somePassages()}
	grader := &scriptGrader{scripts: [][]llm.RetrievedPassage{nil, nil, nil, nil, nil}}
	rewriter := &scriptRewriter{}
	generator := &scriptGenerator{}
	o := New(retriever, grader, rewriter, generator, &scriptChecker{}, testConfig())

	result, err := o.Run(context.Background(), "pregunta oscura")
	require.NoError(t, err)

	assert.Equal(t, StateGiveUp, result.State)
	assert.True(t, result.Answer.Insufficient)
	// Initial attempt plus three rewrites.
	assert.Equal(t, 4, retriever.calls)
	assert.Equal(t, 3, rewriter.calls)
	// The refusal comes from the generator's empty-passage path.
	assert.Equal(t, 1, generator.calls)
	assert.NotEqual(t, result.Question, result.FinalQuestion)
}

func TestRunRegeneratesOnHallucinationThenGivesUp(t *testing.T) {
	checker := &scriptChecker{verdicts: []llm.Verdict{llm.VerdictHallucinated, llm.VerdictHallucinated}}
	generator := &scriptGenerator{}
	o := New(&scriptRetriever{passages: somePassages()}, &scriptGrader{}, &scriptRewriter{}, generator, checker, testConfig())

	result, err := o.Run(context.Background(), "pregunta")
	require.NoError(t, err)

	assert.Equal(t, StateGiveUp, result.State)
	assert.False(t, result.Answer.Verified)
	assert.False(t, result.Answer.Insufficient)
	// One generation plus one regeneration, both checked.
	assert.Equal(t, 2, generator.calls)
	assert.Equal(t, 2, checker.calls)
	assert.Contains(t, result.Answer.Text, "generación 2")
}

func TestRunNotUsefulTriggersRewrite(t *testing.T) {
	checker := &scriptChecker{verdicts: []llm.Verdict{llm.VerdictNotUseful, llm.VerdictGrounded}}
	rewriter := &scriptRewriter{}
	o := New(&scriptRetriever{passages: somePassages()}, &scriptGrader{}, rewriter, &scriptGenerator{}, checker, testConfig())

	result, err := o.Run(context.Background(), "pregunta vaga")
	require.NoError(t, err)

	assert.Equal(t, StateAnswer, result.State)
	assert.True(t, result.Answer.Verified)
	assert.Equal(t, 1, rewriter.calls)
	assert.Contains(t, result.FinalQuestion, "reformulada")
}

func TestRunRetrievalFailureGivesUpCleanly(t *testing.T) {
	retriever := &scriptRetriever{err: &llm.StoreError{Op: "query", Err: errors.New("connection refused")}}
	o := New(retriever, &scriptGrader{}, &scriptRewriter{}, &scriptGenerator{}, &scriptChecker{}, testConfig())

	result, err := o.Run(context.Background(), "pregunta")
	require.NoError(t, err, "infrastructure failure must not surface as a run error")

	assert.Equal(t, StateGiveUp, result.State)
	assert.True(t, result.Answer.Insufficient)
	assert.Contains(t, result.Answer.Text, "disponible")
}

func TestRunRewriteFailureStillTerminates(t *testing.T) {
	grader := &scriptGrader{scripts: [][]llm.RetrievedPassage{nil, nil, nil, nil}}
	rewriter := &scriptRewriter{err: errors.New("model unavailable")}
	retriever := &scriptRetriever{passages: somePassages()}
	o := New(retriever, grader, rewriter, &scriptGenerator{}, &scriptChecker{}, testConfig())

	result, err := o.Run(context.Background(), "pregunta")
	require.NoError(t, err)

	assert.Equal(t, StateGiveUp, result.State)
	// Failed rewrites keep the original phrasing.
	assert.Equal(t, result.Question, result.FinalQuestion)
	assert.Equal(t, 4, retriever.calls)
}

func TestRunAdversarialVerdictsTerminate(t *testing.T) {
	verdicts := []llm.Verdict{
		llm.VerdictNotUseful, llm.VerdictHallucinated,
		llm.VerdictNotUseful, llm.VerdictNotUseful,
		llm.VerdictHallucinated, llm.VerdictNotUseful,
	}
	checker := &scriptChecker{verdicts: verdicts}
	o := New(&scriptRetriever{passages: somePassages()}, &scriptGrader{}, &scriptRewriter{}, &scriptGenerator{}, checker, testConfig())

	result, err := o.Run(context.Background(), "pregunta")
	require.NoError(t, err)
	assert.True(t, result.State.Terminal())
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(&scriptRetriever{passages: somePassages()}, &scriptGrader{}, &scriptRewriter{}, &scriptGenerator{}, &scriptChecker{}, testConfig())
	_, err := o.Run(ctx, "pregunta")
	require.ErrorIs(t, err, context.Canceled)
}
