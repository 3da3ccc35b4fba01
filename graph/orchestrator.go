package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"lexrag/llm"
)

// unavailableAnswer is shown when retrieval infrastructure fails; the
// run ends cleanly instead of surfacing a transport error.
const unavailableAnswer = "El sistema de consulta no está disponible temporalmente. Por favor intente de nuevo más tarde."

// Retriever fetches ranked passages for a question.
type Retriever interface {
	Retrieve(ctx context.Context, namespace, question string) ([]llm.RetrievedPassage, error)
}

// Grader filters passages down to the relevant ones.
type Grader interface {
	GradePassages(ctx context.Context, question string, passages []llm.RetrievedPassage) []llm.RetrievedPassage
}

// Rewriter reformulates a question that retrieved nothing useful.
type Rewriter interface {
	Rewrite(ctx context.Context, question string, attempt int) (string, error)
}

// Generator produces an answer from graded passages.
type Generator interface {
	Generate(ctx context.Context, question string, passages []llm.RetrievedPassage) (llm.Answer, error)
}

// Checker grades a generated answer before it is shown.
type Checker interface {
	Check(ctx context.Context, question, answer string, passages []llm.RetrievedPassage) llm.Verdict
}

// Config bounds a run. Retrieval retries are question rewrites;
// generation retries are regenerations after a hallucination verdict.
type Config struct {
	Namespace            string
	MaxRetrievalRetries  int
	MaxGenerationRetries int
}

// Orchestrator wires the pipeline stages together and drives a run to
// a terminal state.
type Orchestrator struct {
	retriever Retriever
	grader    Grader
	rewriter  Rewriter
	generator Generator
	checker   Checker
	config    Config
}

// New creates an orchestrator over the given stages.
func New(retriever Retriever, grader Grader, rewriter Rewriter, generator Generator, checker Checker, cfg Config) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		grader:    grader,
		rewriter:  rewriter,
		generator: generator,
		checker:   checker,
		config:    cfg,
	}
}

// Run answers the question. It always reaches a terminal state within
// the configured retry budgets; a non-nil error is returned only for
// context cancellation, never for pipeline-level failures, which end
// as give-up results instead.
func (o *Orchestrator) Run(ctx context.Context, question string) (*Result, error) {
	result := &Result{
		RunID:    uuid.NewString(),
		Question: question,
	}
	qs := &queryState{question: question}
	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).Str("run_id", result.RunID).Value()

	// Every loop either terminates or consumes a retry budget, so the
	// cap can never bind; it guards against a regression in the
	// transition logic.
	maxSteps := 6 * (o.config.MaxRetrievalRetries + o.config.MaxGenerationRetries + 2)

	state := StateRetrieve
	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if steps > maxSteps {
			return nil, fmt.Errorf("pipeline exceeded %d steps without terminating", maxSteps)
		}

		logger.Debug().Str("state", state.String()).Str("question", qs.question).Msg("pipeline step")

		executed := state
		var detail string
		switch state {
		case StateRetrieve:
			state, detail = o.retrieve(ctx, qs)
		case StateGrade:
			state, detail = o.grade(ctx, qs)
		case StateRewrite:
			state, detail = o.rewrite(ctx, qs)
		case StateGenerate:
			state, detail = o.generate(ctx, qs)
		case StateCheck:
			state, detail = o.check(ctx, qs)
		}

		result.Trace = append(result.Trace, Step{State: executed, Detail: detail})

		if state.Terminal() {
			result.State = state
			result.FinalQuestion = qs.question
			result.Answer = qs.answer
			logger.Info().Str("state", state.String()).Int("steps", len(result.Trace)).
				Bool("verified", qs.answer.Verified).Msg("pipeline finished")
			return result, nil
		}
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, qs *queryState) (State, string) {
	passages, err := o.retriever.Retrieve(ctx, o.config.Namespace, qs.question)
	if err != nil {
		log.Error().Err(err).Msg("retrieval failed")
		qs.answer = llm.Answer{Text: unavailableAnswer, Insufficient: true}
		return StateGiveUp, "retrieval unavailable"
	}
	qs.passages = passages
	return StateGrade, fmt.Sprintf("%d passages", len(passages))
}

func (o *Orchestrator) grade(ctx context.Context, qs *queryState) (State, string) {
	relevant := o.grader.GradePassages(ctx, qs.question, qs.passages)
	if len(relevant) > 0 {
		qs.passages = relevant
		return StateGenerate, fmt.Sprintf("%d relevant", len(relevant))
	}

	if qs.retrievalRetries < o.config.MaxRetrievalRetries {
		qs.retrievalRetries++
		return StateRewrite, "no relevant passages"
	}
	return o.giveUpInsufficient(ctx, qs)
}

func (o *Orchestrator) rewrite(ctx context.Context, qs *queryState) (State, string) {
	rewritten, err := o.rewriter.Rewrite(ctx, qs.question, qs.retrievalRetries)
	if err != nil {
		// The retry is already spent; retrying with the original
		// phrasing is still better than giving up here.
		log.Warn().Err(err).Msg("rewrite failed, retrying with current question")
		return StateRetrieve, "rewrite failed"
	}
	qs.question = rewritten
	return StateRetrieve, "question rewritten"
}

func (o *Orchestrator) generate(ctx context.Context, qs *queryState) (State, string) {
	answer, err := o.generator.Generate(ctx, qs.question, qs.passages)
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		if qs.generationRetries < o.config.MaxGenerationRetries {
			qs.generationRetries++
			return StateGenerate, "generation error, retrying"
		}
		qs.answer = llm.Answer{Text: unavailableAnswer, Insufficient: true}
		return StateGiveUp, "generation unavailable"
	}

	qs.answer = answer
	if answer.Insufficient {
		return StateGiveUp, "insufficient information"
	}
	return StateCheck, "answer generated"
}

func (o *Orchestrator) check(ctx context.Context, qs *queryState) (State, string) {
	verdict := o.checker.Check(ctx, qs.question, qs.answer.Text, qs.passages)

	switch verdict {
	case llm.VerdictGrounded:
		qs.answer.Verified = true
		return StateAnswer, "grounded"

	case llm.VerdictHallucinated:
		if qs.generationRetries < o.config.MaxGenerationRetries {
			qs.generationRetries++
			return StateGenerate, "hallucination, regenerating"
		}
		// Budgets exhausted; surface the best answer unverified.
		return StateGiveUp, "unverified answer"

	default: // VerdictNotUseful
		if qs.retrievalRetries < o.config.MaxRetrievalRetries {
			qs.retrievalRetries++
			return StateRewrite, "answer not useful"
		}
		return StateGiveUp, "unverified answer"
	}
}

// giveUpInsufficient ends the run with the generator's refusal, which
// never calls the model.
func (o *Orchestrator) giveUpInsufficient(ctx context.Context, qs *queryState) (State, string) {
	answer, err := o.generator.Generate(ctx, qs.question, nil)
	if err != nil {
		answer = llm.Answer{Text: unavailableAnswer, Insufficient: true}
	}
	qs.answer = answer
	return StateGiveUp, "retrieval budget exhausted"
}
