// Package graph runs the corrective query pipeline: retrieval,
// relevance grading, question rewriting, answer generation and
// groundedness checking, connected as a bounded state machine.
package graph

import "lexrag/llm"

// State identifies a pipeline stage.
type State int

const (
	StateRetrieve State = iota
	StateGrade
	StateRewrite
	StateGenerate
	StateCheck
	StateAnswer
	StateGiveUp
)

// String returns the stage name.
func (s State) String() string {
	switch s {
	case StateRetrieve:
		return "retrieve"
	case StateGrade:
		return "grade"
	case StateRewrite:
		return "rewrite"
	case StateGenerate:
		return "generate"
	case StateCheck:
		return "check"
	case StateAnswer:
		return "answer"
	case StateGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateAnswer || s == StateGiveUp
}

// Step records one visited stage for the run trace.
type Step struct {
	State  State
	Detail string
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID string

	// Question is the question as asked; FinalQuestion is the variant
	// the answer was generated from, after any rewrites.
	Question      string
	FinalQuestion string

	Answer llm.Answer
	State  State
	Trace  []Step
}

// queryState is the mutable state threaded through one run.
type queryState struct {
	question string
	passages []llm.RetrievedPassage
	answer   llm.Answer

	retrievalRetries  int
	generationRetries int
}
