// Package arena runs battle rounds: two concurrent verse producers, a
// rendezvous join with fixed slot assignment, and a single evaluation
// pass that turns the judge's verdict text into a structured Judgment.
package arena

import (
	"context"

	"rageraps/internal/domain"
	"rageraps/internal/knowledge"
)

// GenerateRequest describes one producer invocation. Transcript is a
// snapshot taken at round start and must not be mutated.
type GenerateRequest struct {
	Role        string
	Opponent    string
	Style       string
	RoundNumber int
	Transcript  []domain.Verse
	Knowledge   knowledge.Retriever
}

type GenerateResult struct {
	Content  string
	Snippets []domain.Snippet
}

// Generator produces verse content for one contestant.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// EvaluateRequest carries both verses of a round to the judge.
type EvaluateRequest struct {
	Verse1    domain.Verse
	Verse2    domain.Verse
	Style1    string
	Style2    string
	Knowledge knowledge.Retriever
}

type EvaluateResult struct {
	VerdictText string
	Snippets    []domain.Snippet
}

// Judge returns raw verdict text for a round. The orchestrator parses
// it against the verdict contract.
type Judge interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error)
}
