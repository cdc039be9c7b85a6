package arena

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rageraps/internal/domain"
	"rageraps/internal/knowledge"
)

type stubGenerator struct {
	delays map[string]time.Duration
	errs   map[string]error
}

func (s *stubGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if d := s.delays[req.Role]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return GenerateResult{}, ctx.Err()
		}
	}
	if err := s.errs[req.Role]; err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{Content: fmt.Sprintf("%s round %d bars", req.Role, req.RoundNumber)}, nil
}

type stubJudge struct {
	verdict string
	err     error
	delay   time.Duration
}

func (s *stubJudge) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return EvaluateResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return EvaluateResult{}, s.err
	}
	return EvaluateResult{VerdictText: s.verdict}, nil
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	return nil, nil
}

func goodVerdict() string {
	return "Winner: Alice\n" +
		"Analysis of Alice's verse: sharp wordplay.\n" +
		"Analysis of Bob's verse: solid but predictable.\n" +
		"Comparison: Alice controlled the round."
}

func testBattle() domain.Battle {
	return domain.Battle{
		ID:          "b1",
		Contestant1: "Alice",
		Contestant2: "Bob",
		Style1:      "trap",
		Style2:      "old-school",
		RoundCount:  3,
		Status:      domain.BattleInProgress,
	}
}

func newOrchestrator(gen Generator, judge Judge) *Orchestrator {
	return &Orchestrator{
		Generator:       gen,
		Judge:           judge,
		Knowledge:       emptyRetriever{},
		ProducerTimeout: 2 * time.Second,
		JudgeTimeout:    2 * time.Second,
		Log:             zap.NewNop(),
	}
}

func TestRunRoundSlotOrderIndependentOfCompletion(t *testing.T) {
	// Contestant 1 finishes last; slots must still follow contestant order.
	gen := &stubGenerator{delays: map[string]time.Duration{"Alice": 80 * time.Millisecond, "Bob": 0}}
	o := newOrchestrator(gen, &stubJudge{verdict: goodVerdict()})

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	require.NotNil(t, rnd.Verse1)
	require.NotNil(t, rnd.Verse2)
	assert.Equal(t, "Alice", rnd.Verse1.Contestant)
	assert.Equal(t, "Bob", rnd.Verse2.Contestant)

	// Swap the delays; slot contents stay identical.
	gen.delays = map[string]time.Duration{"Alice": 0, "Bob": 80 * time.Millisecond}
	rnd2, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	assert.Equal(t, rnd.Verse1.Content, rnd2.Verse1.Content)
	assert.Equal(t, rnd.Verse2.Content, rnd2.Verse2.Content)
}

func TestRunRoundBothProducersFail(t *testing.T) {
	gen := &stubGenerator{errs: map[string]error{
		"Alice": errors.New("model unavailable"),
		"Bob":   errors.New("model unavailable"),
	}}
	o := newOrchestrator(gen, &stubJudge{verdict: goodVerdict()})

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	require.NotNil(t, rnd.Verse1)
	require.NotNil(t, rnd.Verse2)
	assert.Equal(t, FallbackContent, rnd.Verse1.Content)
	assert.Equal(t, FallbackContent, rnd.Verse2.Content)
	assert.True(t, rnd.Verse1.Fallback())
	assert.True(t, rnd.Verse2.Fallback())
	assert.Empty(t, rnd.Verse1.Snippets)
	// The round still reached judging.
	require.NotNil(t, rnd.Judgment)
}

func TestRunRoundProducerTimeoutYieldsFallback(t *testing.T) {
	gen := &stubGenerator{delays: map[string]time.Duration{"Bob": 500 * time.Millisecond}}
	o := newOrchestrator(gen, &stubJudge{verdict: goodVerdict()})
	o.ProducerTimeout = 50 * time.Millisecond

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	assert.False(t, rnd.Verse1.Fallback())
	assert.True(t, rnd.Verse2.Fallback())
	assert.Equal(t, FallbackContent, rnd.Verse2.Content)
}

func TestRunRoundEvaluationFailureLeavesJudgmentPending(t *testing.T) {
	o := newOrchestrator(&stubGenerator{}, &stubJudge{err: errors.New("judge offline")})

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	assert.Nil(t, rnd.Judgment)
	assert.Equal(t, domain.RoundInProgress, rnd.Status)
	require.NotNil(t, rnd.Verse1)
	require.NotNil(t, rnd.Verse2)
}

func TestRunRoundEvaluationTimeoutLeavesJudgmentPending(t *testing.T) {
	o := newOrchestrator(&stubGenerator{}, &stubJudge{verdict: goodVerdict(), delay: 500 * time.Millisecond})
	o.JudgeTimeout = 50 * time.Millisecond

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	assert.Nil(t, rnd.Judgment)
}

func TestRunRoundBadWinnerIsFormatError(t *testing.T) {
	o := newOrchestrator(&stubGenerator{}, &stubJudge{verdict: "Winner: Carol\nComparison: close one."})

	rnd, err := o.RunRound(context.Background(), testBattle(), 1)
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	// Verses survive the format failure.
	require.NotNil(t, rnd.Verse1)
	require.NotNil(t, rnd.Verse2)
	assert.Nil(t, rnd.Judgment)
}

func TestJudgeRoundBuildsJudgment(t *testing.T) {
	o := newOrchestrator(&stubGenerator{}, &stubJudge{verdict: goodVerdict()})
	battle := testBattle()
	rnd, err := o.RunRound(context.Background(), battle, 1)
	require.NoError(t, err)
	rnd.Judgment = nil

	j, err := o.JudgeRound(context.Background(), battle, rnd)
	require.NoError(t, err)
	assert.Equal(t, "Alice", j.Winner)
	assert.Equal(t, domain.JudgmentSourceAI, j.Source)
	assert.Equal(t, rnd.ID, j.RoundID)
	assert.Equal(t, "sharp wordplay.", j.Analysis1)
	assert.Equal(t, "solid but predictable.", j.Analysis2)
	assert.Equal(t, "Alice controlled the round.", j.Comparison)
}

func TestRoundCacheSharedAcrossProducers(t *testing.T) {
	// Both producers asking for the same entity hit the store once.
	calls := 0
	gen := generatorFunc(func(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
		if _, err := req.Knowledge.Retrieve(ctx, req.Opponent, "", knowledge.KindBio, 3); err != nil {
			return GenerateResult{}, err
		}
		if _, err := req.Knowledge.Retrieve(ctx, req.Opponent, "", knowledge.KindBio, 3); err != nil {
			return GenerateResult{}, err
		}
		return GenerateResult{Content: "bars"}, nil
	})
	o := newOrchestrator(gen, &stubJudge{verdict: goodVerdict()})
	o.Knowledge = retrieverFunc(func(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
		calls++
		return nil, nil
	})

	_, err := o.RunRound(context.Background(), testBattle(), 1)
	require.NoError(t, err)
	// One lookup per distinct opponent, repeats served from the cache.
	assert.Equal(t, 2, calls)
}

type generatorFunc func(ctx context.Context, req GenerateRequest) (GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	return f(ctx, req)
}

type retrieverFunc func(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error)

func (f retrieverFunc) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	return f(ctx, entity, style, kind, k)
}
