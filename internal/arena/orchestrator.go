package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rageraps/internal/domain"
	"rageraps/internal/knowledge"
)

// Orchestrator runs the per-round sequence: concurrent verse production,
// rendezvous join, then one evaluation pass.
type Orchestrator struct {
	Generator Generator
	Judge     Judge
	Knowledge knowledge.Retriever

	ProducerTimeout time.Duration
	JudgeTimeout    time.Duration

	Log *zap.Logger
	Now func() time.Time
}

func (o *Orchestrator) now() string {
	if o.Now != nil {
		return o.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// RunRound produces both verses for the given round number and judges
// them. The transcript handed to each producer is frozen at round start.
// Verses land in fixed slots keyed by contestant, never by completion
// order. An evaluation failure leaves Judgment nil and returns no error;
// a verdict that violates the textual contract returns the round
// together with a FormatError.
func (o *Orchestrator) RunRound(ctx context.Context, battle domain.Battle, roundNumber int) (domain.Round, error) {
	transcript := battle.Transcript(roundNumber)
	cache := knowledge.NewRoundCache(o.Knowledge)

	reqs := [2]GenerateRequest{
		{Role: battle.Contestant1, Opponent: battle.Contestant2, Style: battle.Style1,
			RoundNumber: roundNumber, Transcript: transcript, Knowledge: cache},
		{Role: battle.Contestant2, Opponent: battle.Contestant1, Style: battle.Style2,
			RoundNumber: roundNumber, Transcript: transcript, Knowledge: cache},
	}

	var verses [2]domain.Verse
	g, gctx := errgroup.WithContext(ctx)
	for i := range reqs {
		i := i
		g.Go(func() error {
			verses[i] = o.produce(gctx, reqs[i])
			return nil
		})
	}
	// Producers absorb their own failures, so the only wait outcome is
	// both slots filled.
	_ = g.Wait()

	ts := o.now()
	roundID := uuid.NewString()
	for i := range verses {
		verses[i].ID = uuid.NewString()
		verses[i].RoundID = roundID
	}
	rnd := domain.Round{
		ID:          roundID,
		BattleID:    battle.ID,
		RoundNumber: roundNumber,
		Verse1:      &verses[0],
		Verse2:      &verses[1],
		Status:      domain.RoundInProgress,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	judgment, err := o.evaluate(ctx, battle, rnd, cache)
	if err != nil {
		var formatErr *FormatError
		if errors.As(err, &formatErr) {
			return rnd, err
		}
		o.Log.Warn("round evaluation failed, judgment pending",
			zap.String("battle_id", battle.ID),
			zap.Int("round", roundNumber),
			zap.Error(err))
		return rnd, nil
	}
	rnd.Judgment = &judgment
	rnd.Status = domain.RoundCompleted
	return rnd, nil
}

// JudgeRound evaluates an existing round's verses, for rounds whose
// judgment is still pending. Unlike RunRound, evaluation errors are
// surfaced: the caller asked for a judgment and gets the failure.
func (o *Orchestrator) JudgeRound(ctx context.Context, battle domain.Battle, rnd domain.Round) (domain.Judgment, error) {
	if rnd.Verse1 == nil || rnd.Verse2 == nil {
		return domain.Judgment{}, fmt.Errorf("round %d has missing verses", rnd.RoundNumber)
	}
	return o.evaluate(ctx, battle, rnd, knowledge.NewRoundCache(o.Knowledge))
}

func (o *Orchestrator) evaluate(ctx context.Context, battle domain.Battle, rnd domain.Round, retriever knowledge.Retriever) (domain.Judgment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.JudgeTimeout)
	defer cancel()

	type outcome struct {
		res EvaluateResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := o.Judge.Evaluate(ctx, EvaluateRequest{
			Verse1:    *rnd.Verse1,
			Verse2:    *rnd.Verse2,
			Style1:    battle.Style1,
			Style2:    battle.Style2,
			Knowledge: retriever,
		})
		ch <- outcome{res: res, err: err}
	}()

	var res EvaluateResult
	select {
	case out := <-ch:
		if out.err != nil {
			return domain.Judgment{}, fmt.Errorf("evaluate round %d: %w", rnd.RoundNumber, out.err)
		}
		res = out.res
	case <-ctx.Done():
		return domain.Judgment{}, fmt.Errorf("evaluate round %d: %w", rnd.RoundNumber, ctx.Err())
	}

	verdict, err := ParseVerdict(res.VerdictText, battle.Contestant1, battle.Contestant2)
	if err != nil {
		return domain.Judgment{}, err
	}
	return domain.Judgment{
		ID:         uuid.NewString(),
		RoundID:    rnd.ID,
		Winner:     verdict.Winner,
		Feedback:   res.VerdictText,
		Analysis1:  verdict.Analysis1,
		Analysis2:  verdict.Analysis2,
		Comparison: verdict.Comparison,
		Source:     domain.JudgmentSourceAI,
		Snippets:   res.Snippets,
		CreatedAt:  o.now(),
	}, nil
}
