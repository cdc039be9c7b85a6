package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"rageraps/internal/arena"
	"rageraps/internal/config"
	"rageraps/internal/db"
	"rageraps/internal/domain"
	"rageraps/internal/engine"
	"rageraps/internal/migrate"
	"rageraps/internal/repo"
)

// scriptedJudge returns verdicts from a fixed winner sequence, one per
// evaluation call.
type scriptedJudge struct {
	winners []string
	calls   int
	err     error
}

func (s *scriptedJudge) Evaluate(ctx context.Context, req arena.EvaluateRequest) (arena.EvaluateResult, error) {
	if s.err != nil {
		return arena.EvaluateResult{}, s.err
	}
	winner := s.winners[s.calls%len(s.winners)]
	s.calls++
	text := fmt.Sprintf("Winner: %s\nAnalysis of %s's verse: fine.\nAnalysis of %s's verse: fine.\nComparison: close round.",
		winner, req.Verse1.Contestant, req.Verse2.Contestant)
	return arena.EvaluateResult{VerdictText: text}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req arena.GenerateRequest) (arena.GenerateResult, error) {
	return arena.GenerateResult{Content: fmt.Sprintf("%s verse %d", req.Role, req.RoundNumber)}, nil
}

type noopRetriever struct{}

func (noopRetriever) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	return nil, nil
}

type testEnv struct {
	Engine engine.Engine
	Judge  *scriptedJudge
	Ctx    context.Context
}

func newTestEnv(t *testing.T, winners ...string) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	judge := &scriptedJudge{winners: winners}
	orch := &arena.Orchestrator{
		Generator:       stubGenerator{},
		Judge:           judge,
		Knowledge:       noopRetriever{},
		ProducerTimeout: 2 * time.Second,
		JudgeTimeout:    2 * time.Second,
		Log:             zap.NewNop(),
	}
	eng := engine.New(conn, cfg, orch, zap.NewNop())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Judge: judge, Ctx: context.Background()}
}

func createBattle(t *testing.T, env testEnv, rounds int) domain.Battle {
	t.Helper()
	b, err := env.Engine.CreateBattle(env.Ctx, engine.BattleCreateOptions{
		Contestant1: "Alice",
		Contestant2: "Bob",
		Style1:      "trap",
		Style2:      "old-school",
		Rounds:      rounds,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create battle: %v", err)
	}
	return b
}

func TestCreateBattleValidation(t *testing.T) {
	env := newTestEnv(t, "Alice")
	if _, err := env.Engine.CreateBattle(env.Ctx, engine.BattleCreateOptions{Contestant1: "Alice", ActorID: "tester"}); err == nil {
		t.Fatal("expected error for missing contestant")
	}
	if _, err := env.Engine.CreateBattle(env.Ctx, engine.BattleCreateOptions{Contestant1: "Alice", Contestant2: "alice", ActorID: "tester"}); err == nil {
		t.Fatal("expected error for duplicate contestants")
	}
	if _, err := env.Engine.CreateBattle(env.Ctx, engine.BattleCreateOptions{Contestant1: "A", Contestant2: "B", Rounds: -1, ActorID: "tester"}); err == nil {
		t.Fatal("expected error for negative rounds")
	}
}

func TestFullBattleWinTally(t *testing.T) {
	// Alice takes rounds 1 and 3, Bob takes round 2.
	env := newTestEnv(t, "Alice", "Bob", "Alice")
	b := createBattle(t, env, 3)

	for i := 1; i <= 3; i++ {
		rnd, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
		if err != nil {
			t.Fatalf("advance round %d: %v", i, err)
		}
		if rnd.RoundNumber != i {
			t.Fatalf("round number = %d, want %d", rnd.RoundNumber, i)
		}
		if rnd.Judgment == nil {
			t.Fatalf("round %d missing judgment", i)
		}
		if rnd.Verse1.Contestant != "Alice" || rnd.Verse2.Contestant != "Bob" {
			t.Fatalf("slot order wrong: %s / %s", rnd.Verse1.Contestant, rnd.Verse2.Contestant)
		}
	}

	got, err := env.Engine.GetBattle(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	if got.Status != domain.BattleCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Wins1 != 2 || got.Wins2 != 1 {
		t.Fatalf("tally = %d/%d, want 2/1", got.Wins1, got.Wins2)
	}
	if got.Winner != "Alice" || got.Draw {
		t.Fatalf("winner = %q draw=%v, want Alice", got.Winner, got.Draw)
	}
	if len(got.Rounds) != got.RoundCount {
		t.Fatalf("rounds = %d, want %d", len(got.Rounds), got.RoundCount)
	}
}

func TestTieCompletesAsDraw(t *testing.T) {
	env := newTestEnv(t, "Alice", "Bob")
	b := createBattle(t, env, 2)
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester"); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	got, err := env.Engine.GetBattle(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	if got.Status != domain.BattleCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Winner != "" || !got.Draw {
		t.Fatalf("winner = %q draw=%v, want draw with no winner", got.Winner, got.Draw)
	}
}

func TestAdvanceCompletedBattleRejected(t *testing.T) {
	env := newTestEnv(t, "Alice")
	b := createBattle(t, env, 1)
	if _, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
	if !errors.Is(err, engine.ErrBattleCompleted) {
		t.Fatalf("err = %v, want ErrBattleCompleted", err)
	}
	got, _ := env.Engine.GetBattle(env.Ctx, b.ID)
	if len(got.Rounds) > got.RoundCount {
		t.Fatalf("rounds exceeded configured count: %d", len(got.Rounds))
	}
}

func TestAdvanceBlockedByPendingJudgment(t *testing.T) {
	env := newTestEnv(t)
	env.Judge.err = errors.New("judge offline")
	b := createBattle(t, env, 3)

	rnd, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if rnd.Judgment != nil {
		t.Fatal("expected pending judgment")
	}
	// Round 2 must not start while round 1 is unjudged.
	if _, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester"); !errors.Is(err, engine.ErrRoundPending) {
		t.Fatalf("err = %v, want ErrRoundPending", err)
	}

	got, _ := env.Engine.GetBattle(env.Ctx, b.ID)
	if got.Status != domain.BattleInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}
	if len(got.Rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(got.Rounds))
	}
}

func TestJudgeRoundAIAfterEvaluationFailure(t *testing.T) {
	env := newTestEnv(t, "Bob")
	env.Judge.err = errors.New("judge offline")
	b := createBattle(t, env, 1)

	rnd, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	env.Judge.err = nil
	j, err := env.Engine.JudgeRoundAI(env.Ctx, b.ID, rnd.ID, "tester")
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if j.Winner != "Bob" || j.Source != domain.JudgmentSourceAI {
		t.Fatalf("judgment = %+v", j)
	}

	got, _ := env.Engine.GetBattle(env.Ctx, b.ID)
	if got.Status != domain.BattleCompleted || got.Winner != "Bob" {
		t.Fatalf("battle = %s winner %q, want completed/Bob", got.Status, got.Winner)
	}
}

func TestReJudgingRejected(t *testing.T) {
	env := newTestEnv(t, "Alice")
	b := createBattle(t, env, 2)
	rnd, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := env.Engine.JudgeRoundAI(env.Ctx, b.ID, rnd.ID, "tester"); !errors.Is(err, engine.ErrRoundAlreadyJudged) {
		t.Fatalf("ai re-judge err = %v, want ErrRoundAlreadyJudged", err)
	}
	if _, err := env.Engine.RecordManualJudgment(env.Ctx, b.ID, rnd.ID, "Bob", "", "tester"); !errors.Is(err, engine.ErrRoundAlreadyJudged) {
		t.Fatalf("manual re-judge err = %v, want ErrRoundAlreadyJudged", err)
	}

	// The original judgment is untouched.
	got, _ := env.Engine.GetBattle(env.Ctx, b.ID)
	if got.Rounds[0].Judgment.Winner != "Alice" {
		t.Fatalf("winner changed to %q", got.Rounds[0].Judgment.Winner)
	}
}

func TestManualJudgment(t *testing.T) {
	env := newTestEnv(t)
	env.Judge.err = errors.New("judge offline")
	b := createBattle(t, env, 1)
	rnd, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := env.Engine.RecordManualJudgment(env.Ctx, b.ID, rnd.ID, "Carol", "", "tester"); err == nil {
		t.Fatal("expected rejection of non-contestant winner")
	}

	j, err := env.Engine.RecordManualJudgment(env.Ctx, b.ID, rnd.ID, "Bob", "crowd went wild", "tester")
	if err != nil {
		t.Fatalf("manual judgment: %v", err)
	}
	if j.Source != domain.JudgmentSourceManual {
		t.Fatalf("source = %s, want manual", j.Source)
	}

	got, _ := env.Engine.GetBattle(env.Ctx, b.ID)
	if got.Status != domain.BattleCompleted || got.Winner != "Bob" {
		t.Fatalf("battle = %s winner %q, want completed/Bob", got.Status, got.Winner)
	}
	if got.Rounds[0].Judgment.Feedback != "crowd went wild" {
		t.Fatalf("feedback = %q", got.Rounds[0].Judgment.Feedback)
	}
}

func TestUnknownBattleAndRound(t *testing.T) {
	env := newTestEnv(t, "Alice")
	if _, err := env.Engine.AdvanceRound(env.Ctx, "missing", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	b := createBattle(t, env, 1)
	if _, err := env.Engine.JudgeRoundAI(env.Ctx, b.ID, "missing-round", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteBattle(t *testing.T) {
	env := newTestEnv(t, "Alice")
	b := createBattle(t, env, 2)
	if _, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if err := env.Engine.DeleteBattle(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetBattle(env.Ctx, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := env.Engine.DeleteBattle(env.Ctx, b.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestRoundsPersistVersesAndTranscriptOrder(t *testing.T) {
	env := newTestEnv(t, "Alice", "Bob", "Alice")
	b := createBattle(t, env, 3)
	for i := 0; i < 3; i++ {
		if _, err := env.Engine.AdvanceRound(env.Ctx, b.ID, "tester"); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	got, err := env.Engine.GetBattle(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("get battle: %v", err)
	}
	verses := got.Transcript(4)
	if len(verses) != 6 {
		t.Fatalf("transcript length = %d, want 6", len(verses))
	}
	for i, v := range verses {
		want := "Alice"
		if i%2 == 1 {
			want = "Bob"
		}
		if v.Contestant != want {
			t.Fatalf("verse %d contestant = %s, want %s", i, v.Contestant, want)
		}
	}
}
