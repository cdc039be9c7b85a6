package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rageraps/internal/arena"
	"rageraps/internal/config"
	"rageraps/internal/domain"
	"rageraps/internal/events"
	"rageraps/internal/repo"
)

// Typed rejections for invalid battle transitions. The battle state is
// never touched when one of these is returned.
var (
	ErrRoundAlreadyJudged = errors.New("round already has a judgment")
	ErrBattleCompleted    = errors.New("battle is completed")
	ErrRoundPending       = errors.New("previous round is awaiting judgment")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Arena  *arena.Orchestrator
	Log    *zap.Logger
	Now    func() time.Time

	locks *battleLocks
}

func New(db *sql.DB, cfg *config.Config, orch *arena.Orchestrator, log *zap.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Arena:  orch,
		Log:    log,
		Now:    time.Now,
		locks:  &battleLocks{},
	}
}

func (e Engine) now() string {
	if e.Now != nil {
		return e.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// battleLocks serializes writes per battle. Concurrent battles proceed
// independently; within one battle only a single advance or judgment is
// in flight at a time.
type battleLocks struct {
	m sync.Map
}

func (l *battleLocks) lock(battleID string) func() {
	v, _ := l.m.LoadOrStore(battleID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// BattleCreateOptions are parameters for creating a battle.
type BattleCreateOptions struct {
	Contestant1 string
	Contestant2 string
	Style1      string
	Style2      string
	Rounds      int
	ActorID     string
}

// CreateBattle registers a new battle with zero rounds.
func (e Engine) CreateBattle(ctx context.Context, opts BattleCreateOptions) (domain.Battle, error) {
	c1 := strings.TrimSpace(opts.Contestant1)
	c2 := strings.TrimSpace(opts.Contestant2)
	if c1 == "" || c2 == "" {
		return domain.Battle{}, fmt.Errorf("contestant names are required")
	}
	if strings.EqualFold(c1, c2) {
		return domain.Battle{}, fmt.Errorf("contestants must be distinct: invalid pairing %q vs %q", c1, c2)
	}
	rounds := opts.Rounds
	if rounds == 0 {
		rounds = e.Config.Battle.Rounds
	}
	if rounds < 1 {
		return domain.Battle{}, fmt.Errorf("round count must be >= 1: invalid value %d", rounds)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Battle{}, err
	}
	defer tx.Rollback()

	ts := e.now()
	b := domain.Battle{
		ID:          uuid.NewString(),
		Contestant1: c1,
		Contestant2: c2,
		Style1:      strings.TrimSpace(opts.Style1),
		Style2:      strings.TrimSpace(opts.Style2),
		RoundCount:  rounds,
		Status:      domain.BattleInProgress,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := e.Repo.InsertBattle(ctx, tx, b); err != nil {
		return domain.Battle{}, fmt.Errorf("insert battle: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "battle.create", b.ID, "battle", b.ID, opts.ActorID, events.EventPayload{
		"contestant1": c1, "contestant2": c2, "rounds": rounds,
	}); err != nil {
		return domain.Battle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Battle{}, err
	}
	return b, nil
}

// AdvanceRound runs the next round of the battle: both verses are
// generated concurrently, then the round is judged and persisted. A
// verdict format violation still persists the round (judgment pending)
// and is returned alongside it.
func (e Engine) AdvanceRound(ctx context.Context, battleID, actorID string) (domain.Round, error) {
	defer e.locks.lock(battleID)()

	battle, err := e.Repo.LoadBattle(ctx, battleID)
	if err != nil {
		return domain.Round{}, err
	}
	if battle.Status == domain.BattleCompleted {
		return domain.Round{}, ErrBattleCompleted
	}
	for _, rnd := range battle.Rounds {
		if rnd.Judgment == nil {
			return domain.Round{}, ErrRoundPending
		}
	}
	if len(battle.Rounds) >= battle.RoundCount {
		return domain.Round{}, ErrBattleCompleted
	}

	roundNumber := len(battle.Rounds) + 1
	rnd, runErr := e.Arena.RunRound(ctx, battle, roundNumber)
	if runErr != nil {
		var formatErr *arena.FormatError
		if !errors.As(runErr, &formatErr) {
			return domain.Round{}, runErr
		}
		// Verses are kept; the round stays judgeable.
		rnd.Judgment = nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Round{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRound(ctx, tx, rnd); err != nil {
		return domain.Round{}, fmt.Errorf("insert round: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "round.advance", battle.ID, "round", rnd.ID, actorID, events.EventPayload{
		"round_number": roundNumber,
		"judged":       rnd.Judgment != nil,
	}); err != nil {
		return domain.Round{}, err
	}

	battle.Rounds = append(battle.Rounds, rnd)
	if rnd.Judgment != nil {
		if err := e.settleBattle(ctx, tx, &battle, actorID); err != nil {
			return domain.Round{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Round{}, err
	}
	return rnd, runErr
}

// JudgeRoundAI requests an AI judgment for a round whose judgment is
// still pending. Evaluation and verdict format failures are surfaced.
func (e Engine) JudgeRoundAI(ctx context.Context, battleID, roundID, actorID string) (domain.Judgment, error) {
	defer e.locks.lock(battleID)()

	battle, rnd, err := e.loadRound(ctx, battleID, roundID)
	if err != nil {
		return domain.Judgment{}, err
	}
	if rnd.Judgment != nil {
		return domain.Judgment{}, ErrRoundAlreadyJudged
	}

	judgment, err := e.Arena.JudgeRound(ctx, battle, rnd)
	if err != nil {
		return domain.Judgment{}, err
	}
	if err := e.attachJudgment(ctx, battle, rnd, judgment, actorID); err != nil {
		return domain.Judgment{}, err
	}
	return judgment, nil
}

// RecordManualJudgment attaches a human verdict to an unjudged round.
func (e Engine) RecordManualJudgment(ctx context.Context, battleID, roundID, winner, feedback, actorID string) (domain.Judgment, error) {
	defer e.locks.lock(battleID)()

	battle, rnd, err := e.loadRound(ctx, battleID, roundID)
	if err != nil {
		return domain.Judgment{}, err
	}
	if rnd.Judgment != nil {
		return domain.Judgment{}, ErrRoundAlreadyJudged
	}
	if !battle.ContestantOf(winner) {
		return domain.Judgment{}, fmt.Errorf("winner %q is not a contestant: invalid winner", winner)
	}

	judgment := domain.Judgment{
		ID:        uuid.NewString(),
		RoundID:   rnd.ID,
		Winner:    winner,
		Feedback:  feedback,
		Source:    domain.JudgmentSourceManual,
		CreatedAt: e.now(),
	}
	if err := e.attachJudgment(ctx, battle, rnd, judgment, actorID); err != nil {
		return domain.Judgment{}, err
	}
	return judgment, nil
}

func (e Engine) loadRound(ctx context.Context, battleID, roundID string) (domain.Battle, domain.Round, error) {
	battle, err := e.Repo.LoadBattle(ctx, battleID)
	if err != nil {
		return domain.Battle{}, domain.Round{}, err
	}
	rnd, err := e.Repo.GetRound(ctx, roundID)
	if err != nil {
		return domain.Battle{}, domain.Round{}, err
	}
	if rnd.BattleID != battleID {
		return domain.Battle{}, domain.Round{}, repo.ErrNotFound
	}
	return battle, rnd, nil
}

// DeleteBattle removes a battle and everything attached to it.
func (e Engine) DeleteBattle(ctx context.Context, battleID, actorID string) error {
	defer e.locks.lock(battleID)()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteBattle(ctx, tx, battleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "battle.delete", "", "battle", battleID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// attachJudgment persists a judgment, marks the round completed and
// settles the battle's tallies.
func (e Engine) attachJudgment(ctx context.Context, battle domain.Battle, rnd domain.Round, judgment domain.Judgment, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertJudgment(ctx, tx, judgment); err != nil {
		return fmt.Errorf("insert judgment: %w", err)
	}
	if err := e.Repo.UpdateRoundStatus(ctx, tx, rnd.ID, domain.RoundCompleted, e.now()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "round.judged", battle.ID, "round", rnd.ID, actorID, events.EventPayload{
		"round_number": rnd.RoundNumber,
		"winner":       judgment.Winner,
		"source":       judgment.Source,
	}); err != nil {
		return err
	}

	for i := range battle.Rounds {
		if battle.Rounds[i].ID == rnd.ID {
			battle.Rounds[i].Judgment = &judgment
			battle.Rounds[i].Status = domain.RoundCompleted
		}
	}
	if err := e.settleBattle(ctx, tx, &battle, actorID); err != nil {
		return err
	}
	return tx.Commit()
}

// settleBattle recomputes the running tallies from the rounds' judgments
// and completes the battle once every configured round is judged. Ties
// complete with no winner and the draw marker set.
func (e Engine) settleBattle(ctx context.Context, tx *sql.Tx, battle *domain.Battle, actorID string) error {
	wins1, wins2, judged := 0, 0, 0
	for _, rnd := range battle.Rounds {
		if rnd.Judgment == nil {
			continue
		}
		judged++
		switch rnd.Judgment.Winner {
		case battle.Contestant1:
			wins1++
		case battle.Contestant2:
			wins2++
		}
	}
	battle.Wins1 = wins1
	battle.Wins2 = wins2
	battle.UpdatedAt = e.now()

	completed := len(battle.Rounds) == battle.RoundCount && judged == battle.RoundCount
	if completed {
		battle.Status = domain.BattleCompleted
		switch {
		case wins1 > wins2:
			battle.Winner = battle.Contestant1
		case wins2 > wins1:
			battle.Winner = battle.Contestant2
		default:
			battle.Winner = ""
			battle.Draw = true
		}
	}
	if err := e.Repo.UpdateBattleState(ctx, tx, *battle); err != nil {
		return fmt.Errorf("update battle state: %w", err)
	}
	if completed {
		if err := e.Events.Append(ctx, tx, "battle.complete", battle.ID, "battle", battle.ID, actorID, events.EventPayload{
			"winner": battle.Winner,
			"draw":   battle.Draw,
			"wins1":  wins1,
			"wins2":  wins2,
		}); err != nil {
			return err
		}
	}
	return nil
}

// GetBattle returns a battle with its rounds.
func (e Engine) GetBattle(ctx context.Context, battleID string) (domain.Battle, error) {
	return e.Repo.LoadBattle(ctx, battleID)
}

// ListBattles returns all battles, newest first, without rounds.
func (e Engine) ListBattles(ctx context.Context) ([]domain.Battle, error) {
	return e.Repo.ListBattles(ctx)
}
