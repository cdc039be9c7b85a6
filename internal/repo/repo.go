package repo

import (
	"context"
	"database/sql"
	"errors"

	"rageraps/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const battleColumns = `id,contestant1,contestant2,style1,style2,round_count,status,wins1,wins2,COALESCE(winner,'') AS winner,draw,created_at,updated_at`

func scanBattle(row *sql.Row) (domain.Battle, error) {
	var b domain.Battle
	var draw int
	err := row.Scan(&b.ID, &b.Contestant1, &b.Contestant2, &b.Style1, &b.Style2,
		&b.RoundCount, &b.Status, &b.Wins1, &b.Wins2, &b.Winner, &draw, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	b.Draw = draw != 0
	return b, err
}

func (r Repo) InsertBattle(ctx context.Context, tx *sql.Tx, b domain.Battle) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO battles(id,contestant1,contestant2,style1,style2,round_count,status,wins1,wins2,winner,draw,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Contestant1, b.Contestant2, b.Style1, b.Style2, b.RoundCount,
		b.Status, b.Wins1, b.Wins2, nullable(b.Winner), boolToInt(b.Draw), b.CreatedAt, b.UpdatedAt)
	return err
}

// GetBattle loads the battle row only; rounds are not hydrated.
func (r Repo) GetBattle(ctx context.Context, id string) (domain.Battle, error) {
	return scanBattle(r.DB.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id=?`, id))
}

// LoadBattle returns the battle with all rounds, verses, judgments and
// snippets attached, ordered by round number.
func (r Repo) LoadBattle(ctx context.Context, id string) (domain.Battle, error) {
	b, err := r.GetBattle(ctx, id)
	if err != nil {
		return b, err
	}
	rounds, err := r.ListRounds(ctx, id)
	if err != nil {
		return b, err
	}
	b.Rounds = rounds
	return b, nil
}

func (r Repo) ListBattles(ctx context.Context) ([]domain.Battle, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+battleColumns+` FROM battles ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Battle
	for rows.Next() {
		var b domain.Battle
		var draw int
		if err := rows.Scan(&b.ID, &b.Contestant1, &b.Contestant2, &b.Style1, &b.Style2,
			&b.RoundCount, &b.Status, &b.Wins1, &b.Wins2, &b.Winner, &draw, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Draw = draw != 0
		res = append(res, b)
	}
	return res, rows.Err()
}

// UpdateBattleState writes the mutable battle fields: tallies, status,
// winner and draw marker.
func (r Repo) UpdateBattleState(ctx context.Context, tx *sql.Tx, b domain.Battle) error {
	res, err := tx.ExecContext(ctx, `UPDATE battles SET status=?, wins1=?, wins2=?, winner=?, draw=?, updated_at=? WHERE id=?`,
		b.Status, b.Wins1, b.Wins2, nullable(b.Winner), boolToInt(b.Draw), b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBattle removes a battle; its rounds, verses, judgments and
// snippets go with it via cascade.
func (r Repo) DeleteBattle(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM battles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns the newest events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, n int, battleID, evtType, entityKind, entityID string) ([]Event, error) {
	query := `SELECT id,ts,type,COALESCE(battle_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if battleID != "" {
		query += ` AND battle_id=?`
		args = append(args, battleID)
	}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.BattleID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	BattleID   string `json:"battle_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
