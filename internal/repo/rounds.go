package repo

import (
	"context"
	"database/sql"

	"rageraps/internal/domain"
)

func (r Repo) InsertRound(ctx context.Context, tx *sql.Tx, rnd domain.Round) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rounds(id,battle_id,round_number,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		rnd.ID, rnd.BattleID, rnd.RoundNumber, rnd.Status, rnd.CreatedAt, rnd.UpdatedAt)
	if err != nil {
		return err
	}
	if rnd.Verse1 != nil {
		if err := r.InsertVerse(ctx, tx, rnd.ID, 1, *rnd.Verse1); err != nil {
			return err
		}
	}
	if rnd.Verse2 != nil {
		if err := r.InsertVerse(ctx, tx, rnd.ID, 2, *rnd.Verse2); err != nil {
			return err
		}
	}
	if rnd.Judgment != nil {
		if err := r.InsertJudgment(ctx, tx, *rnd.Judgment); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) InsertVerse(ctx context.Context, tx *sql.Tx, roundID string, slot int, v domain.Verse) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO verses(id,round_id,slot,contestant,content,error) VALUES (?,?,?,?,?,?)`,
		v.ID, roundID, slot, v.Contestant, v.Content, nullable(v.Error))
	if err != nil {
		return err
	}
	return r.insertSnippets(ctx, tx, v.ID, "", v.Snippets)
}

func (r Repo) InsertJudgment(ctx context.Context, tx *sql.Tx, j domain.Judgment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO judgments(id,round_id,winner,feedback,analysis1,analysis2,comparison,source,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		j.ID, j.RoundID, j.Winner, nullable(j.Feedback), nullable(j.Analysis1), nullable(j.Analysis2), nullable(j.Comparison), j.Source, j.CreatedAt)
	if err != nil {
		return err
	}
	return r.insertSnippets(ctx, tx, "", j.ID, j.Snippets)
}

func (r Repo) insertSnippets(ctx context.Context, tx *sql.Tx, verseID, judgmentID string, snippets []domain.Snippet) error {
	for _, s := range snippets {
		_, err := tx.ExecContext(ctx, `INSERT INTO snippets(verse_id,judgment_id,entity,style,content) VALUES (?,?,?,?,?)`,
			nullable(verseID), nullable(judgmentID), s.Entity, nullable(s.Style), s.Content)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateRoundStatus(ctx context.Context, tx *sql.Tx, roundID, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE rounds SET status=?, updated_at=? WHERE id=?`, status, updatedAt, roundID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const roundColumns = `id,battle_id,round_number,status,created_at,updated_at`

func (r Repo) GetRound(ctx context.Context, id string) (domain.Round, error) {
	var rnd domain.Round
	err := r.DB.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id=?`, id).
		Scan(&rnd.ID, &rnd.BattleID, &rnd.RoundNumber, &rnd.Status, &rnd.CreatedAt, &rnd.UpdatedAt)
	if err == sql.ErrNoRows {
		return rnd, ErrNotFound
	}
	if err != nil {
		return rnd, err
	}
	if err := r.hydrateRound(ctx, &rnd); err != nil {
		return rnd, err
	}
	return rnd, nil
}

// ListRounds returns a battle's rounds with verses and judgments attached,
// ordered by round number.
func (r Repo) ListRounds(ctx context.Context, battleID string) ([]domain.Round, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE battle_id=? ORDER BY round_number`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rounds []domain.Round
	for rows.Next() {
		var rnd domain.Round
		if err := rows.Scan(&rnd.ID, &rnd.BattleID, &rnd.RoundNumber, &rnd.Status, &rnd.CreatedAt, &rnd.UpdatedAt); err != nil {
			return nil, err
		}
		rounds = append(rounds, rnd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range rounds {
		if err := r.hydrateRound(ctx, &rounds[i]); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func (r Repo) hydrateRound(ctx context.Context, rnd *domain.Round) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,slot,contestant,content,COALESCE(error,'') FROM verses WHERE round_id=? ORDER BY slot`, rnd.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Verse
		var slot int
		if err := rows.Scan(&v.ID, &slot, &v.Contestant, &v.Content, &v.Error); err != nil {
			return err
		}
		v.RoundID = rnd.ID
		snippets, err := r.loadSnippets(ctx, v.ID, "")
		if err != nil {
			return err
		}
		v.Snippets = snippets
		verse := v
		if slot == 1 {
			rnd.Verse1 = &verse
		} else {
			rnd.Verse2 = &verse
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var j domain.Judgment
	err = r.DB.QueryRowContext(ctx, `SELECT id,round_id,winner,COALESCE(feedback,''),COALESCE(analysis1,''),COALESCE(analysis2,''),COALESCE(comparison,''),source,created_at FROM judgments WHERE round_id=?`, rnd.ID).
		Scan(&j.ID, &j.RoundID, &j.Winner, &j.Feedback, &j.Analysis1, &j.Analysis2, &j.Comparison, &j.Source, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	snippets, err := r.loadSnippets(ctx, "", j.ID)
	if err != nil {
		return err
	}
	j.Snippets = snippets
	rnd.Judgment = &j
	return nil
}

func (r Repo) loadSnippets(ctx context.Context, verseID, judgmentID string) ([]domain.Snippet, error) {
	var rows *sql.Rows
	var err error
	if verseID != "" {
		rows, err = r.DB.QueryContext(ctx, `SELECT entity,COALESCE(style,''),content FROM snippets WHERE verse_id=? ORDER BY id`, verseID)
	} else {
		rows, err = r.DB.QueryContext(ctx, `SELECT entity,COALESCE(style,''),content FROM snippets WHERE judgment_id=? ORDER BY id`, judgmentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snippet
	for rows.Next() {
		var s domain.Snippet
		if err := rows.Scan(&s.Entity, &s.Style, &s.Content); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
