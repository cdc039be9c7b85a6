package knowledge

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"rageraps/internal/domain"
)

// Store retrieves snippets from the lyrics table. Matching is a
// case-insensitive substring scan over artist, with an optional style
// filter; good enough for the corpus sizes a workspace holds.
type Store struct {
	DB *sql.DB
}

func (s Store) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	if k <= 0 {
		return nil, nil
	}
	query := `SELECT artist,COALESCE(style,''),content FROM lyrics WHERE kind=? AND artist LIKE ? COLLATE NOCASE`
	args := []any{kind, "%" + strings.TrimSpace(entity) + "%"}
	if style != "" {
		query += ` AND (style=? OR style IS NULL OR style='')`
		args = append(args, style)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, k)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snippet
	for rows.Next() {
		var sn domain.Snippet
		if err := rows.Scan(&sn.Entity, &sn.Style, &sn.Content); err != nil {
			return nil, err
		}
		res = append(res, sn)
	}
	return res, rows.Err()
}

// ImportCSV loads knowledge rows from a CSV stream with the header
// artist,style,title,kind,content. Missing kind defaults to lyric.
// Returns the number of rows inserted.
func ImportCSV(ctx context.Context, db *sql.DB, src io.Reader) (int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["artist"]; !ok {
		return 0, fmt.Errorf("csv missing artist column")
	}
	if _, ok := col["content"]; !ok {
		return 0, fmt.Errorf("csv missing content column")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv row: %w", err)
		}
		artist := field(record, "artist")
		content := field(record, "content")
		if artist == "" || content == "" {
			continue
		}
		kind := field(record, "kind")
		if kind == "" {
			kind = KindLyric
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO lyrics(artist,style,title,kind,content) VALUES (?,?,?,?,?)`,
			artist, field(record, "style"), field(record, "title"), kind, content)
		if err != nil {
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
