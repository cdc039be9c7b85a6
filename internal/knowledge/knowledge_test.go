package knowledge

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rageraps/internal/db"
	"rageraps/internal/domain"
	"rageraps/internal/migrate"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return conn
}

func seed(t *testing.T, db *sql.DB, artist, style, kind, content string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO lyrics(artist,style,title,kind,content) VALUES (?,?,?,?,?)`,
		artist, style, "", kind, content)
	require.NoError(t, err)
}

func TestStoreRetrieve(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, "MC Nova", "trap", KindLyric, "stacked bars over heavy 808s")
	seed(t, db, "MC Nova", "trap", KindLyric, "triplet flow all night")
	seed(t, db, "DJ Vex", "boom-bap", KindLyric, "classic head nod rhythm")

	store := Store{DB: db}
	got, err := store.Retrieve(context.Background(), "mc nova", "trap", KindLyric, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MC Nova", got[0].Entity)
	assert.Equal(t, "stacked bars over heavy 808s", got[0].Content)
}

func TestStoreRetrieveLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 10; i++ {
		seed(t, db, "MC Nova", "", KindLyric, "line")
	}
	store := Store{DB: db}
	got, err := store.Retrieve(context.Background(), "MC Nova", "", KindLyric, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStoreRetrieveEmptyIsNotError(t *testing.T) {
	db := newTestDB(t)
	store := Store{DB: db}
	got, err := store.Retrieve(context.Background(), "Unknown Artist", "", KindBio, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type countingRetriever struct {
	calls int
	out   []domain.Snippet
}

func (c *countingRetriever) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	c.calls++
	return c.out, nil
}

func TestRoundCacheMemoizes(t *testing.T) {
	backing := &countingRetriever{out: []domain.Snippet{{Entity: "MC Nova", Content: "bars"}}}
	cache := NewRoundCache(backing)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		got, err := cache.Retrieve(ctx, "MC Nova", "trap", KindLyric, 5)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	// Entity normalization shares the entry.
	_, err := cache.Retrieve(ctx, "  mc nova ", "trap", KindLyric, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.calls)

	// A different kind is a distinct lookup.
	_, err = cache.Retrieve(ctx, "MC Nova", "trap", KindBio, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestImportCSV(t *testing.T) {
	db := newTestDB(t)
	src := strings.NewReader(`artist,style,title,kind,content
MC Nova,trap,Heat,lyric,bars upon bars
DJ Vex,boom-bap,,bio,veteran of the scene
,,,lyric,skipped because artist missing
`)
	n, err := ImportCSV(context.Background(), db, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store := Store{DB: db}
	got, err := store.Retrieve(context.Background(), "DJ Vex", "", KindBio, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "veteran of the scene", got[0].Content)
}

func TestImportCSVMissingColumns(t *testing.T) {
	db := newTestDB(t)
	_, err := ImportCSV(context.Background(), db, strings.NewReader("artist,style\nMC Nova,trap\n"))
	require.Error(t, err)
}

func TestFormatSnippets(t *testing.T) {
	assert.Equal(t, "", FormatSnippets(nil))
	got := FormatSnippets([]domain.Snippet{
		{Entity: "MC Nova", Content: "bars"},
		{Entity: "DJ Vex", Content: "scratches"},
	})
	assert.Equal(t, "[MC Nova] bars\n\n[DJ Vex] scratches", got)
}
