package modelstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/CTAG07/Drosera/pkg/automaton"
)

// setupStore creates a file-backed SQLite database in a temp directory and
// a Store over it. Resources are released through t.Cleanup.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "models.db")
	db, err := sql.Open("sqlite", dbFile)
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, SetupSchema(db), "failed to set up schema")

	store, err := NewStore(db)
	require.NoError(t, err, "NewStore() failed")
	t.Cleanup(store.Close)

	return store
}

func trainModel(t *testing.T, text string, order int) *automaton.Automaton {
	t.Helper()
	a, err := automaton.Train(strings.NewReader(text), automaton.WithOrder(order))
	require.NoError(t, err, "Train() failed")
	return a
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	a := trainModel(t, "the quick brown fox jumps over the lazy dog", 2)

	info, err := store.SaveModel(ctx, "fox", a)
	require.NoError(t, err)
	require.Equal(t, "fox", info.Name)
	require.Equal(t, 2, info.Order)
	require.NotZero(t, info.Id)

	loaded, err := store.LoadModel(ctx, "fox")
	require.NoError(t, err)
	require.Equal(t, a, loaded)
}

func TestSaveLoadMultibyte(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	a := trainModel(t, "crème brûlée après le dîner, crème brûlée toujours", 3)

	_, err := store.SaveModel(ctx, "dessert", a)
	require.NoError(t, err)

	loaded, err := store.LoadModel(ctx, "dessert")
	require.NoError(t, err)
	require.Equal(t, a, loaded)
}

func TestSaveReplacesExisting(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := trainModel(t, "aaaa bbbb aaaa bbbb", 2)
	firstInfo, err := store.SaveModel(ctx, "replaceme", first)
	require.NoError(t, err)

	second := trainModel(t, "an entirely different training text, quite a bit longer than before", 4)
	secondInfo, err := store.SaveModel(ctx, "replaceme", second)
	require.NoError(t, err)
	require.Equal(t, firstInfo.Id, secondInfo.Id, "replacing a model should keep its id")

	loaded, err := store.LoadModel(ctx, "replaceme")
	require.NoError(t, err)
	require.Equal(t, second, loaded)

	// The old transitions must be gone, not merged into the new model.
	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	wantStats := second.Stats()
	require.Equal(t, wantStats.Transitions, stats.Stats[secondInfo.Id].Transitions)
	require.Equal(t, wantStats.States, stats.Stats[secondInfo.Id].Contexts)
}

func TestSaveRejectsInvalidModel(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	bad := &automaton.Automaton{
		Order: 1,
		Start: "a",
		States: map[string]automaton.Transitions{
			"a": {Successors: []rune{'b'}, Probabilities: []float64{0.5}},
		},
	}
	_, err := store.SaveModel(ctx, "bad", bad)
	require.ErrorIs(t, err, automaton.ErrMalformedModel)

	_, err = store.GetModelInfo(ctx, "bad")
	require.ErrorIs(t, err, sql.ErrNoRows, "invalid model must not be stored")
}

func TestGetModelInfo(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.GetModelInfo(ctx, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)

	a := trainModel(t, "some ordinary training text", 3)
	saved, err := store.SaveModel(ctx, "present", a)
	require.NoError(t, err)

	info, err := store.GetModelInfo(ctx, "present")
	require.NoError(t, err)
	require.Equal(t, saved, info)
}

func TestGetModelInfos(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	infos, err := store.GetModelInfos(ctx)
	require.NoError(t, err)
	require.Empty(t, infos)

	a := trainModel(t, "shared training text for every model", 2)
	for _, name := range []string{"zulu", "alpha", "mike"} {
		_, err = store.SaveModel(ctx, name, a)
		require.NoError(t, err)
	}

	infos, err = store.GetModelInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	require.Equal(t, []string{"alpha", "mike", "zulu"}, names, "listing should be ordered by name")
}

func TestRemoveModel(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := trainModel(t, "text for a model that will not live long", 2)
	info, err := store.SaveModel(ctx, "doomed", a)
	require.NoError(t, err)

	keep := trainModel(t, "text for a model that survives", 2)
	keepInfo, err := store.SaveModel(ctx, "keeper", keep)
	require.NoError(t, err)

	require.NoError(t, store.RemoveModel(ctx, info))

	_, err = store.LoadModel(ctx, "doomed")
	require.ErrorIs(t, err, sql.ErrNoRows)

	// The other model and its transitions are untouched.
	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Models, 1)
	require.Equal(t, keep.Stats().Transitions, stats.Stats[keepInfo.Id].Transitions)
}

func TestGetStats(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := trainModel(t, "one fish two fish red fish blue fish", 2)
	info, err := store.SaveModel(ctx, "fish", a)
	require.NoError(t, err)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Models, 1)

	want := a.Stats()
	require.Equal(t, want.States, stats.Stats[info.Id].Contexts)
	require.Equal(t, want.Transitions, stats.Stats[info.Id].Transitions)
}
