package snapshots

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/database"
)

type fakeArtifact struct {
	Label   string             `msgpack:"label"`
	Weights map[string]float64 `msgpack:"weights"`
}

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "artifacts.db"),
		Profile: database.ProfileArtifacts,
		Name:    "artifacts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, zerolog.Nop())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)
	artifact := fakeArtifact{Label: "baseline", Weights: map[string]float64{"AAA": 0.4, "BBB": 0.6}}

	id, err := store.Save(KindResult, artifact)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, KindResult, snap.Kind)
	assert.WithinDuration(t, time.Now().UTC(), snap.CreatedAt, time.Minute)

	var decoded fakeArtifact
	require.NoError(t, snap.Decode(&decoded))
	assert.Equal(t, artifact, decoded)
}

func TestStore_LoadMissing(t *testing.T) {
	store := testStore(t)

	_, err := store.Load("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_ListFiltersByKind(t *testing.T) {
	store := testStore(t)

	first, err := store.Save(KindBacktest, fakeArtifact{Label: "run-1"})
	require.NoError(t, err)
	second, err := store.Save(KindBacktest, fakeArtifact{Label: "run-2"})
	require.NoError(t, err)
	_, err = store.Save(KindProgram, fakeArtifact{Label: "prog"})
	require.NoError(t, err)

	backtests, err := store.List(KindBacktest, 0)
	require.NoError(t, err)
	require.Len(t, backtests, 2)
	// Newest first.
	assert.Equal(t, second, backtests[0].ID)
	assert.Equal(t, first, backtests[1].ID)

	limited, err := store.List(KindBacktest, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)

	results, err := store.List(KindResult, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_Delete(t *testing.T) {
	store := testStore(t)

	id, err := store.Save(KindResult, fakeArtifact{Label: "gone"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(id))
	_, err = store.Load(id)
	assert.Error(t, err)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(id))
}

func TestStore_Prune(t *testing.T) {
	store := testStore(t)

	old, err := store.Save(KindResult, fakeArtifact{Label: "old"})
	require.NoError(t, err)
	fresh, err := store.Save(KindResult, fakeArtifact{Label: "fresh"})
	require.NoError(t, err)

	// Everything just written is newer than a cutoff in the past.
	n, err := store.Prune(KindResult, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// A future cutoff sweeps both.
	n, err = store.Prune(KindResult, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.Load(old)
	assert.Error(t, err)
	_, err = store.Load(fresh)
	assert.Error(t, err)
}
