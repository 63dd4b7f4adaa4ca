package universe

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/database"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, zerolog.Nop())
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestRepository_SaveAndListAssets(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveAsset(Asset{Symbol: "BBB", Group: "tech"}))
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA"}))

	assets, err := repo.ListAssets()
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "AAA", assets[0].Symbol, "ordered by symbol")
	assert.Equal(t, "BBB", assets[1].Symbol)
	assert.Equal(t, "tech", assets[1].Group)
}

func TestRepository_SaveAssetUpsert(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA", Group: "tech"}))
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA", Group: "energy"}))

	assets, err := repo.ListAssets()
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "energy", assets[0].Group)
}

func TestRepository_LoadHistory(t *testing.T) {
	repo := testRepo(t)
	assets := []Asset{{Symbol: "AAA"}, {Symbol: "BBB"}}
	dates := []time.Time{day(1), day(2), day(3), day(4)}

	for _, a := range assets {
		require.NoError(t, repo.SaveAsset(a))
	}
	require.NoError(t, repo.SaveReturns("AAA", dates, []float64{0.01, -0.02, 0.03, 0.00}))
	require.NoError(t, repo.SaveReturns("BBB", dates, []float64{0.02, 0.01, -0.01, 0.04}))

	hist, err := repo.LoadHistory(assets, 3)
	require.NoError(t, err)
	require.NoError(t, hist.Validate())

	// Most recent three rows, oldest first.
	require.Equal(t, 3, hist.NumPeriods())
	assert.Equal(t, day(2), hist.Dates[0])
	assert.Equal(t, day(4), hist.Dates[2])
	assert.Equal(t, [][]float64{{-0.02, 0.01}, {0.03, -0.01}, {0.00, 0.04}}, hist.Returns)
}

func TestRepository_SaveReturnsUpsert(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA"}))

	dates := []time.Time{day(1), day(2)}
	require.NoError(t, repo.SaveReturns("AAA", dates, []float64{0.01, 0.02}))
	require.NoError(t, repo.SaveReturns("AAA", dates, []float64{0.05, 0.06}))

	hist, err := repo.LoadHistory([]Asset{{Symbol: "AAA"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.05}, {0.06}}, hist.Returns)
}

func TestRepository_SaveReturnsLengthMismatch(t *testing.T) {
	repo := testRepo(t)
	err := repo.SaveReturns("AAA", []time.Time{day(1)}, []float64{0.01, 0.02})
	assert.Error(t, err)
}

func TestRepository_LoadHistoryNotEnoughData(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA"}))
	require.NoError(t, repo.SaveReturns("AAA", []time.Time{day(1), day(2)}, []float64{0.01, 0.02}))

	_, err := repo.LoadHistory([]Asset{{Symbol: "AAA"}}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 2 periods available")
}

func TestRepository_LoadHistoryRejectsGaps(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "AAA"}))
	require.NoError(t, repo.SaveAsset(Asset{Symbol: "BBB"}))

	dates := []time.Time{day(1), day(2), day(3)}
	require.NoError(t, repo.SaveReturns("AAA", dates, []float64{0.01, 0.02, 0.03}))
	// BBB is missing day 2.
	require.NoError(t, repo.SaveReturns("BBB", []time.Time{day(1), day(3)}, []float64{0.01, 0.03}))

	_, err := repo.LoadHistory([]Asset{{Symbol: "AAA"}, {Symbol: "BBB"}}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gaps")
}

func TestRepository_LoadHistoryInvalidArgs(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.LoadHistory(nil, 3)
	assert.Error(t, err)

	_, err = repo.LoadHistory([]Asset{{Symbol: "AAA"}}, 0)
	assert.Error(t, err)
}
