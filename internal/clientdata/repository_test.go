package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema())
	return repo
}

type samplePayload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := testRepo(t)
	in := samplePayload{Temperature: 29.5, Humidity: 68}

	require.NoError(t, repo.Store("weather", "19.0760:72.8777", in, time.Hour))

	raw, err := repo.GetIfFresh("weather", "19.0760:72.8777")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var out samplePayload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestGetIfFresh_MissReturnsNil(t *testing.T) {
	repo := testRepo(t)

	raw, err := repo.GetIfFresh("weather", "nope")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestExpiredEntry_FreshMissButStaleGet(t *testing.T) {
	repo := testRepo(t)
	in := samplePayload{Temperature: 25, Humidity: 50}

	require.NoError(t, repo.Store("weather", "key", in, -time.Minute))

	fresh, err := repo.GetIfFresh("weather", "key")
	require.NoError(t, err)
	assert.Nil(t, fresh, "expired rows are invisible to fresh lookups")

	stale, err := repo.Get("weather", "key")
	require.NoError(t, err)
	require.NotNil(t, stale, "stale rows stay readable until cleanup")

	var out samplePayload
	require.NoError(t, json.Unmarshal(stale, &out))
	assert.Equal(t, in, out)
}

func TestStore_RefreshSupersedes(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Store("market", "WHEAT", samplePayload{Temperature: 1}, time.Hour))
	require.NoError(t, repo.Store("market", "WHEAT", samplePayload{Temperature: 2}, time.Hour))

	raw, err := repo.GetIfFresh("market", "WHEAT")
	require.NoError(t, err)

	var out samplePayload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2.0, out.Temperature)
}

func TestCleanupExpired(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Store("weather", "old", samplePayload{}, -2*time.Hour))
	require.NoError(t, repo.Store("soil", "old", samplePayload{}, -2*time.Hour))
	require.NoError(t, repo.Store("weather", "live", samplePayload{}, time.Hour))

	deleted, err := repo.CleanupExpired(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	raw, err := repo.Get("weather", "live")
	require.NoError(t, err)
	assert.NotNil(t, raw)

	gone, err := repo.Get("weather", "old")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestInvalidTableRejected(t *testing.T) {
	repo := testRepo(t)

	err := repo.Store("users; DROP TABLE weather", "k", samplePayload{}, time.Hour)
	assert.Error(t, err)

	_, err = repo.GetIfFresh("bogus", "k")
	assert.Error(t, err)
}
