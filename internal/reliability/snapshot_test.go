package reliability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/models"
)

type stubModel struct {
	state *models.TrainedState
}

func (s *stubModel) ExportState() (*models.TrainedState, error) {
	return s.state, nil
}

func (s *stubModel) RestoreState(state *models.TrainedState) error {
	s.state = state
	return nil
}

func testSnapshots(t *testing.T) *SnapshotService {
	t.Helper()
	svc, err := NewSnapshotService(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestSnapshot_SaveAndRestore(t *testing.T) {
	svc := testSnapshots(t)

	src := &stubModel{state: &models.TrainedState{
		Model:  "yield_regressor",
		Params: []float64{0.1, 0.2, 0.3},
		YMin:   2.5,
		YMax:   4.1,
	}}

	id, err := svc.Save(src, &models.TrainingReport{Model: "yield_regressor", Examples: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	dst := &stubModel{}
	restored, err := svc.RestoreLatest(dst, "yield_regressor")
	require.NoError(t, err)
	require.True(t, restored)

	assert.Equal(t, src.state.Params, dst.state.Params)
	assert.Equal(t, src.state.YMin, dst.state.YMin)
	assert.Equal(t, src.state.YMax, dst.state.YMax)
}

func TestSnapshot_RestoreLatestPicksNewest(t *testing.T) {
	svc := testSnapshots(t)
	m := &stubModel{state: &models.TrainedState{Model: "pest_classifier", Params: []float64{1}}}

	_, err := svc.Save(m, nil)
	require.NoError(t, err)

	// Filenames carry second-resolution timestamps; cross the boundary so the
	// second save sorts strictly later.
	time.Sleep(1100 * time.Millisecond)
	m.state = &models.TrainedState{Model: "pest_classifier", Params: []float64{2}}
	_, err = svc.Save(m, nil)
	require.NoError(t, err)

	dst := &stubModel{}
	restored, err := svc.RestoreLatest(dst, "pest_classifier")
	require.NoError(t, err)
	require.True(t, restored)
	assert.Equal(t, []float64{2}, dst.state.Params)
}

func TestSnapshot_RestoreWithoutSnapshots(t *testing.T) {
	svc := testSnapshots(t)

	restored, err := svc.RestoreLatest(&stubModel{}, "yield_regressor")
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestSnapshot_ListNewestFirst(t *testing.T) {
	svc := testSnapshots(t)

	for i := 0; i < 3; i++ {
		m := &stubModel{state: &models.TrainedState{Model: "irrigation_optimizer", Params: []float64{float64(i)}}}
		_, err := svc.Save(m, nil)
		require.NoError(t, err)
	}

	infos, err := svc.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	for i := 1; i < len(infos); i++ {
		assert.False(t, infos[i].CreatedAt.After(infos[i-1].CreatedAt))
	}
	for _, info := range infos {
		assert.Equal(t, "irrigation_optimizer", info.Model)
		assert.Greater(t, info.SizeBytes, int64(0))
	}
}

func TestSnapshot_PruneKeepsNewestPerModel(t *testing.T) {
	svc := testSnapshots(t)

	for i := 0; i < 4; i++ {
		m := &stubModel{state: &models.TrainedState{Model: "yield_regressor", Params: []float64{float64(i)}}}
		_, err := svc.Save(m, nil)
		require.NoError(t, err)
	}
	other := &stubModel{state: &models.TrainedState{Model: "pest_classifier"}}
	_, err := svc.Save(other, nil)
	require.NoError(t, err)

	deleted, err := svc.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	infos, err := svc.List()
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, info := range infos {
		counts[info.Model]++
	}
	assert.Equal(t, 2, counts["yield_regressor"])
	assert.Equal(t, 1, counts["pest_classifier"])
}
